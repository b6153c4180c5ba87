package ttweb

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/peterbourgon/ttrace/internal/ttutil"
	"go.uber.org/zap"
)

const maxRequestBodySizeBytes = 1 * 1024 * 1024 // 1MB

// ErrorData is the JSON body of every error response.
type ErrorData struct {
	Error string `json:"error"`
}

func renderJSON(logger *zap.Logger, w http.ResponseWriter, code int, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")

	if err := enc.Encode(data); err != nil {
		code = http.StatusInternalServerError
		logger.Error("marshal JSON", zap.Error(err))
		buf.Reset()
		buf.WriteString(`{"error":"failed to marshal response"}`)
	} else {
		logger.Debug("marshaled JSON response", zap.String("size", ttutil.HumanizeBytes(buf.Len())))
	}

	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

func respondError(logger *zap.Logger, w http.ResponseWriter, err error, code int) {
	renderJSON(logger, w, code, ErrorData{Error: err.Error()})
}

func requestExplicitlyAccepts(r *http.Request, acceptable ...string) bool {
	accept := parseAcceptMediaTypes(r)
	for _, want := range acceptable {
		if _, ok := accept[want]; ok {
			return true
		}
	}
	return false
}

func parseAcceptMediaTypes(r *http.Request) map[string]map[string]string {
	mediaTypes := map[string]map[string]string{} // type: params
	for _, a := range strings.Split(r.Header.Get("accept"), ",") {
		mediaType, params, err := mime.ParseMediaType(a)
		if err != nil {
			continue
		}
		mediaTypes[mediaType] = params
	}
	return mediaTypes
}

func parseDefault[T any](s string, parse func(string) (T, error), def T) T {
	if v, err := parse(s); err == nil {
		return v
	}
	return def
}

func parseRange[T int](s string, parse func(string) (T, error), min, def, max T) T {
	v, err := parse(s)
	switch {
	case err != nil:
		return def
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
