// Package ttweb serves the retained transaction traces of a sampler over HTTP,
// for developer-mode diagnostics, and streams xray segment events to remote
// observers.
package ttweb

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttbuffer"
	"github.com/peterbourgon/ttrace/ttsampler"
	"go.uber.org/zap"
)

const (
	breakdownLimitMin     = 1
	breakdownLimitDefault = 6
	breakdownLimitMax     = 100

	// RowDisplayLimit is the segment count beyond which sample detail views
	// are considered too large to render in full.
	RowDisplayLimit = 2000
)

// ServerConfig for a server.
type ServerConfig struct {
	// Sampler is required.
	Sampler *ttsampler.Sampler

	// Logger is optional.
	Logger *zap.Logger
}

func (cfg *ServerConfig) sanitize() error {
	if cfg.Sampler == nil {
		return fmt.Errorf("sampler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Server is an http.Handler over a sampler.
//
//	GET    /samples             detail samples, newest first
//	GET    /samples/last        the most recently stored sample
//	GET    /samples/{id}        a single detail sample, with a breakdown
//	GET    /count               number of distinct retained samples
//	POST   /reset               discard every retained sample
//	GET    /xray/sessions       active xray sessions
//	POST   /xray/sessions       activate an xray session
//	DELETE /xray/sessions/{id}  deactivate an xray session
//	GET    /xray/stream         server-sent segment events
type Server struct {
	sampler *ttsampler.Sampler
	logger  *zap.Logger
	mux     *http.ServeMux
}

// NewServer returns a server for the given config.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.sanitize(); err != nil {
		return nil, err
	}

	s := &Server{
		sampler: cfg.Sampler,
		logger:  cfg.Logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /samples", s.handleSamples)
	s.mux.HandleFunc("GET /samples/last", s.handleLastSample)
	s.mux.HandleFunc("GET /samples/{id}", s.handleSample)
	s.mux.HandleFunc("GET /count", s.handleCount)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /xray/sessions", s.handleXraySessions)
	s.mux.HandleFunc("POST /xray/sessions", s.handleActivateXraySession)
	s.mux.HandleFunc("DELETE /xray/sessions/{id}", s.handleDeactivateXraySession)
	s.mux.Handle("GET /xray/stream", NewXrayStreamServer(s.sampler.Xray(), s.logger))

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

//
//
//

// SampleSummary is a compact description of a sample.
type SampleSummary struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URI          string        `json:"uri,omitempty"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"duration"`
	SegmentCount int           `json:"segment_count"`
}

func summarize(s *ttrace.Sample) SampleSummary {
	return SampleSummary{
		ID:           s.ID(),
		Name:         s.Name(),
		URI:          s.URI(),
		Start:        s.Start(),
		Duration:     s.Duration(),
		SegmentCount: s.SegmentCount(),
	}
}

// SamplesData is the response to GET /samples.
type SamplesData struct {
	Samples []SampleSummary `json:"samples"`
}

// SampleData is the response to GET /samples/{id} and GET /samples/last.
type SampleData struct {
	Sample          *ttrace.Sample          `json:"sample"`
	Breakdown       []ttrace.BreakdownEntry `json:"breakdown"`
	RowLimitReached bool                    `json:"row_limit_reached,omitempty"`
}

// CountData is the response to GET /count and POST /reset.
type CountData struct {
	Count int `json:"count"`
}

// XraySessionsData is the response to GET /xray/sessions.
type XraySessionsData struct {
	Sessions []ttbuffer.XraySession `json:"sessions"`
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	detail := s.sampler.DetailSamples()
	data := SamplesData{Samples: make([]SampleSummary, 0, len(detail))}
	for i := len(detail) - 1; i >= 0; i-- {
		data.Samples = append(data.Samples, summarize(detail[i]))
	}
	renderJSON(s.logger, w, http.StatusOK, data)
}

func (s *Server) handleLastSample(w http.ResponseWriter, r *http.Request) {
	sample := s.sampler.LastSample()
	if sample == nil {
		respondError(s.logger, w, errors.New("no sample"), http.StatusNotFound)
		return
	}
	s.renderSample(w, r, sample)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, sample := range s.sampler.DetailSamples() {
		if sample.ID() == id {
			s.renderSample(w, r, sample)
			return
		}
	}
	respondError(s.logger, w, fmt.Errorf("sample %q not found", id), http.StatusNotFound)
}

func (s *Server) renderSample(w http.ResponseWriter, r *http.Request, sample *ttrace.Sample) {
	limit := parseRange(r.URL.Query().Get("n"), strconv.Atoi, breakdownLimitMin, breakdownLimitDefault, breakdownLimitMax)
	renderJSON(s.logger, w, http.StatusOK, SampleData{
		Sample:          sample,
		Breakdown:       ttrace.Breakdown(sample, limit),
		RowLimitReached: sample.SegmentCount() > RowDisplayLimit,
	})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	renderJSON(s.logger, w, http.StatusOK, CountData{Count: s.sampler.Count()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sampler.Reset()
	s.logger.Info("retained samples reset", zap.String("remote_addr", r.RemoteAddr))
	renderJSON(s.logger, w, http.StatusOK, CountData{Count: s.sampler.Count()})
}

func (s *Server) handleXraySessions(w http.ResponseWriter, r *http.Request) {
	renderJSON(s.logger, w, http.StatusOK, XraySessionsData{Sessions: s.sampler.Xray().Sessions().Active()})
}

func (s *Server) handleActivateXraySession(w http.ResponseWriter, r *http.Request) {
	var sess ttbuffer.XraySession
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
	if err := json.NewDecoder(body).Decode(&sess); err != nil {
		respondError(s.logger, w, fmt.Errorf("decode session: %w", err), http.StatusBadRequest)
		return
	}
	if sess.ID == 0 || sess.TransactionName == "" {
		respondError(s.logger, w, errors.New("session ID and transaction name are required"), http.StatusBadRequest)
		return
	}
	if sess.Started.IsZero() {
		sess.Started = time.Now()
	}

	s.sampler.Xray().Sessions().Activate(sess)
	s.logger.Info("xray session activated", zap.Uint64("id", sess.ID), zap.String("transaction", sess.TransactionName))

	renderJSON(s.logger, w, http.StatusOK, XraySessionsData{Sessions: s.sampler.Xray().Sessions().Active()})
}

func (s *Server) handleDeactivateXraySession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(s.logger, w, fmt.Errorf("parse session ID: %w", err), http.StatusBadRequest)
		return
	}

	s.sampler.Xray().Sessions().Deactivate(id)
	s.logger.Info("xray session deactivated", zap.Uint64("id", id))

	renderJSON(s.logger, w, http.StatusOK, XraySessionsData{Sessions: s.sampler.Xray().Sessions().Active()})
}
