package ttweb

import (
	"net/http"
	"time"

	"github.com/peterbourgon/ttrace/internal/ttutil"
	"go.uber.org/zap"
)

// Middleware logs basic metadata about each request, such as method, path,
// duration, and response code, at debug level.
func Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			iw := newInterceptor(w)

			defer func(b time.Time) {
				logger.Debug("http request",
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("url", r.URL.String()),
					zap.Int("code", iw.Code()),
					zap.String("sent", ttutil.HumanizeBytes(iw.Written())),
					zap.String("took", ttutil.HumanizeDuration(time.Since(b))),
				)
			}(time.Now())

			next.ServeHTTP(iw, r)
		})
	}
}

//
//
//

type interceptor struct {
	http.ResponseWriter

	flush func()
	code  int
	n     int
}

func newInterceptor(w http.ResponseWriter) *interceptor {
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	return &interceptor{ResponseWriter: w, flush: flush}
}

func (i *interceptor) WriteHeader(code int) {
	if i.code == 0 {
		i.code = code
	}
	i.ResponseWriter.WriteHeader(code)
}

func (i *interceptor) Write(p []byte) (int, error) {
	n, err := i.ResponseWriter.Write(p)
	i.n += n
	return n, err
}

func (i *interceptor) Code() int {
	if i.code == 0 {
		return http.StatusOK
	}
	return i.code
}

func (i *interceptor) Written() int {
	return i.n
}

func (i *interceptor) Flush() {
	i.flush()
}
