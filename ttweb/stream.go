package ttweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/peterbourgon/ttrace/ttbuffer"
	"go.uber.org/zap"
)

const (
	sendBufferMin     = 1
	sendBufferDefault = 100
	sendBufferMax     = 10000

	statsIntervalMin     = 100 * time.Millisecond
	statsIntervalDefault = 10 * time.Second
)

// XrayStreamServer streams xray segment events as server-sent events. Requests
// must Accept: text/event-stream. The optional session query parameter limits
// the stream to a single xray session.
//
// Each connection receives one "init" event, followed by a "segment" event for
// every segment entered by a transaction in an active session, and a periodic
// "stats" event describing the subscription.
type XrayStreamServer struct {
	xray   *ttbuffer.Xray
	logger *zap.Logger
}

// NewXrayStreamServer returns a stream server over the xray buffer.
func NewXrayStreamServer(xray *ttbuffer.Xray, logger *zap.Logger) *XrayStreamServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XrayStreamServer{
		xray:   xray,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *XrayStreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requestExplicitlyAccepts(r, "text/event-stream") {
		err := fmt.Errorf("invalid request Accept header (%s)", r.Header.Get("accept"))
		respondError(s.logger, w, err, http.StatusBadRequest)
		return
	}

	var (
		urlquery = r.URL.Query()
		session  = parseDefault(urlquery.Get("session"), parseSessionID, 0)
		sendbuf  = parseRange(urlquery.Get("sendbuf"), strconv.Atoi, sendBufferMin, sendBufferDefault, sendBufferMax)
		interval = parseDefault(urlquery.Get("stats"), time.ParseDuration, statsIntervalDefault)
		logger   = s.logger.With(zap.String("remote_addr", r.RemoteAddr), zap.Uint64("session", session))
	)
	if interval < statsIntervalMin {
		interval = statsIntervalMin
	}

	var allow func(ttbuffer.SegmentEvent) bool
	if session != 0 {
		allow = func(ev ttbuffer.SegmentEvent) bool { return ev.SessionID == session }
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		eventc = make(chan ttbuffer.SegmentEvent, sendbuf)
		donec  = make(chan struct{})
	)
	go func() {
		defer close(donec)
		stats, err := s.xray.Subscribe(ctx, allow, eventc)
		logger.Debug("xray subscription done", zap.Stringer("stats", stats), zap.Error(err))
	}()
	defer func() {
		cancel()
		<-donec
	}()

	eventsource.Handler(func(lastID string, encoder *eventsource.Encoder, stop <-chan bool) {
		logger.Debug("event source handler started")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		encode := func(typ string, v any) {
			data, err := json.Marshal(v)
			if err != nil {
				logger.Error("JSON marshal event", zap.String("type", typ), zap.Error(err))
				return
			}
			if err := encoder.Encode(eventsource.Event{Type: typ, Data: data}); err != nil {
				logger.Debug("encode event", zap.String("type", typ), zap.Error(err))
			}
		}

		encode("init", map[string]any{
			"session": session,
			"sendbuf": sendbuf,
		})

		var seq uint64
		for {
			select {
			case ev := <-eventc:
				seq++
				data, err := json.Marshal(ev)
				if err != nil {
					logger.Error("JSON marshal segment event", zap.Error(err))
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "segment",
					ID:   strconv.FormatUint(seq, 10),
					Data: data,
				}); err != nil {
					logger.Debug("encode segment event", zap.Error(err))
				}

			case <-ticker.C:
				stats, err := s.xray.Stats(eventc)
				if err != nil {
					logger.Debug("get subscription stats", zap.Error(err))
					continue
				}
				encode("stats", stats)

			case <-donec:
				logger.Debug("stopping: subscription done")
				return

			case <-stop:
				logger.Debug("stopping: stop signal")
				return

			case <-ctx.Done():
				logger.Debug("stopping: context done", zap.Error(ctx.Err()))
				return
			}
		}
	}).ServeHTTP(w, r)
}

func parseSessionID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
