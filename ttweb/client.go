package ttweb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/peterbourgon/ttrace/ttbuffer"
	"go.uber.org/zap"
)

// HTTPClient models *http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

// Client calls a remote Server.
type Client struct {
	client HTTPClient
	uri    string
	logger *zap.Logger

	// RetryInterval is how long StreamXray waits before reconnecting after a
	// recoverable error. Default 1s.
	RetryInterval time.Duration
}

// NewClient returns a client for the server at baseURI. A nil logger is
// replaced with a no-op logger.
func NewClient(client HTTPClient, baseURI string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:        client,
		uri:           strings.TrimSuffix(baseURI, "/"),
		logger:        logger,
		RetryInterval: time.Second,
	}
}

// Samples returns summaries of the remote detail samples, newest first.
func (c *Client) Samples(ctx context.Context) ([]SampleSummary, error) {
	var res SamplesData
	if err := c.do(ctx, "GET", "/samples", nil, &res); err != nil {
		return nil, err
	}
	return res.Samples, nil
}

// Sample returns the raw JSON of a remote detail sample.
func (c *Client) Sample(ctx context.Context, id string) (json.RawMessage, error) {
	var res struct {
		Sample json.RawMessage `json:"sample"`
	}
	if err := c.do(ctx, "GET", "/samples/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return res.Sample, nil
}

// Count returns the number of distinct samples retained by the remote sampler.
func (c *Client) Count(ctx context.Context) (int, error) {
	var res CountData
	if err := c.do(ctx, "GET", "/count", nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Reset discards every sample retained by the remote sampler.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, "POST", "/reset", nil, &CountData{})
}

// ActivateXraySession activates an xray session on the remote sampler, and
// returns every active session.
func (c *Client) ActivateXraySession(ctx context.Context, sess ttbuffer.XraySession) ([]ttbuffer.XraySession, error) {
	var res XraySessionsData
	if err := c.do(ctx, "POST", "/xray/sessions", sess, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

// DeactivateXraySession deactivates an xray session on the remote sampler,
// and returns every remaining active session.
func (c *Client) DeactivateXraySession(ctx context.Context, id uint64) ([]ttbuffer.XraySession, error) {
	var res XraySessionsData
	if err := c.do(ctx, "DELETE", "/xray/sessions/"+strconv.FormatUint(id, 10), nil, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) (err error) {
	defer func() {
		if err != nil {
			c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		}
	}()

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.uri+path, r)
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json; charset=utf-8")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute HTTP request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		var e ErrorData
		if json.NewDecoder(res.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("HTTP response %d: %s", res.StatusCode, e.Error)
		}
		return fmt.Errorf("HTTP response %d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// StreamXray streams segment events from the remote server to ch, optionally
// limited to a single session. It returns when the context is canceled, the
// server closes the stream, or a non-recoverable error occurs.
func (c *Client) StreamXray(ctx context.Context, session uint64, ch chan<- ttbuffer.SegmentEvent) error {
	// The request deliberately has no context: EventSource treats context
	// cancelation as recoverable, and would wait a retry interval before Read
	// returns. Closing the event source stops it instead.
	uri, err := url.Parse(c.uri + "/xray/stream")
	if err != nil {
		return fmt.Errorf("parse URI: %w", err)
	}
	if session != 0 {
		query := uri.Query()
		query.Set("session", strconv.FormatUint(session, 10))
		uri.RawQuery = query.Encode()
	}

	req, err := http.NewRequest("GET", uri.String(), nil)
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}

	es := eventsource.New(req, c.RetryInterval)
	stopc := make(chan struct{})
	defer close(stopc)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopc:
		}
		es.Close()
	}()

	for {
		ev, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		switch ev.Type {
		case "segment":
			var sev ttbuffer.SegmentEvent
			if err := json.Unmarshal(ev.Data, &sev); err != nil {
				return fmt.Errorf("decode segment event: %w", err)
			}
			select {
			case ch <- sev:
			case <-ctx.Done():
				return ctx.Err()
			}

		case "init", "stats":
			c.logger.Debug("stream event", zap.String("type", ev.Type), zap.ByteString("data", ev.Data))

		default:
			c.logger.Debug("unknown stream event type", zap.String("type", ev.Type))
		}
	}
}
