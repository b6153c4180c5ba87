package ttrace

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/tinylib/msgp/msgp"
)

// PrepareOptions control how a sample is prepared for transport.
type PrepareOptions struct {
	// ExplainEnabled controls whether query explainers are invoked at all.
	ExplainEnabled bool

	// ExplainThreshold is the minimum query duration for which an explain plan
	// is produced. Zero means every query with an explainer is explained.
	ExplainThreshold time.Duration

	// CompressionLevel is passed to zlib. Zero means zlib.DefaultCompression.
	CompressionLevel int
}

// Prepared is a sample ready to be handed to a transport. The payload is the
// zlib-compressed msgpack encoding of the sample and its segment tree.
type Prepared struct {
	Sample  *Sample
	Payload []byte
}

// Prepare encodes the sample for transport. It invokes the explainers of slow
// queries, so it can be expensive, and should never be called while holding a
// lock. Prepare never modifies the sample.
//
// Prepare returns ErrNotFinished if the sample isn't finished. Panics raised by
// explainers or while encoding are recovered and returned as errors.
func (s *Sample) Prepare(ctx context.Context, opts PrepareOptions) (p *Prepared, err error) {
	if !s.finished {
		return nil, ErrNotFinished
	}

	defer func() {
		if x := recover(); x != nil {
			p, err = nil, fmt.Errorf("prepare sample %s: panic: %v", s.ID(), x)
		}
	}()

	raw, err := s.appendMsg(ctx, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("prepare sample %s: encode: %w", s.ID(), err)
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = zlib.DefaultCompression
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("prepare sample %s: compress: %w", s.ID(), err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("prepare sample %s: compress: %w", s.ID(), err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("prepare sample %s: compress: %w", s.ID(), err)
	}

	return &Prepared{Sample: s, Payload: buf.Bytes()}, nil
}

func (s *Sample) appendMsg(ctx context.Context, b []byte, opts PrepareOptions) ([]byte, error) {
	var err error

	b = msgp.AppendMapHeader(b, 10)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, s.ID())
	b = msgp.AppendString(b, "start_ms")
	b = msgp.AppendInt64(b, s.start.UnixMilli())
	b = msgp.AppendString(b, "duration_us")
	b = msgp.AppendInt64(b, s.duration.Microseconds())
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, s.name)
	b = msgp.AppendString(b, "uri")
	b = msgp.AppendString(b, s.uri)
	b = msgp.AppendString(b, "guid")
	b = msgp.AppendString(b, s.guid)
	b = msgp.AppendString(b, "force_persist")
	b = msgp.AppendBool(b, s.forcePersist)

	b = msgp.AppendString(b, "request_params")
	if b, err = msgp.AppendMapStrIntf(b, s.requestParams); err != nil {
		return b, fmt.Errorf("request params: %w", err)
	}

	b = msgp.AppendString(b, "custom_params")
	if b, err = msgp.AppendMapStrIntf(b, s.customParams); err != nil {
		return b, fmt.Errorf("custom params: %w", err)
	}

	b = msgp.AppendString(b, "root")
	return s.root.appendMsg(ctx, b, s.start, opts)
}

// Segment times are encoded in microseconds relative to the sample start.
func (seg *Segment) appendMsg(ctx context.Context, b []byte, start time.Time, opts PrepareOptions) ([]byte, error) {
	var err error

	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, seg.name)
	b = msgp.AppendString(b, "entry_us")
	b = msgp.AppendInt64(b, seg.entry.Sub(start).Microseconds())
	b = msgp.AppendString(b, "exit_us")
	b = msgp.AppendInt64(b, seg.exit.Sub(start).Microseconds())

	b = msgp.AppendString(b, "annotations")
	keys := seg.AnnotationKeys()
	b = msgp.AppendMapHeader(b, uint32(len(keys)))
	for _, k := range keys {
		b = msgp.AppendString(b, k)
		if b, err = seg.annotations[k].appendMsg(ctx, b, opts); err != nil {
			return b, fmt.Errorf("segment %s: annotation %s: %w", seg.name, k, err)
		}
	}

	b = msgp.AppendString(b, "children")
	b = msgp.AppendArrayHeader(b, uint32(len(seg.children)))
	for _, child := range seg.children {
		if b, err = child.appendMsg(ctx, b, start, opts); err != nil {
			return b, err
		}
	}

	return b, nil
}

func (a Annotation) appendMsg(ctx context.Context, b []byte, opts PrepareOptions) ([]byte, error) {
	switch a.Kind {
	case KindTag, KindKey, KindStatement:
		return msgp.AppendString(b, a.Text), nil

	case KindQuery:
		if a.Query == nil {
			return msgp.AppendNil(b), nil
		}
		return a.Query.appendMsg(ctx, b, opts), nil

	case KindBacktrace:
		b = msgp.AppendArrayHeader(b, uint32(len(a.Backtrace)))
		for _, c := range a.Backtrace {
			b = msgp.AppendString(b, c.Function+" "+c.FileLine)
		}
		return b, nil

	default:
		return msgp.AppendIntf(b, a.Value)
	}
}

func (q *Query) appendMsg(ctx context.Context, b []byte, opts PrepareOptions) []byte {
	fields := uint32(3)
	explain := opts.ExplainEnabled && q.Explainer != nil && q.Duration >= opts.ExplainThreshold
	if explain {
		fields++
	}

	b = msgp.AppendMapHeader(b, fields)
	b = msgp.AppendString(b, "sql")
	b = msgp.AppendString(b, q.SQL)
	b = msgp.AppendString(b, "adapter")
	b = msgp.AppendString(b, q.Adapter)
	b = msgp.AppendString(b, "duration_us")
	b = msgp.AppendInt64(b, q.Duration.Microseconds())

	if explain {
		plan, err := q.Explainer(ctx)
		if err != nil {
			b = msgp.AppendString(b, "explain_error")
			return msgp.AppendString(b, err.Error())
		}
		b = msgp.AppendString(b, "explain")
		b = msgp.AppendArrayHeader(b, uint32(len(plan)))
		for _, line := range plan {
			b = msgp.AppendString(b, line)
		}
	}

	return b
}
