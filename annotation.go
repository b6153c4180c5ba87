package ttrace

import (
	"context"
	"time"
)

// Well-known annotation keys.
const (
	KeySQL       = "sql"
	KeyKey       = "key"
	KeyStatement = "statement"
	KeyBacktrace = "backtrace"
)

// AnnotationKind identifies which field of an annotation is meaningful.
type AnnotationKind uint8

const (
	// KindTag is free-form text, stored in Text.
	KindTag AnnotationKind = iota

	// KindQuery is a database query, stored in Query.
	KindQuery

	// KindKey is the key of a key-value store lookup, stored in Text.
	KindKey

	// KindStatement is a non-SQL datastore statement, stored in Text.
	KindStatement

	// KindBacktrace is a captured call stack, stored in Backtrace.
	KindBacktrace

	// KindOpaque is an arbitrary value, stored in Value. It's the escape hatch
	// for segment parameters that don't fit any other kind.
	KindOpaque
)

func (k AnnotationKind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindQuery:
		return "query"
	case KindKey:
		return "key"
	case KindStatement:
		return "statement"
	case KindBacktrace:
		return "backtrace"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Annotation is a single piece of metadata attached to a segment.
type Annotation struct {
	Kind      AnnotationKind
	Text      string
	Query     *Query
	Backtrace Backtrace
	Value     any
}

// TagAnnotation returns a free-form text annotation, truncated if necessary.
func TagAnnotation(text string) Annotation {
	return Annotation{Kind: KindTag, Text: Truncate(text)}
}

// OpaqueAnnotation returns an annotation carrying an arbitrary value. String
// values are truncated, other values are stored as-is, and must be safe for
// concurrent reads once the sample is finished.
func OpaqueAnnotation(value any) Annotation {
	if s, ok := value.(string); ok {
		return Annotation{Kind: KindOpaque, Value: Truncate(s)}
	}
	return Annotation{Kind: KindOpaque, Value: value}
}

//
//
//

// DriverConfig describes the datastore connection a query was made against.
// The "adapter" key, if present, names the driver.
type DriverConfig map[string]string

// Explainer produces an execution plan for a specific query. It's bound to the
// raw query by the instrumentation that recorded it, and is only invoked when
// a sample is prepared for transport, outside of any lock.
type Explainer func(ctx context.Context) ([]string, error)

// Query is a database query recorded in a segment. The SQL is expected to be
// redacted and truncated before it gets here.
type Query struct {
	SQL       string
	Adapter   string
	Config    DriverConfig
	Duration  time.Duration
	Explainer Explainer
}

// NewQuery returns a query with the adapter taken from the driver config.
func NewQuery(sql string, config DriverConfig, duration time.Duration, explainer Explainer) *Query {
	return &Query{
		SQL:       sql,
		Adapter:   config["adapter"],
		Config:    config,
		Duration:  duration,
		Explainer: explainer,
	}
}
