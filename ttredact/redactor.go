// Package ttredact turns raw query text into a form that's safe to keep in a
// trace.
package ttredact

import (
	"fmt"
	"strings"

	"github.com/DataDog/datadog-agent/pkg/obfuscate"
	"github.com/dgraph-io/ristretto"
	"github.com/peterbourgon/ttrace"
	"go.uber.org/zap"
)

// Mode determines how query text is recorded.
type Mode int

const (
	// ModeObfuscated records queries with literal values replaced by "?".
	ModeObfuscated Mode = iota

	// ModeRaw records queries exactly as they were executed.
	ModeRaw

	// ModeOff doesn't record queries at all.
	ModeOff
)

func (m Mode) String() string {
	switch m {
	case ModeObfuscated:
		return "obfuscated"
	case ModeRaw:
		return "raw"
	case ModeOff:
		return "off"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the value of the record_sql setting. It accepts "off",
// "raw", and "obfuscated", in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "obfuscated":
		return ModeObfuscated, nil
	case "raw":
		return ModeRaw, nil
	case "off", "none", "false":
		return ModeOff, nil
	default:
		return ModeObfuscated, fmt.Errorf("invalid record_sql mode %q", s)
	}
}

// ObfuscationFailed replaces query text that couldn't be obfuscated.
const ObfuscationFailed = "(failed to obfuscate query)"

const (
	cacheEntriesMin     = 0
	cacheEntriesDefault = 1000
	cacheEntriesMax     = 1_000_000
)

// Config for a redactor.
type Config struct {
	// CacheEntries is the number of obfuscated queries to remember. Zero means
	// a default of 1000, and a negative value disables the cache.
	CacheEntries int

	// Logger is optional.
	Logger *zap.Logger
}

func (cfg *Config) sanitize() {
	switch {
	case cfg.CacheEntries == 0:
		cfg.CacheEntries = cacheEntriesDefault
	case cfg.CacheEntries < cacheEntriesMin:
		cfg.CacheEntries = cacheEntriesMin
	case cfg.CacheEntries > cacheEntriesMax:
		cfg.CacheEntries = cacheEntriesMax
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Redactor captures and redacts query text. It's safe for concurrent use.
type Redactor struct {
	obfuscator *obfuscate.Obfuscator
	cache      *ristretto.Cache // nil if disabled
	logger     *zap.Logger
}

// NewRedactor returns a redactor for the given config. Callers should Close
// the redactor when it's no longer needed.
func NewRedactor(cfg Config) (*Redactor, error) {
	cfg.sanitize()

	var cache *ristretto.Cache
	if cfg.CacheEntries > 0 {
		c, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(cfg.CacheEntries) * 10,
			MaxCost:     int64(cfg.CacheEntries),
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		cache = c
	}

	return &Redactor{
		obfuscator: obfuscate.NewObfuscator(obfuscate.Config{}),
		cache:      cache,
		logger:     cfg.Logger,
	}, nil
}

// Capture returns the query text truncated to ttrace.MaxDataLength.
func (r *Redactor) Capture(query string) string {
	return ttrace.Truncate(query)
}

// Redact returns the text to record for query in the given mode, and false if
// the query shouldn't be recorded at all.
func (r *Redactor) Redact(query string, mode Mode) (string, bool) {
	switch mode {
	case ModeOff:
		return "", false
	case ModeRaw:
		return r.Capture(query), true
	default:
		return r.Capture(r.Obfuscate(query)), true
	}
}

// Obfuscate replaces the literal values in query with "?". If the query can't
// be parsed, it returns ObfuscationFailed.
func (r *Redactor) Obfuscate(query string) string {
	if r.cache != nil {
		if v, ok := r.cache.Get(query); ok {
			return v.(string)
		}
	}

	var result string
	oq, err := r.obfuscator.ObfuscateSQLString(query)
	switch {
	case err != nil:
		r.logger.Debug("obfuscate query failed", zap.Error(err), zap.Int("query_len", len(query)))
		result = ObfuscationFailed
	default:
		result = oq.Query
	}

	if r.cache != nil {
		r.cache.Set(query, result, 1)
	}

	return result
}

// Close releases the resources held by the redactor.
func (r *Redactor) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
	r.obfuscator.Stop()
}
