// Package ttconfig is the settings surface consumed by the tracer. Settings are
// flat key/value pairs, and consumers may subscribe to changes of individual
// keys.
package ttconfig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
)

// Setting keys.
const (
	KeyTracerEnabled        = "transaction_tracer.enabled"
	KeyDeveloperMode        = "developer_mode"
	KeyTransactionThreshold = "transaction_tracer.transaction_threshold"
	KeyStackTraceThreshold  = "transaction_tracer.stack_trace_threshold"
	KeyRecordSQL            = "transaction_tracer.record_sql"
	KeyCaptureAttributes    = "transaction_tracer.capture_attributes"
	KeyExplainEnabled       = "transaction_tracer.explain_enabled"
	KeyExplainThreshold     = "transaction_tracer.explain_threshold"
	KeyLimitSegments        = "transaction_tracer.limit_segments"
	KeyDeveloperModeLimit   = "developer_mode.sample_limit"
	KeySyntheticsLimit      = "synthetics.traces_limit"
	KeyXrayMaxSamples       = "xray_session.max_samples"
)

// Defaults returns the default value of every known setting.
func Defaults() map[string]any {
	return map[string]any{
		KeyTracerEnabled:        true,
		KeyDeveloperMode:        false,
		KeyTransactionThreshold: 2 * time.Second,
		KeyStackTraceThreshold:  500 * time.Millisecond,
		KeyRecordSQL:            "obfuscated",
		KeyCaptureAttributes:    true,
		KeyExplainEnabled:       true,
		KeyExplainThreshold:     500 * time.Millisecond,
		KeyLimitSegments:        4000,
		KeyDeveloperModeLimit:   100,
		KeySyntheticsLimit:      20,
		KeyXrayMaxSamples:       10,
	}
}

// Change describes a single update to a setting.
type Change struct {
	Key      string
	Previous any
	Current  any
}

// Registry holds the current value of every setting. It's safe for concurrent
// use. Subscribers registered via OnChange are called synchronously by Set, in
// the goroutine that made the change, after the new value is visible.
type Registry struct {
	mtx    sync.RWMutex
	values map[string]any
	bus    EventBus.Bus
}

// NewRegistry returns a registry with the default settings, updated with the
// given overrides.
func NewRegistry(overrides map[string]any) *Registry {
	values := Defaults()
	for k, v := range overrides {
		values[k] = v
	}
	return &Registry{
		values: values,
		bus:    EventBus.New(),
	}
}

// Set the value of key, and notify subscribers of the change.
func (r *Registry) Set(key string, value any) {
	r.mtx.Lock()
	prev := r.values[key]
	r.values[key] = value
	r.mtx.Unlock()

	r.bus.Publish(topic(key), Change{Key: key, Previous: prev, Current: value})
}

// Get returns the raw value of key.
func (r *Registry) Get(key string) (any, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Keys returns every key with a value, sorted.
func (r *Registry) Keys() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OnChange calls fn whenever key is set. The fn must not call Set. The returned
// func cancels the subscription.
func (r *Registry) OnChange(key string, fn func(Change)) (func(), error) {
	var active atomic.Bool
	active.Store(true)

	if err := r.bus.Subscribe(topic(key), func(c Change) {
		if active.Load() {
			fn(c)
		}
	}); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", key, err)
	}

	// The bus identifies handlers by code pointer, which is shared by every
	// subscription made here, so cancellation only disables the handler.
	return func() { active.Store(false) }, nil
}

func topic(key string) string { return "setting:" + key }

//
//
//

// Bool returns the value of key as a bool. Missing or unparseable values are
// false.
func (r *Registry) Bool(key string) bool {
	v, _ := r.Get(key)
	b, _ := ParseBool(v)
	return b
}

// Int returns the value of key as an int. Missing or unparseable values are
// zero.
func (r *Registry) Int(key string) int {
	v, _ := r.Get(key)
	i, _ := ParseInt(v)
	return i
}

// String returns the value of key as a string.
func (r *Registry) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Duration returns the value of key as a duration. Missing or unparseable
// values are zero.
func (r *Registry) Duration(key string) time.Duration {
	v, _ := r.Get(key)
	d, _ := ParseDuration(v)
	return d
}

// ParseBool converts a setting value to a bool.
func ParseBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("invalid bool %v (%T)", v, v)
	}
}

// ParseInt converts a setting value to an int.
func ParseInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("invalid int %v (%T)", v, v)
	}
}

// ParseDuration converts a setting value to a duration. Durations are taken
// as-is, numbers are interpreted as seconds, and strings may be either Go
// duration strings like "500ms" or numbers of seconds like "0.5".
func ParseDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(x)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", x)
		}
		return time.Duration(f * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("invalid duration %v (%T)", v, v)
	}
}
