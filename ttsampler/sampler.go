// Package ttsampler decides which transaction traces to keep. The sampler
// associates a builder with each traced execution context, offers finished
// samples to every retention buffer, and hands retained samples to a harvester.
package ttsampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/internal/ttutil"
	"github.com/peterbourgon/ttrace/ttbuffer"
	"github.com/peterbourgon/ttrace/ttconfig"
	"github.com/peterbourgon/ttrace/ttredact"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Custom parameter keys stamped on finished samples.
const (
	ParamGCTime               = "gc_time"
	ParamTripID               = "nr.trip_id"
	ParamPathHash             = "nr.path_hash"
	ParamSyntheticsResourceID = "nr.synthetics_resource_id"
	ParamSyntheticsJobID      = "nr.synthetics_job_id"
	ParamSyntheticsMonitorID  = "nr.synthetics_monitor_id"
)

// Settings is the configuration surface consumed by the sampler. It's
// implemented by *ttconfig.Registry.
type Settings interface {
	Bool(key string) bool
	Int(key string) int
	String(key string) string
	Duration(key string) time.Duration
	OnChange(key string, fn func(ttconfig.Change)) (func(), error)
}

var _ Settings = (*ttconfig.Registry)(nil)

// Config for a sampler.
type Config struct {
	// Settings are required.
	Settings Settings

	// Redactor is optional. If not provided, the sampler creates and owns one.
	Redactor *ttredact.Redactor

	// XraySessions is optional. If not provided, an empty registry is used.
	XraySessions *ttbuffer.XraySessions

	// Logger is optional.
	Logger *zap.Logger

	// Registerer is optional. If not provided, metrics aren't registered.
	Registerer prometheus.Registerer
}

func (cfg *Config) sanitize() error {
	if cfg.Settings == nil {
		return fmt.Errorf("settings are required")
	}
	if cfg.XraySessions == nil {
		cfg.XraySessions = ttbuffer.NewXraySessions()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Sampler owns the retention buffers, and implements Tracer.
type Sampler struct {
	settings     Settings
	redactor     *ttredact.Redactor
	ownsRedactor bool
	logger       *zap.Logger
	metrics      *metrics
	recordSQL    *ttutil.Atomic[ttredact.Mode]
	unsubscribe  []func()

	detail       *ttbuffer.Detail
	xray         *ttbuffer.Xray
	slowest      *ttbuffer.Slowest
	synthetics   *ttbuffer.Synthetics
	forcePersist *ttbuffer.ForcePersist
	visitors     []ttbuffer.SegmentVisitor

	mtx        sync.Mutex
	buffers    []ttbuffer.Buffer
	lastSample *ttrace.Sample
}

// NewSampler returns a sampler for the given config. Callers should Close the
// sampler when it's no longer needed.
func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.sanitize(); err != nil {
		return nil, err
	}

	redactor, ownsRedactor := cfg.Redactor, false
	if redactor == nil {
		r, err := ttredact.NewRedactor(ttredact.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("create redactor: %w", err)
		}
		redactor, ownsRedactor = r, true
	}

	settings := cfg.Settings
	var (
		tracerEnabled = func() bool { return settings.Bool(ttconfig.KeyTracerEnabled) }
		developerMode = func() bool { return settings.Bool(ttconfig.KeyDeveloperMode) }
		threshold     = func() time.Duration { return settings.Duration(ttconfig.KeyTransactionThreshold) }
		xrayMax       = func() int { return settings.Int(ttconfig.KeyXrayMaxSamples) }
	)

	s := &Sampler{
		settings:     settings,
		redactor:     redactor,
		ownsRedactor: ownsRedactor,
		logger:       cfg.Logger,
		metrics:      newMetrics(cfg.Registerer),
		recordSQL:    ttutil.NewAtomic(parseRecordSQL(settings.String(ttconfig.KeyRecordSQL))),

		detail:       ttbuffer.NewDetail(settings.Int(ttconfig.KeyDeveloperModeLimit), developerMode),
		xray:         ttbuffer.NewXray(cfg.XraySessions, xrayMax, tracerEnabled),
		slowest:      ttbuffer.NewSlowest(tracerEnabled, threshold),
		synthetics:   ttbuffer.NewSynthetics(settings.Int(ttconfig.KeySyntheticsLimit), tracerEnabled),
		forcePersist: ttbuffer.NewForcePersist(tracerEnabled),
	}

	s.buffers = []ttbuffer.Buffer{s.detail, s.xray, s.slowest, s.synthetics, s.forcePersist}
	s.visitors = []ttbuffer.SegmentVisitor{s.detail, s.xray}

	if err := s.subscribe(); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Debug("transaction sampler created",
		zap.Bool("enabled", s.Enabled()),
		zap.Duration("threshold", threshold()),
		zap.Stringer("record_sql", s.recordSQL.Get()),
	)

	return s, nil
}

func (s *Sampler) subscribe() error {
	for key, fn := range map[string]func(ttconfig.Change){
		ttconfig.KeyTracerEnabled: func(c ttconfig.Change) {
			s.logger.Debug("transaction tracer enabled changed",
				zap.Bool("enabled", s.settings.Bool(ttconfig.KeyTracerEnabled)),
				zap.Duration("threshold", s.settings.Duration(ttconfig.KeyTransactionThreshold)),
			)
		},
		ttconfig.KeyRecordSQL: func(c ttconfig.Change) {
			mode := parseRecordSQL(s.settings.String(ttconfig.KeyRecordSQL))
			if prev := s.recordSQL.Swap(mode); prev != mode {
				s.logger.Info("record_sql changed", zap.Stringer("previous", prev), zap.Stringer("current", mode))
			}
			if mode == ttredact.ModeRaw {
				s.logger.Warn("transaction tracer is configured to record raw SQL")
			}
		},
		ttconfig.KeyDeveloperModeLimit: func(c ttconfig.Change) {
			s.resize("detail", s.detail.Resize, s.settings.Int(ttconfig.KeyDeveloperModeLimit))
		},
		ttconfig.KeySyntheticsLimit: func(c ttconfig.Change) {
			s.resize("synthetics", s.synthetics.Resize, s.settings.Int(ttconfig.KeySyntheticsLimit))
		},
	} {
		unsubscribe, err := s.settings.OnChange(key, fn)
		if err != nil {
			return fmt.Errorf("subscribe to settings: %w", err)
		}
		s.unsubscribe = append(s.unsubscribe, unsubscribe)
	}
	return nil
}

func (s *Sampler) resize(name string, resize func(int) []*ttrace.Sample, capacity int) {
	if capacity <= 0 {
		s.logger.Warn("ignoring invalid buffer capacity", zap.String("buffer", name), zap.Int("capacity", capacity))
		return
	}

	s.mtx.Lock()
	evicted := resize(capacity)
	s.mtx.Unlock()

	s.logger.Debug("buffer resized", zap.String("buffer", name), zap.Int("capacity", capacity), zap.Int("evicted", len(evicted)))
}

func parseRecordSQL(s string) ttredact.Mode {
	mode, err := ttredact.ParseMode(s)
	if err != nil {
		return ttredact.ModeObfuscated
	}
	return mode
}

// Close releases resources held by the sampler. It doesn't affect retained
// samples.
func (s *Sampler) Close() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	if s.ownsRedactor {
		s.redactor.Close()
	}
}

// Enabled returns true if the transaction tracer or developer mode is enabled.
func (s *Sampler) Enabled() bool {
	return s.settings.Bool(ttconfig.KeyTracerEnabled) || s.settings.Bool(ttconfig.KeyDeveloperMode)
}

// Xray returns the xray buffer, which can be used to stream segment events.
func (s *Sampler) Xray() *ttbuffer.Xray { return s.xray }

//
//
//

// OnStartTransaction starts a trace for the state, if tracing is enabled and
// the state is traced. Otherwise, it clears any builder associated with the
// state. If the state already has a builder, it's kept.
func (s *Sampler) OnStartTransaction(st *State, t time.Time, uri string) {
	if st == nil {
		return
	}

	if !s.Enabled() || !st.Traced() {
		st.SetBuilder(nil)
		return
	}

	if st.Builder() == nil {
		b := ttrace.NewBuilder(t)
		b.SetSegmentLimit(s.settings.Int(ttconfig.KeyLimitSegments))
		st.SetBuilder(b)
	}

	st.Builder().SetURI(uri)
}

// PushFrame enters a new segment in the state's trace, and lets every segment
// visitor observe it. It returns nil if there's no active trace.
func (s *Sampler) PushFrame(st *State, name string, t time.Time) *ttrace.Segment {
	b := st.Builder()
	if b == nil {
		return nil
	}

	seg := b.EnterSegment(name, t)
	if seg == nil {
		return nil
	}

	for _, v := range s.visitors {
		v.VisitSegment(b, seg)
	}

	return seg
}

// PopFrame exits the segment in the state's trace. It returns ErrFinished if
// the trace was already finished, which indicates a lifecycle bug in the
// caller, and ErrSegmentNotOpen if the segment was already exited.
func (s *Sampler) PopFrame(st *State, seg *ttrace.Segment, t time.Time) error {
	b := st.Builder()
	if b == nil {
		return nil
	}

	if b.Finished() {
		return ttrace.ErrFinished
	}

	return b.ExitSegment(seg, t)
}

// SetTransactionName names the state's trace before it's finished, so that
// xray sessions can match it while it's still in progress.
func (s *Sampler) SetTransactionName(st *State, name string) {
	if b := st.Builder(); b != nil {
		b.SetTransactionName(name)
	}
}

// IgnoreTransaction marks the state's trace as ignored. It will be discarded
// when it's finished.
func (s *Sampler) IgnoreTransaction(st *State) {
	if b := st.Builder(); b != nil {
		b.Ignore()
	}
}

// NoticeTransactionCPUTime records the CPU time used by the transaction.
func (s *Sampler) NoticeTransactionCPUTime(st *State, d time.Duration) {
	if b := st.Builder(); b != nil {
		b.SetCPUTime(d)
	}
}

// OnFinishingTransaction detaches the builder from the state, finishes the
// trace, stamps metadata from the transaction, and offers the sample to every
// retention buffer. It returns the finished sample, or nil if there was no
// active trace, tracing is disabled, or the trace was ignored.
func (s *Sampler) OnFinishingTransaction(st *State, txn Transaction, t time.Time) *ttrace.Sample {
	b := st.Builder()
	if b == nil {
		return nil
	}

	st.SetBuilder(nil)

	if !s.Enabled() {
		return nil
	}

	if b.Ignored() {
		s.metrics.ignored.Inc()
		return nil
	}

	name := txn.BestName()
	b.SetRequestParams(txn.FilteredParams())
	b.SetTransactionName(name)
	b.SetGUID(txn.GUID())
	b.SetForcePersist(txn.ForcePersist())

	if sess, ok := s.xray.Sessions().Lookup(name); ok {
		b.SetXraySessionID(sess.ID)
	}

	if gc, ok := txn.GCTime(); ok {
		b.SetCustomParam(ParamGCTime, gc.Seconds())
	}

	if ca := st.CrossApp; ca != nil {
		b.SetCustomParam(ParamTripID, ca.TripID)
		b.SetCustomParam(ParamPathHash, ca.PathHash)
	}

	if syn := st.Synthetics; syn != nil {
		b.SetCustomParam(ParamSyntheticsResourceID, syn.ResourceID)
		b.SetCustomParam(ParamSyntheticsJobID, syn.JobID)
		b.SetCustomParam(ParamSyntheticsMonitorID, syn.MonitorID)
		b.SetSyntheticsResourceID(syn.ResourceID)
	}

	var custom map[string]any
	if s.settings.Bool(ttconfig.KeyCaptureAttributes) {
		custom = txn.CustomParams()
	}

	sample, err := b.Finish(t, custom)
	if err != nil {
		s.logger.Error("finish transaction trace", zap.String("transaction", name), zap.Error(err))
		return nil
	}

	if n := sample.ForceClosed(); n > 0 {
		s.metrics.forceClosed.Add(float64(n))
		s.logger.Debug("segments force-closed", zap.String("transaction", name), zap.Int("count", n))
	}
	if n := sample.Truncated(); n > 0 {
		s.metrics.truncated.Add(float64(n))
	}

	s.store(sample)

	return sample
}

func (s *Sampler) store(sample *ttrace.Sample) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.lastSample = sample
	for _, b := range s.buffers {
		b.Store(sample)
	}
	s.metrics.stored.Inc()
}

//
//
//

// NoticeQuery records a query on the current segment of the state's trace,
// according to the record_sql setting. The explainer, if provided, is called
// only if the sample is harvested and the query was slow.
func (s *Sampler) NoticeQuery(st *State, sql string, config ttrace.DriverConfig, duration time.Duration, explainer ttrace.Explainer) {
	b := st.Builder()
	if b == nil || st.SQLUntraced {
		return
	}

	text, ok := s.redactor.Redact(sql, s.recordSQL.Get())
	if !ok {
		return
	}

	seg := b.CurrentSegment()
	b.AnnotateQuery(seg, ttrace.NewQuery(text, config, duration, explainer))
	s.attachBacktrace(b, seg, duration)
}

// NoticeKeyValueLookup records the key of a key-value store lookup on the
// current segment of the state's trace.
func (s *Sampler) NoticeKeyValueLookup(st *State, key string, duration time.Duration) {
	b := st.Builder()
	if b == nil {
		return
	}

	seg := b.CurrentSegment()
	b.AnnotateKey(seg, key)
	s.attachBacktrace(b, seg, duration)
}

// NoticeStatement records a non-SQL datastore statement on the current segment
// of the state's trace.
func (s *Sampler) NoticeStatement(st *State, statement string, duration time.Duration) {
	b := st.Builder()
	if b == nil {
		return
	}

	seg := b.CurrentSegment()
	b.AnnotateStatement(seg, statement)
	s.attachBacktrace(b, seg, duration)
}

// SetSegmentParameters sets parameters on the current segment of the state's
// trace.
func (s *Sampler) SetSegmentParameters(st *State, params map[string]any) {
	b := st.Builder()
	if b == nil {
		return
	}

	b.AnnotateParams(b.CurrentSegment(), params)
}

func (s *Sampler) attachBacktrace(b *ttrace.Builder, seg *ttrace.Segment, duration time.Duration) {
	b.AttachBacktraceIfSlow(seg, duration, s.settings.Duration(ttconfig.KeyStackTraceThreshold))
}

//
//
//

// Harvest drains every retention buffer, and returns the distinct retained
// samples, prepared for transport. Samples that fail preparation are logged and
// dropped. Harvest returns nothing if tracing is disabled.
func (s *Sampler) Harvest(ctx context.Context) []*ttrace.Prepared {
	if !s.Enabled() {
		return nil
	}

	samples := func() []*ttrace.Sample {
		s.mtx.Lock()
		defer s.mtx.Unlock()

		s.lastSample = nil

		var all []*ttrace.Sample
		for _, b := range s.buffers {
			all = append(all, b.HarvestSamples()...)
		}
		return unique(all)
	}()

	return s.prepare(ctx, samples)
}

func (s *Sampler) prepare(ctx context.Context, samples []*ttrace.Sample) []*ttrace.Prepared {
	opts := ttrace.PrepareOptions{
		ExplainEnabled:   s.settings.Bool(ttconfig.KeyExplainEnabled),
		ExplainThreshold: s.settings.Duration(ttconfig.KeyExplainThreshold),
	}

	prepared := make([]*ttrace.Prepared, 0, len(samples))
	for _, sample := range samples {
		p, err := sample.Prepare(ctx, opts)
		if err != nil {
			s.metrics.prepareFailures.Inc()
			s.logger.Error("failed to prepare transaction trace",
				zap.String("sample", sample.ID()),
				zap.String("transaction", sample.Name()),
				zap.Error(err),
			)
			continue
		}
		prepared = append(prepared, p)
	}

	s.metrics.harvested.Add(float64(len(prepared)))

	return prepared
}

// Merge offers samples from a previous harvest back to every retention buffer,
// e.g. because they couldn't be delivered. Each buffer applies its own policy,
// as if the samples were stored fresh.
func (s *Sampler) Merge(previous []*ttrace.Sample) {
	if len(previous) == 0 {
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, b := range s.buffers {
		b.StorePrevious(previous)
	}

	s.metrics.merged.Add(float64(len(previous)))
}

// Reset empties every retention buffer, and clears the last sample.
func (s *Sampler) Reset() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.lastSample = nil
	for _, b := range s.buffers {
		b.Reset()
	}
}

// Count returns the number of distinct samples retained by all buffers.
func (s *Sampler) Count() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var all []*ttrace.Sample
	for _, b := range s.buffers {
		all = append(all, b.Samples()...)
	}
	return len(unique(all))
}

// LastSample returns the most recently stored sample, or nil if there hasn't
// been one since the last harvest or reset.
func (s *Sampler) LastSample() *ttrace.Sample {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lastSample
}

// DetailSamples returns the samples kept by the detail buffer, oldest first.
func (s *Sampler) DetailSamples() []*ttrace.Sample {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.detail.Samples()
}

// unique removes duplicate samples, preserving the order of first appearance.
func unique(samples []*ttrace.Sample) []*ttrace.Sample {
	seen := make(map[*ttrace.Sample]struct{}, len(samples))
	res := samples[:0]
	for _, s := range samples {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		res = append(res, s)
	}
	return res
}
