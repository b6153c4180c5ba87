package ttbuffer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/internal/ttpubsub"
)

// DefaultXrayMaxSamples is the default number of samples an xray buffer keeps
// per harvest window.
const DefaultXrayMaxSamples = 10

// XraySession is a request, made out of band, to collect traces for a specific
// transaction name.
type XraySession struct {
	ID              uint64        `json:"id"`
	TransactionName string        `json:"transaction_name"`
	Started         time.Time     `json:"started"`
	Duration        time.Duration `json:"duration"`
}

// XraySessions is the registry of active xray sessions. It's safe for
// concurrent use.
type XraySessions struct {
	mtx    sync.RWMutex
	byID   map[uint64]XraySession
	byName map[string]uint64
}

// NewXraySessions returns an empty registry.
func NewXraySessions() *XraySessions {
	return &XraySessions{
		byID:   map[uint64]XraySession{},
		byName: map[string]uint64{},
	}
}

// Activate adds the session to the registry, replacing any existing session
// with the same ID or transaction name.
func (xs *XraySessions) Activate(sess XraySession) {
	xs.mtx.Lock()
	defer xs.mtx.Unlock()

	if prev, ok := xs.byID[sess.ID]; ok {
		delete(xs.byName, prev.TransactionName)
	}
	if prevID, ok := xs.byName[sess.TransactionName]; ok {
		delete(xs.byID, prevID)
	}

	xs.byID[sess.ID] = sess
	xs.byName[sess.TransactionName] = sess.ID
}

// Deactivate removes the session with the given ID, if it exists.
func (xs *XraySessions) Deactivate(id uint64) {
	xs.mtx.Lock()
	defer xs.mtx.Unlock()

	if sess, ok := xs.byID[id]; ok {
		delete(xs.byName, sess.TransactionName)
		delete(xs.byID, id)
	}
}

// Lookup returns the active session for the transaction name.
func (xs *XraySessions) Lookup(transactionName string) (XraySession, bool) {
	xs.mtx.RLock()
	defer xs.mtx.RUnlock()

	id, ok := xs.byName[transactionName]
	if !ok {
		return XraySession{}, false
	}
	return xs.byID[id], true
}

// IsActive returns true if a session with the given ID is active.
func (xs *XraySessions) IsActive(id uint64) bool {
	xs.mtx.RLock()
	defer xs.mtx.RUnlock()

	_, ok := xs.byID[id]
	return ok
}

// Active returns all active sessions, ordered by ID.
func (xs *XraySessions) Active() []XraySession {
	xs.mtx.RLock()
	defer xs.mtx.RUnlock()

	sessions := make([]XraySession, 0, len(xs.byID))
	for _, sess := range xs.byID {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

//
//
//

// SegmentEvent describes a segment entered by a transaction that belongs to an
// active xray session. Events are published as segments are entered, so they
// can be observed before the trace is finished.
type SegmentEvent struct {
	SessionID       uint64    `json:"session_id"`
	SampleID        string    `json:"sample_id"`
	TransactionName string    `json:"transaction_name"`
	Segment         string    `json:"segment"`
	Depth           int       `json:"depth"`
	Entry           time.Time `json:"entry"`
}

// Xray keeps samples that belong to active xray sessions, up to a maximum per
// harvest window. Once the maximum is reached, further samples are rejected
// rather than evicting earlier ones.
type Xray struct {
	enabled  Predicate
	sessions *XraySessions
	max      Limit
	samples  []*ttrace.Sample
	broker   *ttpubsub.Broker[SegmentEvent]
}

var (
	_ Buffer         = (*Xray)(nil)
	_ SegmentVisitor = (*Xray)(nil)
)

// NewXray returns an empty xray buffer over the given sessions. A nil max, or
// one that returns a non-positive value, means DefaultXrayMaxSamples.
func NewXray(sessions *XraySessions, max Limit, enabled Predicate) *Xray {
	return &Xray{
		enabled:  enabled,
		sessions: sessions,
		max:      max,
		broker:   ttpubsub.NewBroker[SegmentEvent](),
	}
}

// Sessions returns the session registry used by the buffer.
func (b *Xray) Sessions() *XraySessions { return b.sessions }

// Enabled implements Buffer.
func (b *Xray) Enabled() bool { return b.enabled.eval() }

// Store keeps s if it belongs to an active xray session, and the buffer isn't
// full.
func (b *Xray) Store(s *ttrace.Sample) {
	if !b.Enabled() || s.XraySessionID() == 0 {
		return
	}
	if len(b.samples) >= b.limit() {
		return
	}
	if !b.sessions.IsActive(s.XraySessionID()) {
		return
	}
	b.samples = append(b.samples, s)
}

// StorePrevious implements Buffer.
func (b *Xray) StorePrevious(samples []*ttrace.Sample) { storeEach(b, samples) }

// HarvestSamples implements Buffer.
func (b *Xray) HarvestSamples() []*ttrace.Sample {
	samples := b.samples
	b.samples = nil
	return samples
}

// Samples implements Buffer.
func (b *Xray) Samples() []*ttrace.Sample {
	return append([]*ttrace.Sample(nil), b.samples...)
}

// Reset implements Buffer.
func (b *Xray) Reset() { b.samples = nil }

func (b *Xray) limit() int {
	if b.max != nil {
		if n := b.max(); n > 0 {
			return n
		}
	}
	return DefaultXrayMaxSamples
}

// VisitSegment publishes a segment event if the builder's transaction belongs
// to an active session and anyone is subscribed. It's called by the goroutine
// that owns the builder, without the sampler lock held.
func (b *Xray) VisitSegment(bld *ttrace.Builder, seg *ttrace.Segment) {
	if seg == nil || !b.broker.Active() || !b.Enabled() {
		return
	}

	sample := bld.Sample()
	sess, ok := b.sessions.Lookup(sample.Name())
	if !ok && sample.XraySessionID() == 0 {
		return
	}
	if !ok {
		sess.ID = sample.XraySessionID()
	}

	b.broker.Publish(SegmentEvent{
		SessionID:       sess.ID,
		SampleID:        sample.ID(),
		TransactionName: sample.Name(),
		Segment:         seg.Name(),
		Depth:           bld.Depth(),
		Entry:           seg.Entry(),
	})
}

// Subscribe forwards segment events that pass allow to ch, until ctx is
// canceled. A nil allow func accepts every event. Sends to ch never block: if
// ch is full, events are dropped. Subscribe blocks until ctx is canceled.
func (b *Xray) Subscribe(ctx context.Context, allow func(SegmentEvent) bool, ch chan<- SegmentEvent) (ttpubsub.Stats, error) {
	return b.broker.Subscribe(ctx, allow, ch)
}

// Stats returns the delivery stats of a subscribed channel.
func (b *Xray) Stats(ch chan<- SegmentEvent) (ttpubsub.Stats, error) {
	return b.broker.Stats(ch)
}

// Subscribed returns true if there is at least one live subscriber.
func (b *Xray) Subscribed() bool { return b.broker.Active() }
