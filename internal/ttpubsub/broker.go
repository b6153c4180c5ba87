// Package ttpubsub provides a non-blocking publish/subscribe broker, used to
// stream segment events to live observers.
package ttpubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadySubscribed is returned by Subscribe when the channel is already
	// subscribed to the broker.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNotSubscribed is returned by Stats for unknown channels.
	ErrNotSubscribed = errors.New("not subscribed")
)

// Broker delivers published values to every subscriber whose allow func
// accepts them. Publish never blocks: if a subscriber's channel is full, the
// value is dropped for that subscriber, and counted.
type Broker[T any] struct {
	mtx         sync.Mutex
	subscribers map[chan<- T]*subscriber[T]
	active      atomic.Bool
}

type subscriber[T any] struct {
	allow func(T) bool
	ch    chan<- T
	stats Stats
}

// NewBroker returns an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: map[chan<- T]*subscriber[T]{},
	}
}

// Active returns true if there is at least one subscriber. Publishers can use
// it to skip building values that nobody will receive.
func (b *Broker[T]) Active() bool {
	return b.active.Load()
}

// Publish val to all subscribers.
func (b *Broker[T]) Publish(val T) {
	if !b.active.Load() { // optimization
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	for _, sub := range b.subscribers {
		if sub.allow != nil && !sub.allow(val) {
			sub.stats.Skips++
			continue
		}
		select {
		case sub.ch <- val:
			sub.stats.Sends++
		default:
			sub.stats.Drops++
		}
	}
}

// Subscribe forwards published values that pass allow to ch, until the context
// is canceled. A nil allow func accepts every value. Subscribe blocks until the
// context is canceled, and returns stats for the subscription along with the
// context error.
func (b *Broker[T]) Subscribe(ctx context.Context, allow func(T) bool, ch chan<- T) (Stats, error) {
	if err := func() error {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		if _, ok := b.subscribers[ch]; ok {
			return ErrAlreadySubscribed
		}

		b.subscribers[ch] = &subscriber[T]{
			allow: allow,
			ch:    ch,
		}

		b.active.Store(true)

		return nil
	}(); err != nil {
		return Stats{}, err
	}

	<-ctx.Done()

	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub := b.subscribers[ch]
	delete(b.subscribers, ch)
	b.active.Store(len(b.subscribers) > 0)

	return sub.stats, ctx.Err()
}

// Stats returns the current stats for the subscription of ch.
func (b *Broker[T]) Stats(ch chan<- T) (Stats, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, ErrNotSubscribed
	}

	return sub.stats, nil
}

// Stats counts how published values were handled for a single subscriber.
type Stats struct {
	Skips uint64 `json:"skips"`
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

func (s Stats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}
