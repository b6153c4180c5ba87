package ttpubsub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterbourgon/ttrace/internal/ttpubsub"
	"go.uber.org/goleak"
)

func TestBroker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		ctx, cancel = context.WithCancel(context.Background())
		broker      = ttpubsub.NewBroker[int]()
		ch          = make(chan int, 2)
		done        = make(chan ttpubsub.Stats)
		even        = func(i int) bool { return i%2 == 0 }
	)

	broker.Publish(0) // no subscribers

	go func() {
		stats, err := broker.Subscribe(ctx, even, ch)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe: want %v, have %v", context.Canceled, err)
		}
		done <- stats
	}()

	waitFor(t, broker.Active)

	if _, err := broker.Subscribe(ctx, nil, ch); !errors.Is(err, ttpubsub.ErrAlreadySubscribed) {
		t.Errorf("second Subscribe: want %v, have %v", ttpubsub.ErrAlreadySubscribed, err)
	}

	for i := 1; i <= 8; i++ {
		broker.Publish(i) // 2 and 4 are sent, 6 and 8 are dropped
	}

	if want, have := 2, <-ch; want != have {
		t.Errorf("first value: want %d, have %d", want, have)
	}
	if want, have := 4, <-ch; want != have {
		t.Errorf("second value: want %d, have %d", want, have)
	}

	cancel()
	stats := <-done

	if want, have := (ttpubsub.Stats{Skips: 4, Sends: 2, Drops: 2}), stats; want != have {
		t.Errorf("stats: want %s, have %s", want, have)
	}
	if broker.Active() {
		t.Errorf("broker still active after subscriber left")
	}
	if _, err := broker.Stats(ch); !errors.Is(err, ttpubsub.ErrNotSubscribed) {
		t.Errorf("Stats: want %v, have %v", ttpubsub.ErrNotSubscribed, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(time.Millisecond)
	}
}
