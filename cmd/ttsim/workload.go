package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttsampler"
	"go.uber.org/zap"
)

type route struct {
	name    string
	uri     string
	queries []string
	lookups []string
	view    string
	ignored bool
}

var routes = []route{
	{
		name:    "Controller/users/index",
		uri:     "/users",
		queries: []string{"SELECT * FROM users WHERE org_id = 17 LIMIT 50", "SELECT count(*) FROM users WHERE org_id = 17"},
		view:    "View/users/index",
	},
	{
		name:    "Controller/users/show",
		uri:     "/users/42",
		queries: []string{"SELECT * FROM users WHERE id = 42", "SELECT * FROM sessions WHERE user_id = 42 AND token = 'c2VjcmV0'"},
		lookups: []string{"user:42:profile"},
		view:    "View/users/show",
	},
	{
		name:    "Controller/orders/create",
		uri:     "/orders",
		queries: []string{"INSERT INTO orders (user_id, total) VALUES (42, 1999)", "UPDATE inventory SET count = count - 1 WHERE sku = 'ABC-1'"},
		lookups: []string{"cart:42"},
	},
	{
		name:    "Controller/search/index",
		uri:     "/search?q=widgets",
		queries: []string{"SELECT * FROM products WHERE name LIKE '%widgets%' ORDER BY rank DESC"},
		view:    "View/search/index",
	},
	{
		name:    "Controller/health/check",
		uri:     "/health",
		ignored: true,
	},
}

type worker struct {
	id       int
	tracer   ttsampler.Tracer
	interval time.Duration
	logger   *zap.Logger
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(w.interval)):
			w.transaction(routes[rand.IntN(len(routes))])
		}
	}
}

func (w *worker) transaction(r route) {
	var (
		tr = w.tracer
		st = &ttsampler.State{}
	)

	if rand.IntN(50) == 0 {
		st.Synthetics = &ttsampler.Synthetics{ResourceID: fmt.Sprintf("res-%d", rand.IntN(1000)), JobID: "job-1", MonitorID: "monitor-1"}
	}
	if rand.IntN(10) == 0 {
		st.CrossApp = &ttsampler.CrossApp{TripID: fmt.Sprintf("trip-%d-%d", w.id, rand.IntN(1e6)), PathHash: "5e1f9a"}
	}

	start := time.Now()
	tr.OnStartTransaction(st, start, r.uri)
	tr.SetTransactionName(st, r.name)
	if r.ignored {
		tr.IgnoreTransaction(st)
	}

	outer := tr.PushFrame(st, r.name, time.Now())
	work(time.Millisecond)

	for _, key := range r.lookups {
		seg := tr.PushFrame(st, "Datastore/redis/get", time.Now())
		took := work(500 * time.Microsecond)
		tr.NoticeKeyValueLookup(st, key, took)
		w.pop(st, seg)
	}

	for _, sql := range r.queries {
		seg := tr.PushFrame(st, "Datastore/postgres/query", time.Now())
		took := work(5 * time.Millisecond)
		tr.NoticeQuery(st, sql, ttrace.DriverConfig{"adapter": "postgres"}, took, explain)
		w.pop(st, seg)
	}

	if r.view != "" {
		seg := tr.PushFrame(st, r.view, time.Now())
		tr.SetSegmentParameters(st, map[string]any{"template": r.view})
		work(2 * time.Millisecond)
		w.pop(st, seg)
	}

	w.pop(st, outer)

	tr.NoticeTransactionCPUTime(st, time.Since(start)/3)
	tr.OnFinishingTransaction(st, &transaction{
		name:   r.name,
		guid:   fmt.Sprintf("%d-%x", w.id, rand.Uint64()),
		force:  rand.IntN(100) == 0,
		params: map[string]any{"uri": r.uri},
		custom: map[string]any{"worker": w.id},
	}, time.Now())
}

// pop exits seg, logging unpaired pops.
func (w *worker) pop(st *ttsampler.State, seg *ttrace.Segment) {
	if err := w.tracer.PopFrame(st, seg, time.Now()); err != nil {
		w.logger.Debug("pop frame failed", zap.Int("worker", w.id), zap.Error(err))
	}
}

// work sleeps for a random duration around mean, and returns how long it slept.
// Now and then it takes much longer, to produce slow transactions.
func work(mean time.Duration) time.Duration {
	d := jitter(mean)
	if rand.IntN(100) == 0 {
		d *= 50
	}
	time.Sleep(d)
	return d
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + rand.N(d)
}

func explain(ctx context.Context) ([]string, error) {
	if rand.IntN(20) == 0 {
		return nil, fmt.Errorf("explain: connection reset")
	}
	return []string{"Seq Scan on table  (cost=0.00..35.50 rows=2550 width=4)"}, nil
}

type transaction struct {
	name   string
	guid   string
	force  bool
	params map[string]any
	custom map[string]any
}

func (txn *transaction) BestName() string               { return txn.name }
func (txn *transaction) FilteredParams() map[string]any { return txn.params }
func (txn *transaction) CustomParams() map[string]any   { return txn.custom }
func (txn *transaction) GUID() string                   { return txn.guid }
func (txn *transaction) ForcePersist() bool             { return txn.force }
func (txn *transaction) GCTime() (time.Duration, bool)  { return 0, false }
