package ttsampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	stored          prometheus.Counter
	ignored         prometheus.Counter
	forceClosed     prometheus.Counter
	truncated       prometheus.Counter
	prepareFailures prometheus.Counter
	harvested       prometheus.Counter
	merged          prometheus.Counter
	sinkFailures    prometheus.Counter
}

// newMetrics registers the sampler metrics with r. A nil registerer produces
// working but unregistered metrics.
func newMetrics(r prometheus.Registerer) *metrics {
	f := promauto.With(r)
	return &metrics{
		stored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "samples_stored_total",
			Help:      "Finished samples offered to the retention buffers.",
		}),
		ignored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "samples_ignored_total",
			Help:      "Finished transactions dropped because they were marked ignored.",
		}),
		forceClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "segments_force_closed_total",
			Help:      "Segments closed because they weren't exited before an enclosing segment or the trace.",
		}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "segments_truncated_total",
			Help:      "Segments not recorded because the segment limit was reached.",
		}),
		prepareFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "prepare_failures_total",
			Help:      "Harvested samples dropped because they couldn't be prepared for transport.",
		}),
		harvested: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "samples_harvested_total",
			Help:      "Samples returned by harvest.",
		}),
		merged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "samples_merged_total",
			Help:      "Samples from previous harvests offered back to the retention buffers.",
		}),
		sinkFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ttrace",
			Name:      "sink_failures_total",
			Help:      "Harvested batches the sink failed to accept.",
		}),
	}
}
