package ttsampler

import (
	"context"
	"fmt"
	"time"

	"github.com/peterbourgon/ttrace"
	"go.uber.org/zap"
)

// Sink receives harvested batches, typically to deliver them to a remote
// collector. If Send returns an error, the samples in the batch are merged back
// into the sampler, and offered again at the next harvest.
type Sink interface {
	Send(ctx context.Context, batch []*ttrace.Prepared) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, batch []*ttrace.Prepared) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, batch []*ttrace.Prepared) error {
	return f(ctx, batch)
}

const (
	harvestIntervalMin     = 100 * time.Millisecond
	harvestIntervalDefault = time.Minute
)

// HarvesterConfig for a harvester.
type HarvesterConfig struct {
	// Sampler is required.
	Sampler *Sampler

	// Sink is required.
	Sink Sink

	// Interval between harvests. Default 1m, minimum 100ms.
	Interval time.Duration

	// Logger is optional.
	Logger *zap.Logger
}

func (cfg *HarvesterConfig) sanitize() error {
	if cfg.Sampler == nil {
		return fmt.Errorf("sampler is required")
	}
	if cfg.Sink == nil {
		return fmt.Errorf("sink is required")
	}
	switch {
	case cfg.Interval == 0:
		cfg.Interval = harvestIntervalDefault
	case cfg.Interval < harvestIntervalMin:
		cfg.Interval = harvestIntervalMin
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Harvester periodically harvests a sampler into a sink.
type Harvester struct {
	sampler  *Sampler
	sink     Sink
	interval time.Duration
	logger   *zap.Logger
}

// NewHarvester returns a harvester for the given config.
func NewHarvester(cfg HarvesterConfig) (*Harvester, error) {
	if err := cfg.sanitize(); err != nil {
		return nil, err
	}
	return &Harvester{
		sampler:  cfg.Sampler,
		sink:     cfg.Sink,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}, nil
}

// Run harvests at every interval until the context is canceled. It makes one
// final harvest, with a fresh context, before returning the context error.
func (h *Harvester) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.HarvestOnce(ctx); err != nil {
				h.logger.Warn("harvest failed", zap.Error(err))
			}

		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), h.interval)
			if err := h.HarvestOnce(final); err != nil {
				h.logger.Warn("final harvest failed", zap.Error(err))
			}
			cancel()
			return ctx.Err()
		}
	}
}

// HarvestOnce harvests the sampler and sends the batch to the sink. Empty
// batches aren't sent. If the sink fails, the batch is merged back into the
// sampler, and the error is returned.
func (h *Harvester) HarvestOnce(ctx context.Context) error {
	batch := h.sampler.Harvest(ctx)
	if len(batch) == 0 {
		return nil
	}

	if err := h.sink.Send(ctx, batch); err != nil {
		h.sampler.metrics.sinkFailures.Inc()

		samples := make([]*ttrace.Sample, len(batch))
		for i, p := range batch {
			samples[i] = p.Sample
		}
		h.sampler.Merge(samples)

		return fmt.Errorf("send %d sample(s): %w", len(batch), err)
	}

	h.logger.Debug("harvested", zap.Int("samples", len(batch)))

	return nil
}
