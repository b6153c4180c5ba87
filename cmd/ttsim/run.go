package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ttrace"
	"github.com/peterbourgon/ttrace/ttconfig"
	"github.com/peterbourgon/ttrace/ttredact"
	"github.com/peterbourgon/ttrace/ttsampler"
	"github.com/peterbourgon/ttrace/ttweb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type runConfig struct {
	*rootConfig

	listenAddr      string
	workers         int
	interval        time.Duration
	harvestInterval time.Duration
	sinkFailureRate float64
	tracerEnabled   bool
	developerMode   bool
	threshold       time.Duration
	stackThreshold  time.Duration
	recordSQL       string
	segmentLimit    int
	explain         bool
}

func (cfg *runConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "listen-addr" /*         */, Value: ffval.NewValueDefault(&cfg.listenAddr, "localhost:8080") /*                        */, Usage: "HTTP listen address"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'w', LongName: "workers" /*             */, Value: ffval.NewValueDefault(&cfg.workers, 4) /*                                        */, Usage: "concurrent simulated workers"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'i', LongName: "interval" /*            */, Value: ffval.NewValueDefault(&cfg.interval, 50*time.Millisecond) /*                     */, Usage: "mean delay between transactions, per worker"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "harvest-interval" /*    */, Value: ffval.NewValueDefault(&cfg.harvestInterval, 10*time.Second) /*                   */, Usage: "time between harvests"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "sink-failure-rate" /*   */, Value: ffval.NewValueDefault(&cfg.sinkFailureRate, 0.0) /*                              */, Usage: "probability that a harvest fails to send, 0..1"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "tracer" /*              */, Value: ffval.NewValueDefault(&cfg.tracerEnabled, true) /*                               */, Usage: "enable the transaction tracer"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'd', LongName: "developer-mode" /*      */, Value: ffval.NewValue(&cfg.developerMode) /*                                            */, Usage: "keep recent samples for diagnostics", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 't', LongName: "threshold" /*           */, Value: ffval.NewValueDefault(&cfg.threshold, 200*time.Millisecond) /*                   */, Usage: "minimum duration of a slowest-transaction sample"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stack-trace-threshold" /* */, Value: ffval.NewValueDefault(&cfg.stackThreshold, 20*time.Millisecond) /*                */, Usage: "minimum duration of a segment that captures a backtrace"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "record-sql" /*          */, Value: ffval.NewEnum(&cfg.recordSQL, "obfuscated", "raw", "off") /*                     */, Usage: "SQL recording mode: obfuscated, raw, off"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "segment-limit" /*       */, Value: ffval.NewValueDefault(&cfg.segmentLimit, 4000) /*                                */, Usage: "maximum segments per sample, 0 for the default"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "explain" /*             */, Value: ffval.NewValueDefault(&cfg.explain, true) /*                                     */, Usage: "explain slow queries at harvest"})
}

func (cfg *runConfig) Exec(ctx context.Context, args []string) error {
	if cfg.workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.sinkFailureRate < 0 || cfg.sinkFailureRate > 1 {
		return fmt.Errorf("sink failure rate must be between 0 and 1")
	}

	logger := cfg.logger

	settings := ttconfig.NewRegistry(map[string]any{
		ttconfig.KeyTracerEnabled:        cfg.tracerEnabled,
		ttconfig.KeyDeveloperMode:        cfg.developerMode,
		ttconfig.KeyTransactionThreshold: cfg.threshold,
		ttconfig.KeyStackTraceThreshold:  cfg.stackThreshold,
		ttconfig.KeyRecordSQL:            cfg.recordSQL,
		ttconfig.KeyLimitSegments:        cfg.segmentLimit,
		ttconfig.KeyExplainEnabled:       cfg.explain,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	redactor, err := ttredact.NewRedactor(ttredact.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("create redactor: %w", err)
	}
	defer redactor.Close()

	sampler, err := ttsampler.NewSampler(ttsampler.Config{
		Settings:   settings,
		Redactor:   redactor,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	defer sampler.Close()

	harvester, err := ttsampler.NewHarvester(ttsampler.HarvesterConfig{
		Sampler:  sampler,
		Sink:     &ndjsonSink{enc: json.NewEncoder(cfg.stdout), failureRate: cfg.sinkFailureRate},
		Interval: cfg.harvestInterval,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create harvester: %w", err)
	}

	debugServer, err := ttweb.NewServer(ttweb.ServerConfig{Sampler: sampler, Logger: logger})
	if err != nil {
		return fmt.Errorf("create debug server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/ttrace/", http.StripPrefix("/debug/ttrace", ttweb.Middleware(logger)(debugServer)))

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("listening", zap.String("addr", ln.Addr().String()))

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			var wg sync.WaitGroup
			for i := 0; i < cfg.workers; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					w := &worker{id: id, tracer: ttsampler.NewTracer(settings, sampler), interval: cfg.interval, logger: logger}
					w.run(ctx)
				}(i)
			}
			wg.Wait()
			return ctx.Err()
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return harvester.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	{
		server := &http.Server{Handler: mux}
		g.Add(func() error {
			return server.Serve(ln)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	return g.Run()
}

//
//
//

type ndjsonSink struct {
	mtx         sync.Mutex
	enc         *json.Encoder
	failureRate float64
}

type harvestedSample struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Duration     string `json:"duration"`
	Segments     int    `json:"segments"`
	ForcePersist bool   `json:"force_persist,omitempty"`
	PayloadBytes int    `json:"payload_bytes"`
}

var errSimulatedFailure = errors.New("simulated sink failure")

func (s *ndjsonSink) Send(ctx context.Context, batch []*ttrace.Prepared) error {
	if rand.Float64() < s.failureRate {
		return errSimulatedFailure
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, p := range batch {
		if err := s.enc.Encode(harvestedSample{
			ID:           p.Sample.ID(),
			Name:         p.Sample.Name(),
			Duration:     p.Sample.Duration().String(),
			Segments:     p.Sample.SegmentCount(),
			ForcePersist: p.Sample.ForcePersist(),
			PayloadBytes: len(p.Payload),
		}); err != nil {
			return fmt.Errorf("encode sample: %w", err)
		}
	}
	return nil
}
