package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ttrace/ttbuffer"
	"go.uber.org/zap"
)

type xrayConfig struct {
	*rootConfig

	session       uint64
	activate      string
	duration      time.Duration
	recvBuf       int
	retryInterval time.Duration
}

func (cfg *xrayConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 's', LongName: "session" /*        */, Value: ffval.NewValueDefault(&cfg.session, 1) /*                */, Usage: "xray session ID"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'a', LongName: "activate" /*       */, Value: ffval.NewValue(&cfg.activate) /*                         */, Usage: "activate the session for this transaction name first", NoDefault: true, Placeholder: "NAME"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "duration" /*       */, Value: ffval.NewValueDefault(&cfg.duration, 5*time.Minute) /*   */, Usage: "requested session duration"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "recv-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.recvBuf, 100) /*              */, Usage: "local receive buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second) /* */, Usage: "connection retry interval"})
}

func (cfg *xrayConfig) Exec(ctx context.Context, args []string) error {
	client := cfg.newClient()
	client.RetryInterval = cfg.retryInterval

	if cfg.activate != "" {
		sessions, err := client.ActivateXraySession(ctx, ttbuffer.XraySession{
			ID:              cfg.session,
			TransactionName: cfg.activate,
			Duration:        cfg.duration,
		})
		if err != nil {
			return fmt.Errorf("activate session: %w", err)
		}
		cfg.logger.Info("session activated", zap.Uint64("id", cfg.session), zap.String("transaction", cfg.activate), zap.Int("active", len(sessions)))

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := client.DeactivateXraySession(ctx, cfg.session); err != nil {
				cfg.logger.Warn("deactivate session", zap.Error(err))
			}
		}()
	}

	events := make(chan ttbuffer.SegmentEvent, cfg.recvBuf)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return client.StreamXray(ctx, cfg.session, events)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			enc := json.NewEncoder(cfg.stdout)
			for {
				select {
				case ev := <-events:
					enc.Encode(ev)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	return g.Run()
}
