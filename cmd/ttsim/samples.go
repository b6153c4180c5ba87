package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"go.uber.org/zap"
)

type samplesConfig struct {
	*rootConfig

	id    string
	reset bool
}

func (cfg *samplesConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "id" /*    */, Value: ffval.NewValue(&cfg.id) /*    */, Usage: "print the full sample with this ID", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "reset" /* */, Value: ffval.NewValue(&cfg.reset) /* */, Usage: "discard every retained sample after listing", NoDefault: true})
}

func (cfg *samplesConfig) Exec(ctx context.Context, args []string) error {
	client := cfg.newClient()
	enc := json.NewEncoder(cfg.stdout)

	if cfg.id != "" {
		raw, err := client.Sample(ctx, cfg.id)
		if err != nil {
			return fmt.Errorf("get sample: %w", err)
		}
		return enc.Encode(raw)
	}

	summaries, err := client.Samples(ctx)
	if err != nil {
		return fmt.Errorf("list samples: %w", err)
	}
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}

	count, err := client.Count(ctx)
	if err != nil {
		return fmt.Errorf("count samples: %w", err)
	}
	cfg.logger.Info("samples", zap.Int("detail", len(summaries)), zap.Int("retained", count))

	if cfg.reset {
		if err := client.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		cfg.logger.Info("reset")
	}

	return nil
}
