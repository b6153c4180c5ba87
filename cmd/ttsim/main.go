// ttsim runs a simulated workload through a transaction sampler, and inspects
// running ttsim instances over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdin  = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdin, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("ttsim")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "ttsim",
		ShortHelp: "simulate and inspect transaction tracing",
		Flags:     rootFlags,
	}

	// Config for `ttsim run`.
	runConfig := &runConfig{rootConfig: rootConfig}
	runFlags := ff.NewFlagSet("run").SetParent(rootFlags)
	runConfig.register(runFlags)
	runCommand := &ff.Command{
		Name:      "run",
		ShortHelp: "run a simulated workload",
		LongHelp:  "Trace simulated transactions, harvest retained samples to stdout as NDJSON, and serve diagnostics and metrics over HTTP.",
		Flags:     runFlags,
		Exec:      runConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, runCommand)

	// Config for `ttsim samples`.
	samplesConfig := &samplesConfig{rootConfig: rootConfig}
	samplesFlags := ff.NewFlagSet("samples").SetParent(rootFlags)
	samplesConfig.register(samplesFlags)
	samplesCommand := &ff.Command{
		Name:      "samples",
		ShortHelp: "list detail samples from a running instance",
		Flags:     samplesFlags,
		Exec:      samplesConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, samplesCommand)

	// Config for `ttsim xray`.
	xrayConfig := &xrayConfig{rootConfig: rootConfig}
	xrayFlags := ff.NewFlagSet("xray").SetParent(rootFlags)
	xrayConfig.register(xrayFlags)
	xrayCommand := &ff.Command{
		Name:      "xray",
		ShortHelp: "stream xray segment events from a running instance",
		LongHelp:  "Optionally activate an xray session for a transaction name, then stream its segment events to stdout as NDJSON.",
		Flags:     xrayFlags,
		Exec:      xrayConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, xrayCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("TTSIM")); err != nil {
		return err
	}

	// Validation and set-up.
	logger, err := newLogger(stderr, rootConfig.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	rootConfig.logger = logger

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
