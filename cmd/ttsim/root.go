package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/ttrace/ttweb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	logLevel string
	uri      string

	logger *zap.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'l', LongName: "log" /* */, Value: ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "warn", "w", "none", "n") /* */, Usage: "log level: i/info, d/debug, w/warn, n/none", Placeholder: "LEVEL"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /* */, Value: ffval.NewValueDefault(&cfg.uri, "localhost:8080/debug/ttrace") /*                      */, Usage: "diagnostics URI of a running instance", Placeholder: "URI"})
}

func (cfg *rootConfig) newClient() *ttweb.Client {
	uri := cfg.uri
	if !strings.HasPrefix(uri, "http") {
		uri = "http://" + uri
	}
	return ttweb.NewClient(http.DefaultClient, uri, cfg.logger)
}

func newLogger(w io.Writer, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "n", "none":
		return zap.NewNop(), nil
	case "i", "info":
		lvl = zapcore.InfoLevel
	case "d", "debug":
		lvl = zapcore.DebugLevel
	case "w", "warn":
		lvl = zapcore.WarnLevel
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(w),
		lvl,
	)

	return zap.New(core), nil
}
