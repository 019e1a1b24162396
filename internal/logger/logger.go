// Package logx configures the process-wide zerolog logger.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config is loaded with prefix LOG: LOG_LEVEL, LOG_FORMAT, LOG_SERVICE.
type Config struct {
	Level   string `default:"info"`
	Format  string `default:"json"`
	Service string
}

// New builds a logger writing to w. Every event carries a timestamp, the
// caller and, when known, the service name.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	switch cfg.Format {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	lc := zerolog.New(w).Level(level).With().Timestamp().Caller()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	return lc.Logger(), nil
}

// Init installs the global logger on stdout. service names the binary when
// cfg.Service is empty. Loggers taken from a context without one fall back
// to the global logger.
func Init(cfg Config, service string) error {
	if cfg.Service == "" {
		cfg.Service = service
	}
	logger, err := New(cfg, os.Stdout)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}
