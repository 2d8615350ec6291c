// Package observability builds the logger, Prometheus metrics, OTLP tracing
// and health checks shared by the hashdrive server and CLI.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured JSON logger tagged with service, version
// and host. A nil output writes to stderr.
func NewLogger(service, version, level string, output io.Writer) (zerolog.Logger, error) {
	if output == nil {
		output = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.Nop(), fmt.Errorf("observability: invalid log level %q", level)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	return zerolog.New(output).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", hostname()).
		Logger(), nil
}

// OpenLogFile opens path for appending. An empty path returns stderr and a
// no-op close.
func OpenLogFile(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: open log file: %w", err)
	}
	return f, f.Close, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
