// Package logging configures the global zerolog logger and hands out
// component loggers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as written in config files and LOG_LEVEL.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON to human-readable console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is added to every entry when set.
	Service string
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "coin-catalog",
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// parseLevel maps a level name to zerolog, unknown names to info.
func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level LogLevel) bool {
	_, ok := levels[strings.ToLower(string(level))]
	return ok
}

// NewLogger derives a logger for one component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Trace: Fan-out worker lifecycle, shared singleflight fetches
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Conditional requests and ETags
//   - Paging state (offset, terminal), superseded refreshes
//
// Info: Normal operation events
//   - Catalog pages loaded
//   - Favorites refreshed
//   - 304 Not Modified responses
//
// Warn: Warning conditions that don't prevent operation
//   - Quota throttling active
//   - Retry attempts
//   - Favorite detail fetch failed (left out of the views)
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Failed requests (after retries)
//   - Quota blocks
//   - Favorites persistence failures
//   - Configuration errors
//
// Context Fields:
//   - component: client, cache, ratelimit, catalog, favorites, aggregator, fanout
//   - endpoint: API path with the coin uuid replaced by {uuid}
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: network, decode, auth, not_found, rate_limit, server, client
//   - coin_id: Coin uuid
//   - offset, limit: Listing page window
//   - request_id: X-Request-ID sent with the request
