// Package logging builds the host zerolog logger and bridges firmware
// debug output into it.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ssrpwm/core"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func init() {
	zerolog.ErrorFieldName = "err"
}

// Config selects the level and output format
type Config struct {
	Level  string
	Format string // "console" or "json"
	Output io.Writer
}

// New creates a logger. Output defaults to stderr.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to def
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// BridgeDebug routes core.DebugPrintln output to log at debug level and
// enables it when that level is active
func BridgeDebug(log zerolog.Logger) {
	log = log.With().Str("component", "core").Logger()
	core.SetDebugWriter(func(msg string) {
		log.Debug().Msg(msg)
	})
	core.SetDebugEnabled(log.GetLevel() <= zerolog.DebugLevel)
}

// Throttled drops log events beyond a steady rate. Suppressed events are
// counted and reported with the next event that gets through.
type Throttled struct {
	log     zerolog.Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// NewThrottled allows perSec events per second with a burst of the same
// size. A rate of zero or less disables throttling.
func NewThrottled(log zerolog.Logger, perSec int) *Throttled {
	t := &Throttled{log: log}
	if perSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	return t
}

// Warn returns a warn event, or nil when throttled. zerolog treats a nil
// event as disabled, so callers chain on it unconditionally.
func (t *Throttled) Warn() *zerolog.Event {
	if t.limiter != nil && !t.limiter.Allow() {
		t.mu.Lock()
		t.suppressed++
		t.mu.Unlock()
		return nil
	}

	e := t.log.Warn()
	t.mu.Lock()
	if t.suppressed > 0 {
		e = e.Int("suppressed", t.suppressed)
		t.suppressed = 0
	}
	t.mu.Unlock()
	return e
}

// Suppressed returns the number of events dropped since the last one
// written
func (t *Throttled) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
