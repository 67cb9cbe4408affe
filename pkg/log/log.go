package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Config holds logging configuration
type Config struct {
	Level      string // debug, info, warn, error
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}
	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Clock reports the current virtual time of a simulation. The kernel
// satisfies it; loggers hooked with VirtualTime stamp every line with the
// clock's reading at write time, so log output carries both wall-clock
// timestamps and simulated seconds.
type Clock interface {
	Now() float64
}

// VirtualTime returns a hook that adds a vt field with the clock's current
// virtual time in seconds
func VirtualTime(clock Clock) zerolog.Hook {
	return zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		e.Float64("vt", clock.Now())
	})
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// ForComponent creates a component logger stamped with virtual time
func ForComponent(component string, clock Clock) zerolog.Logger {
	return WithComponent(component).Hook(VirtualTime(clock))
}

// ForService creates a service logger stamped with virtual time
func ForService(service string, clock Clock) zerolog.Logger {
	return Logger.With().Str("service", service).Logger().Hook(VirtualTime(clock))
}

// Errorf logs an error with a message
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
