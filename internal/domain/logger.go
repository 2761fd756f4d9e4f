package domain

import (
	"time"
)

type Logger interface {
	// Context methods returns a logger based off the root
	// logger and decorates it with the given context and arguments.
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger

	// Standard log functions
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	// Formatted log functions
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Observability adds the cycle oriented helpers used by the scheduler
type Observability interface {
	Logger

	Success(msg string)
	Failure(msg string)
	Benchmark(name string, duration time.Duration)
}
