package log

import (
	"log/slog"
	"os"
)

// Logger is slog with a fixed component attribute so every line says
// which part of the process emitted it.
type Logger struct {
	*slog.Logger
	component string
}

// New builds a text-handler logger at the given level tagged with the
// component name.
func New(component string, level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger:    slog.New(handler).With("component", component),
		component: component,
	}
}

// WithComponent returns a logger for a sub-component sharing the same
// handler.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the process-wide slog default so
// packages that log through the slog top-level functions pick it up.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
