package status

import "sync"

// Logger defines the logging interface for LogIndicator.
type Logger interface {
	Info(msg string, args ...any)
}

// LogIndicator is an Indicator for hosts without a status light. It logs
// colour changes and ignores repeats.
type LogIndicator struct {
	logger Logger

	mu      sync.Mutex
	last    [3]uint8
	written bool
}

// NewLogIndicator returns an indicator that writes to logger.
func NewLogIndicator(logger Logger) *LogIndicator {
	return &LogIndicator{logger: logger}
}

func (l *LogIndicator) SetColor(r, g, b uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rgb := [3]uint8{r, g, b}
	if l.written && rgb == l.last {
		return
	}
	l.last, l.written = rgb, true
	l.logger.Info("status indicator", "r", r, "g", g, "b", b)
}
