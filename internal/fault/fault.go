// Package fault carries internal failures out of the telemetry pipeline
// without letting them cross its public boundary as errors or panics.
package fault

import (
	"context"
	"log/slog"
)

// Level classifies how loud a fault should be.
type Level int

const (
	Warn Level = iota
	Error
)

// Fault is a single absorbed failure.
type Fault struct {
	Component string // "queue", "dispatcher", "identity", ...
	Op        string // "persist", "validate", "send", ...
	Level     Level
	Err       error
	Attrs     []any // slog key/value pairs
}

// Reporter receives faults. Implementations must not block.
type Reporter func(Fault)

// Discard drops every fault.
func Discard(Fault) {}

// Log returns a Reporter that writes faults to logger.
func Log(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return func(f Fault) {
		args := make([]any, 0, len(f.Attrs)+6)
		args = append(args, "component", f.Component, "op", f.Op)
		if f.Err != nil {
			args = append(args, "err", f.Err)
		}
		args = append(args, f.Attrs...)
		level := slog.LevelWarn
		if f.Level == Error {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "telemetry fault", args...)
	}
}

// Recorder collects faults in memory. Tests use it to assert on failure visibility.
type Recorder struct {
	ch chan Fault
}

// NewRecorder buffers up to size faults; extra faults are dropped.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Fault, size)}
}

// Report is a Reporter.
func (r *Recorder) Report(f Fault) {
	select {
	case r.ch <- f:
	default:
	}
}

// Drain returns every recorded fault and empties the recorder.
func (r *Recorder) Drain() []Fault {
	var out []Fault
	for {
		select {
		case f := <-r.ch:
			out = append(out, f)
		default:
			return out
		}
	}
}
