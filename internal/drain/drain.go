// Package drain forwards newly produced browser log entries to output sinks.
package drain

import (
	"context"
	"fmt"

	"github.com/ajsharma/browser_driver/internal/console"
	"github.com/ajsharma/browser_driver/internal/events"
)

// ErrorPrefix marks page-originated error lines on the error sink.
const ErrorPrefix = "[ERROR] "

// Source hands out the log entries produced since its previous call.
type Source interface {
	Logs(ctx context.Context) ([]events.Entry, error)
}

// Sink receives output lines. Stdout gets one call per console output line and
// Stderr one call per error-tier entry.
type Sink interface {
	Stdout(line string)
	Stderr(line string)
}

// SinkFuncs adapts a pair of functions to a Sink.
type SinkFuncs struct {
	Out func(string)
	Err func(string)
}

// Stdout implements Sink.
func (s SinkFuncs) Stdout(line string) {
	if s.Out != nil {
		s.Out(line)
	}
}

// Stderr implements Sink.
func (s SinkFuncs) Stderr(line string) {
	if s.Err != nil {
		s.Err(line)
	}
}

// Drainer moves entries from a Source to a Sink.
type Drainer struct {
	source Source
	sink   Sink
	parse  func(string) []string
}

// New creates a Drainer.
func New(source Source, sink Sink) *Drainer {
	return &Drainer{
		source: source,
		sink:   sink,
		parse:  console.Lines,
	}
}

// Drain retrieves the new entries exactly once and forwards them in order.
// Severe entries bypass the parser and go to the error sink verbatim.
// It returns the number of entries forwarded.
func (d *Drainer) Drain(ctx context.Context) (int, error) {
	entries, err := d.source.Logs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve browser logs: %w", err)
	}

	for _, entry := range entries {
		if entry.Level.IsSevere() {
			d.sink.Stderr(ErrorPrefix + entry.Message)
			continue
		}
		for _, line := range d.parse(entry.Message) {
			d.sink.Stdout(line)
		}
	}

	return len(entries), nil
}
