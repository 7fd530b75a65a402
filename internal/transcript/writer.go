package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ajsharma/browser_driver/internal/console"
	"github.com/ajsharma/browser_driver/internal/events"
)

const (
	// DefaultBufferSize is the default write buffer size (8 KB).
	DefaultBufferSize = 8 * 1024

	// DefaultFlushInterval is the default delay before buffered records are flushed.
	DefaultFlushInterval = 100 * time.Millisecond
)

// Record is one line of a transcript.
type Record struct {
	RunID     string       `json:"run_id"`
	Seq       int          `json:"seq"`
	Timestamp time.Time    `json:"ts"`
	Level     events.Level `json:"level"`
	Source    string       `json:"source,omitempty"`
	Message   string       `json:"message"`
	// Lines is what the run printed for the entry.
	Lines []string `json:"lines,omitempty"`
}

// Writer appends the entries of one run to its transcript file.
type Writer struct {
	runID string
	path  string

	mu            sync.Mutex
	file          *os.File
	writer        *bufio.Writer
	flushTimer    *time.Timer
	flushInterval time.Duration
	seq           int
	closed        bool
}

// Create opens the transcript for runID against rootURL under baseDir.
func Create(baseDir, rootURL, runID string) (*Writer, error) {
	path := Path(baseDir, ExtractSite(rootURL), runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}

	return &Writer{
		runID:         runID,
		path:          path,
		file:          f,
		writer:        bufio.NewWriterSize(f, DefaultBufferSize),
		flushInterval: DefaultFlushInterval,
	}, nil
}

// Path returns the transcript file path.
func (w *Writer) Path() string {
	return w.path
}

// SetFlushInterval sets the delay for deferred flushes.
func (w *Writer) SetFlushInterval(interval time.Duration) {
	w.mu.Lock()
	w.flushInterval = interval
	w.mu.Unlock()
}

// Write appends entry to the transcript.
func (w *Writer) Write(entry events.Entry) error {
	rec := Record{
		RunID:     w.runID,
		Timestamp: entry.Timestamp,
		Level:     entry.Level,
		Source:    entry.Source,
		Message:   entry.Message,
	}
	if entry.Level.IsSevere() {
		rec.Lines = []string{entry.Message}
	} else {
		rec.Lines = console.Lines(entry.Message)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}

	w.seq++
	rec.Seq = w.seq
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return err
	}

	return w.handleFlush(entry.Level.IsSevere())
}

// handleFlush must be called with w.mu held. Severe entries are synced right
// away so a crash still leaves the failure on disk.
func (w *Writer) handleFlush(severe bool) error {
	bufferFull := w.writer.Buffered() > w.writer.Size()*3/4

	switch {
	case severe:
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	case bufferFull:
		if err := w.writer.Flush(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	default:
		w.scheduleFlush()
	}
	return nil
}

func (w *Writer) scheduleFlush() {
	if w.flushTimer != nil {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.flushInterval, func() { w.flushFired(timer) })
	w.flushTimer = timer
}

// flushFired runs the deferred flush scheduled as timer. A callback that lost
// the race with cancelFlushTimer leaves a newer timer alone.
func (w *Writer) flushFired(timer *time.Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.flushTimer != timer {
		return
	}
	w.flushTimer = nil
	if !w.closed {
		_ = w.writer.Flush()
	}
}

func (w *Writer) cancelFlushTimer() {
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}
}

// Close flushes, syncs and closes the transcript. Further writes fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.cancelFlushTimer()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
