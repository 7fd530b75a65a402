package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsharma/browser_driver/internal/events"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func TestWriterRecordsEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "http://localhost:3000/tests", "run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "localhost_3000", "run-1.jsonl"), w.Path())

	require.NoError(t, w.Write(events.NewEntry(events.LevelInfo, `"INFO" 1 "app.js" "a\nb"`, events.SourceConsole)))
	require.NoError(t, w.Write(events.NewEntry(events.LevelSevere, "boom", events.SourceException)))
	require.NoError(t, w.Write(events.NewEntry(events.LevelDebug, `"DEBUG" 2 "app.js"`, events.SourceConsole)))
	require.NoError(t, w.Close())

	recs := readRecords(t, w.Path())
	require.Len(t, recs, 3)

	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, 1, recs[0].Seq)
	assert.Equal(t, events.LevelInfo, recs[0].Level)
	assert.Equal(t, []string{"a", "b"}, recs[0].Lines)

	assert.Equal(t, 2, recs[1].Seq)
	assert.Equal(t, []string{"boom"}, recs[1].Lines)
	assert.Equal(t, events.SourceException, recs[1].Source)

	// Header-only entries print nothing.
	assert.Empty(t, recs[2].Lines)
}

func TestWriterSevereIsSyncedImmediately(t *testing.T) {
	w, err := Create(t.TempDir(), "http://example.com/", "run-2")
	require.NoError(t, err)
	defer w.Close()
	w.SetFlushInterval(time.Hour)

	require.NoError(t, w.Write(events.NewEntry(events.LevelSevere, "failed", events.SourceConsole)))

	recs := readRecords(t, w.Path())
	require.Len(t, recs, 1)
	assert.Equal(t, "failed", recs[0].Message)
}

func TestWriterDeferredFlush(t *testing.T) {
	w, err := Create(t.TempDir(), "http://example.com/", "run-3")
	require.NoError(t, err)
	defer w.Close()
	w.SetFlushInterval(10 * time.Millisecond)

	require.NoError(t, w.Write(events.NewEntry(events.LevelInfo, `"INFO" 1 "x" "hi"`, events.SourceConsole)))

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(w.Path())
		return err == nil && len(data) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestWriterStaleFlushKeepsNewerTimer(t *testing.T) {
	w, err := Create(t.TempDir(), "http://example.com/", "run-5")
	require.NoError(t, err)
	defer w.Close()
	w.SetFlushInterval(time.Hour)

	require.NoError(t, w.Write(events.NewEntry(events.LevelInfo, `"INFO" 1 "x" "hi"`, events.SourceConsole)))

	w.mu.Lock()
	current := w.flushTimer
	w.mu.Unlock()
	require.NotNil(t, current)

	// A callback from a timer that was cancelled and replaced fires late.
	stale := time.NewTimer(time.Hour)
	stale.Stop()
	w.flushFired(stale)

	w.mu.Lock()
	assert.Same(t, current, w.flushTimer)
	buffered := w.writer.Buffered()
	w.mu.Unlock()
	assert.Positive(t, buffered, "stale callback must not flush")

	current.Stop()
	w.flushFired(current)
	w.mu.Lock()
	assert.Nil(t, w.flushTimer)
	assert.Zero(t, w.writer.Buffered())
	w.mu.Unlock()
}

func TestWriterAppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		w, err := Create(dir, "http://example.com/", "same-run")
		require.NoError(t, err)
		require.NoError(t, w.Write(events.NewEntry(events.LevelSevere, "x", events.SourceConsole)))
		require.NoError(t, w.Close())
	}

	assert.Len(t, readRecords(t, Path(dir, "example.com", "same-run")), 2)
}

func TestWriterClosed(t *testing.T) {
	w, err := Create(t.TempDir(), "", "run-4")
	require.NoError(t, err)
	assert.Contains(t, w.Path(), UnknownSite)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(events.NewEntry(events.LevelInfo, "", "")), os.ErrClosed)
}
