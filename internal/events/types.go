// Package events defines the browser log records surfaced to the host.
package events

import (
	"time"
)

// Level is the severity name attached to a browser log record.
type Level string

// Severity levels, highest first.
const (
	LevelSevere  Level = "SEVERE"
	LevelWarning Level = "WARNING"
	LevelInfo    Level = "INFO"
	LevelDebug   Level = "DEBUG"
)

// IsSevere reports whether the level belongs to the error tier.
func (l Level) IsSevere() bool {
	return l == LevelSevere
}

// Entry is a single browser log record. Entries are produced by the browser
// session, handed out exactly once and never mutated afterwards.
type Entry struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Source    string
}

// NewEntry creates an Entry stamped with the current time.
func NewEntry(level Level, message, source string) Entry {
	return Entry{
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}
}

// Entry sources.
const (
	SourceConsole   = "console-api"
	SourceException = "runtime"
	SourceBrowser   = "browser"
)
