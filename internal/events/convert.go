package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
)

// Raw messages for non-severe entries are a space separated list of
// positional arguments. The first three are a header (level, timestamp in
// milliseconds, source URL); the rest are the console call arguments.
// Strings are written as JSON string literals and non-negative integers as
// bare numerals. Every other value is written as a quoted printable form.
//
// Severe entries carry plain text since they are forwarded verbatim.

// FromConsoleAPICall converts a console API call into an Entry.
func FromConsoleAPICall(ev *runtime.EventConsoleAPICalled) Entry {
	level := consoleLevel(ev.Type)
	ts := timestampOf(ev.Timestamp)
	source := stackURL(ev.StackTrace)

	var msg string
	if level.IsSevere() {
		parts := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			parts = append(parts, printable(arg))
		}
		msg = strings.Join(parts, " ")
		if ev.Type == runtime.APITypeAssert {
			msg = strings.TrimSpace("Assertion failed: " + msg)
		}
	} else {
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			args = append(args, encodeArg(arg))
		}
		msg = encodeMessage(level, ts, source, args)
	}

	return Entry{
		Level:     level,
		Message:   msg,
		Timestamp: ts,
		Source:    SourceConsole,
	}
}

// FromException converts an uncaught exception into a severe Entry.
func FromException(ev *runtime.EventExceptionThrown) Entry {
	details := ev.ExceptionDetails
	if details == nil {
		return Entry{Level: LevelSevere, Timestamp: timestampOf(ev.Timestamp), Source: SourceException}
	}

	text := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		text = details.Text + " " + details.Exception.Description
	}
	if details.URL != "" {
		// Locations are 0-based on the wire.
		text = fmt.Sprintf("%s %d:%d %s", details.URL, details.LineNumber+1, details.ColumnNumber+1, text)
	}

	return Entry{
		Level:     LevelSevere,
		Message:   text,
		Timestamp: timestampOf(ev.Timestamp),
		Source:    SourceException,
	}
}

// FromLogEntry converts a browser log entry (network failures, interventions,
// violations) into an Entry.
func FromLogEntry(ev *cdplog.EventEntryAdded) Entry {
	if ev.Entry == nil {
		return Entry{Level: LevelInfo, Timestamp: time.Now().UTC(), Source: SourceBrowser}
	}

	e := ev.Entry
	level := browserLevel(e.Level)
	ts := timestampOf(e.Timestamp)

	msg := e.Text
	if !level.IsSevere() {
		msg = encodeMessage(level, ts, e.URL, []string{quote(e.Text)})
	} else if e.URL != "" {
		msg = e.URL + " - " + e.Text
	}

	return Entry{
		Level:     level,
		Message:   msg,
		Timestamp: ts,
		Source:    SourceBrowser + "." + string(e.Source),
	}
}

func consoleLevel(t runtime.APIType) Level {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return LevelSevere
	case runtime.APITypeWarning:
		return LevelWarning
	case runtime.APITypeDebug:
		return LevelDebug
	default:
		return LevelInfo
	}
}

func browserLevel(l cdplog.Level) Level {
	switch l {
	case cdplog.LevelError:
		return LevelSevere
	case cdplog.LevelWarning:
		return LevelWarning
	case cdplog.LevelVerbose:
		return LevelDebug
	default:
		return LevelInfo
	}
}

func encodeMessage(level Level, ts time.Time, source string, args []string) string {
	header := []string{
		quote(string(level)),
		strconv.FormatInt(ts.UnixMilli(), 10),
		quote(source),
	}
	return strings.Join(append(header, args...), " ")
}

func encodeArg(obj *runtime.RemoteObject) string {
	if obj != nil && obj.Type == runtime.TypeNumber && obj.Value != nil {
		var n json.Number
		if err := json.Unmarshal(obj.Value, &n); err == nil {
			if i, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
				return strconv.FormatUint(i, 10)
			}
		}
	}
	return quote(printable(obj))
}

func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(b)
}

func timestampOf(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now().UTC()
	}
	return ts.Time().UTC()
}

func stackURL(st *runtime.StackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	return st.CallFrames[0].URL
}
