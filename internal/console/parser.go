// Package console turns raw browser console payloads into printable output lines.
//
// A raw payload is scanned with the following grammar:
//
//	message := { token | noise }
//	token   := quoted | integer
//	quoted  := '"' { any byte except '"' } '"'
//	integer := digit { digit }    (must not touch a letter, digit or '_' on either side)
//
// Anything that is not a token is noise and is skipped. An opening quote that is
// never closed is noise as well; scanning resumes right after it.
package console

import (
	"strconv"
	"strings"
)

// HeaderArgs is the number of leading arguments the page-side logging shim emits
// before the format template (level, source, timestamp).
const HeaderArgs = 3

// LineSeparator is the two-character escape that separates output lines inside a
// formatted payload. It is a backslash followed by 'n', not a newline byte.
const LineSeparator = `\n`

// Kind identifies the type of an extracted argument.
type Kind int

const (
	// String is a quoted argument. Its value may be empty.
	String Kind = iota
	// Number is a bare run of digits.
	Number
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	default:
		return "unknown"
	}
}

// Arg is a single positional argument extracted from a raw payload.
type Arg struct {
	Kind Kind
	Str  string
	Num  float64
}

// StringArg returns a string argument.
func StringArg(s string) Arg {
	return Arg{Kind: String, Str: s}
}

// NumberArg returns a numeric argument.
func NumberArg(n float64) Arg {
	return Arg{Kind: Number, Num: n}
}

// Tokenize extracts the ordered arguments of a raw payload in a single pass.
func Tokenize(raw string) []Arg {
	var args []Arg

	for i := 0; i < len(raw); {
		c := raw[i]

		switch {
		case c == '"':
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				// Unterminated quote is noise.
				i++
				continue
			}
			args = append(args, StringArg(raw[i+1:i+1+end]))
			i += end + 2

		case isDigit(c):
			j := i
			for j < len(raw) && isWordByte(raw[j]) {
				j++
			}
			leftBounded := i == 0 || !isWordByte(raw[i-1])
			if leftBounded && allDigits(raw[i:j]) {
				// ParseFloat only fails here on overflow, which yields +Inf like
				// any numeric conversion of an oversized literal would.
				n, _ := strconv.ParseFloat(raw[i:j], 64)
				args = append(args, NumberArg(n))
			}
			i = j

		case isWordByte(c):
			// A word that starts with a letter can't contain a bounded integer.
			for i < len(raw) && isWordByte(raw[i]) {
				i++
			}

		default:
			i++
		}
	}

	return args
}

// Lines parses a raw payload and returns the output lines it renders to.
// Payloads carrying no more than the header arguments render to no lines.
func Lines(raw string) []string {
	args := Tokenize(raw)
	if len(args) <= HeaderArgs {
		return nil
	}
	return strings.Split(Format(args[HeaderArgs:]), LineSeparator)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}
