package console

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Format renders args the way a console call would print them.
//
// When the first argument is a string it is used as a template and the
// remaining arguments are substituted positionally:
//
//	%s  string form
//	%d  numeric form
//	%i  integer form
//	%f  floating point form
//	%j  JSON form
//	%o  inspected form (%O is identical)
//	%c  consumes an argument and prints nothing
//	%%  a single percent sign
//
// Arguments left over after substitution are appended, separated by spaces.
// Placeholders without a matching argument are kept as written.
func Format(args []Arg) string {
	if len(args) == 0 {
		return ""
	}

	first := args[0]
	if first.Kind != String {
		return join(args)
	}
	if len(args) == 1 {
		return first.Str
	}

	tmpl := first.Str
	next := 1

	var b strings.Builder
	last := 0
	for i := 0; i < len(tmpl)-1; i++ {
		if tmpl[i] != '%' {
			continue
		}
		verb := tmpl[i+1]

		if next >= len(args) {
			if verb == '%' {
				b.WriteString(tmpl[last:i])
				last = i + 1
				i++
			}
			continue
		}

		var repl string
		switch verb {
		case 's':
			repl = plain(args[next])
		case 'd':
			repl = formatNumber(toNumber(args[next]))
		case 'i':
			repl = formatNumber(toInteger(args[next]))
		case 'f':
			repl = formatNumber(toFloat(args[next]))
		case 'j':
			repl = toJSON(args[next])
		case 'o', 'O':
			repl = inspect(args[next])
		case 'c':
			repl = ""
		case '%':
			b.WriteString(tmpl[last:i])
			last = i + 1
			i++
			continue
		default:
			continue
		}

		b.WriteString(tmpl[last:i])
		b.WriteString(repl)
		last = i + 2
		next++
		i++
	}
	b.WriteString(tmpl[last:])

	for _, arg := range args[next:] {
		b.WriteByte(' ')
		b.WriteString(plain(arg))
	}

	return b.String()
}

func join(args []Arg) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, plain(arg))
	}
	return strings.Join(parts, " ")
}

func plain(a Arg) string {
	if a.Kind == String {
		return a.Str
	}
	return formatNumber(a.Num)
}

func inspect(a Arg) string {
	if a.Kind != String {
		return formatNumber(a.Num)
	}

	quote := "'"
	switch {
	case !strings.Contains(a.Str, "'"):
	case !strings.Contains(a.Str, `"`):
		quote = `"`
	case !strings.Contains(a.Str, "`"):
		quote = "`"
	}
	escaped := strings.ReplaceAll(a.Str, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, quote, `\`+quote)
	return quote + escaped + quote
}

func toJSON(a Arg) string {
	if a.Kind != String {
		if math.IsNaN(a.Num) || math.IsInf(a.Num, 0) {
			return "null"
		}
		return formatNumber(a.Num)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a.Str); err != nil {
		return strconv.Quote(a.Str)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// toNumber converts an argument the way a strict numeric cast does: the whole
// string must be numeric, blank strings are zero, anything else is NaN.
func toNumber(a Arg) float64 {
	if a.Kind != String {
		return a.Num
	}

	s := strings.TrimSpace(a.Str)
	if s == "" {
		return 0
	}

	sign := 1.0
	body := s
	if body[0] == '+' || body[0] == '-' {
		if body[0] == '-' {
			sign = -1
		}
		body = body[1:]
	}
	if body == "Infinity" {
		return sign * math.Inf(1)
	}

	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}

	for i := 0; i < len(body); i++ {
		if !strings.ContainsRune("0123456789.eE+-", rune(body[i])) {
			return math.NaN()
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// toInteger parses the leading integer of an argument, ignoring trailing junk.
func toInteger(a Arg) float64 {
	if a.Kind != String {
		return math.Trunc(a.Num)
	}

	s := strings.TrimLeft(a.Str, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == start {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// toFloat parses the longest leading decimal literal of an argument.
func toFloat(a Arg) float64 {
	if a.Kind != String {
		return a.Num
	}

	s := strings.TrimLeft(a.Str, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	if strings.HasPrefix(s[end:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		expDigits := exp
		for expDigits < len(s) && isDigit(s[expDigits]) {
			expDigits++
		}
		if expDigits > exp {
			end = expDigits
		}
	}

	n, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// formatNumber prints n using the shortest representation, switching to
// exponent notation outside [1e-6, 1e21).
func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		if math.Signbit(n) {
			return "-0"
		}
		return "0"
	}

	abs := math.Abs(n)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(n, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
