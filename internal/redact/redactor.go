package redact

import (
	"net/url"
	"strings"
)

// RedactedValue is the placeholder for redacted content.
const RedactedValue = "[REDACTED]"

// Redactor masks sensitive values.
type Redactor struct {
	enabled bool
	fields  []string
}

// New creates a Redactor with the default denylist.
func New(enabled bool) *Redactor {
	return &Redactor{
		enabled: enabled,
		fields:  DefaultFieldDenylist,
	}
}

// NewWithCustomRules creates a Redactor that also masks the given names.
func NewWithCustomRules(enabled bool, fields []string) *Redactor {
	r := New(enabled)
	if fields != nil {
		r.fields = append(append([]string(nil), r.fields...), fields...)
	}
	return r
}

// IsEnabled returns whether redaction is enabled.
func (r *Redactor) IsEnabled() bool {
	return r != nil && r.enabled
}

// Field reports whether values named name are masked.
func (r *Redactor) Field(name string) bool {
	if !r.IsEnabled() {
		return false
	}
	for _, pattern := range r.fields {
		if matchFieldName(name, pattern) {
			return true
		}
	}
	return false
}

// URL masks the userinfo password and sensitive query parameters of raw.
// Strings that do not parse as URLs are returned unchanged.
func (r *Redactor) URL(raw string) string {
	if !r.IsEnabled() || raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key, values := range q {
			if r.Field(key) {
				for i := range values {
					values[i] = RedactedValue
				}
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	if !changed {
		return raw
	}
	// Keep the placeholder readable in logs.
	return strings.NewReplacer("%5BREDACTED%5D", RedactedValue).Replace(u.String())
}

// Args masks the values of --name=value arguments whose name is sensitive.
func (r *Redactor) Args(args []string) []string {
	if !r.IsEnabled() || len(args) == 0 {
		return args
	}

	out := make([]string, len(args))
	for i, arg := range args {
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue && r.Field(name) {
			out[i] = arg[:strings.Index(arg, "=")+1] + RedactedValue
			continue
		}
		out[i] = arg
	}
	return out
}
