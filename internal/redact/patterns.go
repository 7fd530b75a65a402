// Package redact masks credentials before URLs and arguments reach the
// diagnostic log.
package redact

import "strings"

// DefaultFieldDenylist contains parameter names whose values are redacted by
// default.
var DefaultFieldDenylist = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"api-key",
	"accesstoken",
	"access_token",
	"refreshtoken",
	"refresh_token",
	"private_key",
	"privatekey",
	"client_secret",
	"clientsecret",
	"credential",
	"credentials",
	"auth",
	"session",
	"signature",
}

// matchFieldName checks if a parameter name matches a pattern
// (case-insensitive). A pattern also matches inside a longer name, so
// "user_password" and "passwordHash" are caught.
func matchFieldName(actual, pattern string) bool {
	return strings.Contains(strings.ToLower(actual), strings.ToLower(pattern))
}
