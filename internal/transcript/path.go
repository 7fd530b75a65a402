// Package transcript records the browser log entries of a run as JSON lines,
// one file per run, grouped by the site under test.
package transcript

import (
	"net/url"
	"path/filepath"
	"strings"
)

// UnknownSite is the site name for unknown or invalid URLs.
const UnknownSite = "unknown"

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0"
}

// SanitizeSiteName converts a URL host into a safe directory name. Loopback
// hosts keep their port so parallel dev servers get separate directories.
func SanitizeSiteName(hostname string) string {
	if hostname == "" {
		return UnknownSite
	}

	if host, port, ok := strings.Cut(hostname, ":"); ok {
		if isLoopback(host) {
			hostname = host + "_" + port
		} else {
			hostname = host
		}
	}

	result := unsafeChars.Replace(hostname)
	if len(result) > 255 {
		result = result[:255]
	}
	return result
}

// ExtractSite extracts and sanitizes the site name from a URL.
func ExtractSite(rawURL string) string {
	if rawURL == "" {
		return UnknownSite
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return UnknownSite
	}

	hostname := u.Hostname()
	if hostname == "" {
		// file:///..., about:blank
		if u.Scheme != "" {
			return SanitizeSiteName(u.Scheme + "_" + u.Opaque)
		}
		return UnknownSite
	}

	if port := u.Port(); port != "" && isLoopback(hostname) {
		return SanitizeSiteName(hostname + ":" + port)
	}
	return SanitizeSiteName(hostname)
}

// Path returns the transcript file for a run.
func Path(baseDir, site, runID string) string {
	return filepath.Join(baseDir, site, runID+".jsonl")
}
