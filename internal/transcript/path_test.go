package transcript

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSiteName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", UnknownSite},
		{"simple hostname", "example.com", "example.com"},
		{"localhost with port", "localhost:3000", "localhost_3000"},
		{"loopback with port", "127.0.0.1:8080", "127.0.0.1_8080"},
		{"any address with port", "0.0.0.0:9000", "0.0.0.0_9000"},
		{"remote host drops port", "example.com:443", "example.com"},
		{"path separators", "test/site\\name", "test_site_name"},
		{"spaces", "site with spaces", "site_with_spaces"},
		{"quotes and pipes", "\"test\"|<site>", "_test___site_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSiteName(tt.input))
		})
	}
}

func TestSanitizeSiteNameTruncation(t *testing.T) {
	assert.Len(t, SanitizeSiteName(strings.Repeat("a", 300)), 255)
}

func TestExtractSite(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"", UnknownSite},
		{"http://localhost:3000/tests/", "localhost_3000"},
		{"http://127.0.0.1:4000/?grep=foo", "127.0.0.1_4000"},
		{"https://ci.example.com:8443/suite", "ci.example.com"},
		{"https://example.com", "example.com"},
		{"about:blank", "about_blank"},
		{"file:///tmp/index.html", "file_"},
		{"not a url at all", UnknownSite},
		{"http://[::1", UnknownSite},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSite(tt.url))
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "localhost_3000", "abc.jsonl"), Path("out", "localhost_3000", "abc"))
}
