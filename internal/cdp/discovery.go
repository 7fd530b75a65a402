package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TargetTypePage is the CDP target type for browser pages.
const TargetTypePage = "page"

// Tab represents a Chrome tab/target discovered via CDP.
type Tab struct {
	TargetID string
	Type     string
	Title    string
	URL      string
}

// BrowserInfo holds information about the connected Chrome instance.
type BrowserInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// targetJSON represents the JSON response from /json endpoint.
type targetJSON struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var discoveryClient = &http.Client{Timeout: 5 * time.Second}

func getJSON(ctx context.Context, client *http.Client, port, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s%s", port, path), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Chrome on port %s: %w", port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// DiscoverBrowserInfo queries the /json/version endpoint to get browser info.
func DiscoverBrowserInfo(ctx context.Context, port string) (*BrowserInfo, error) {
	var info BrowserInfo
	if err := getJSON(ctx, discoveryClient, port, "/json/version", &info); err != nil {
		return nil, err
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("chrome on port %s did not report a debugger URL", port)
	}
	return &info, nil
}

// DiscoverTabs queries the /json endpoint and returns the page targets.
func DiscoverTabs(ctx context.Context, port string) ([]*Tab, error) {
	var targets []targetJSON
	if err := getJSON(ctx, discoveryClient, port, "/json", &targets); err != nil {
		return nil, err
	}

	var tabs []*Tab
	for _, target := range targets {
		if target.Type == TargetTypePage {
			tabs = append(tabs, &Tab{
				TargetID: target.ID,
				Type:     target.Type,
				Title:    target.Title,
				URL:      target.URL,
			})
		}
	}

	return tabs, nil
}

// WaitForChrome waits for Chrome to be available on the specified port.
// It waits for both the /json/version endpoint AND at least one page target.
func WaitForChrome(ctx context.Context, port string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: 1 * time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	versionReady := false
	for {
		if !versionReady {
			var info BrowserInfo
			versionReady = getJSON(ctx, client, port, "/json/version", &info) == nil
		}

		if versionReady {
			var targets []targetJSON
			if getJSON(ctx, client, port, "/json", &targets) == nil {
				for _, target := range targets {
					if target.Type == TargetTypePage {
						return nil
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			if !versionReady {
				return fmt.Errorf("chrome not available on port %s after %v", port, timeout)
			}
			return fmt.Errorf("chrome available but no page targets after %v", timeout)
		case <-ticker.C:
		}
	}
}
