package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// activePortFile is written into the profile directory by Chrome once its
// DevTools endpoint is listening: the port on the first line, the browser
// target path on the second.
const activePortFile = "DevToolsActivePort"

// ErrForeignBrowser means the DevTools endpoint answering on the port is not
// the browser this process launched.
var ErrForeignBrowser = errors.New("debugging port is served by another browser")

// ActivePort is the DevTools endpoint a launched Chrome reported for itself.
type ActivePort struct {
	Port string
	// BrowserPath is the browser target path, e.g. /devtools/browser/<id>.
	BrowserPath string
}

// ReadActivePort parses the DevToolsActivePort file in userDataDir.
func ReadActivePort(userDataDir string) (ActivePort, error) {
	data, err := os.ReadFile(filepath.Join(userDataDir, activePortFile))
	if err != nil {
		return ActivePort{}, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return ActivePort{}, fmt.Errorf("incomplete %s", activePortFile)
	}
	port := strings.TrimSpace(lines[0])
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return ActivePort{}, fmt.Errorf("invalid port %q in %s", port, activePortFile)
	}
	return ActivePort{Port: port, BrowserPath: strings.TrimSpace(lines[1])}, nil
}

// WaitForActivePort waits for Chrome to report its DevTools endpoint in
// userDataDir. Chrome writes the file only after it bound the port, so a port
// already held by someone else never produces one.
func WaitForActivePort(ctx context.Context, userDataDir string, timeout time.Duration) (ActivePort, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ap, err := ReadActivePort(userDataDir)
		if err == nil {
			return ap, nil
		}

		select {
		case <-ctx.Done():
			return ActivePort{}, fmt.Errorf("chrome did not report a debugging port after %v: %w", timeout, err)
		case <-ticker.C:
		}
	}
}

// verifyBrowser checks that info was served by the browser that wrote ap.
func verifyBrowser(info *BrowserInfo, ap ActivePort) error {
	if ap.BrowserPath == "" || !strings.HasSuffix(info.WebSocketDebuggerURL, ap.BrowserPath) {
		return fmt.Errorf("%w: port %s reports %s", ErrForeignBrowser, ap.Port, info.WebSocketDebuggerURL)
	}
	return nil
}

// resolveEndpoint finds the DevTools endpoint of the Chrome whose profile is
// userDataDir, waits for it to expose a page and confirms it is that browser.
func resolveEndpoint(ctx context.Context, userDataDir string, timeout time.Duration) (string, *BrowserInfo, error) {
	ap, err := WaitForActivePort(ctx, userDataDir, timeout)
	if err != nil {
		return "", nil, &SetupError{Op: "wait for chrome", Err: err}
	}
	if err := WaitForChrome(ctx, ap.Port, timeout); err != nil {
		return "", nil, &SetupError{Op: "wait for chrome", Err: err}
	}

	info, err := DiscoverBrowserInfo(ctx, ap.Port)
	if err != nil {
		return "", nil, &SetupError{Op: "discover browser", Err: err}
	}
	if err := verifyBrowser(info, ap); err != nil {
		return "", nil, &SetupError{Op: "verify browser", Err: err}
	}
	return ap.Port, info, nil
}
