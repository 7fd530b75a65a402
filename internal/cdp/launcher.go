// Package cdp drives a local Chrome over the Chrome DevTools Protocol.
package cdp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// installHint is appended to setup errors so the user knows what to fix.
const installHint = "install Google Chrome or Chromium, or point --chrome-path (TEST_CHROME_PATH) at the executable"

// ErrChromeNotFound is wrapped by the SetupError returned when no Chrome
// executable can be located.
var ErrChromeNotFound = errors.New("chrome executable not found")

// SetupError reports that a browser session could not be created.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("browser setup failed: %s: %v (%s)", e.Op, e.Err, installHint)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// LaunchOptions controls how Chrome is started.
type LaunchOptions struct {
	// Port is the requested DevTools port. "0" or empty lets Chrome pick a
	// free one, which keeps concurrent runs on one host apart.
	Port string
	// ChromePath overrides executable discovery when set.
	ChromePath string
	Headless   bool
	// ExtraArgs are appended after the built-in flags.
	ExtraArgs []string
}

// ChromeProcess represents a launched Chrome instance. Port is the requested
// port until the session learns the one Chrome actually bound.
type ChromeProcess struct {
	Cmd         *exec.Cmd
	Port        string
	UserDataDir string
}

// LaunchChrome starts a new Chrome instance with remote debugging enabled.
func LaunchChrome(opts LaunchOptions) (*ChromeProcess, error) {
	chromePath, err := resolveChrome(opts.ChromePath)
	if err != nil {
		return nil, &SetupError{Op: "locate chrome", Err: err}
	}

	// Each run gets a throwaway profile.
	userDataDir, err := os.MkdirTemp("", "browser_driver_chrome_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	cmd := exec.Command(chromePath, chromeArgs(opts, userDataDir)...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, &SetupError{Op: "start chrome", Err: err}
	}

	return &ChromeProcess{
		Cmd:         cmd,
		Port:        opts.Port,
		UserDataDir: userDataDir,
	}, nil
}

func chromeArgs(opts LaunchOptions, userDataDir string) []string {
	port := opts.Port
	if port == "" {
		port = "0"
	}
	args := []string{
		"--remote-debugging-port=" + port,
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-features=TranslateUI",
		"--disable-background-networking",
		"--disable-sync",
	}
	if opts.Headless {
		args = append(args, "--headless")
	}
	args = append(args, opts.ExtraArgs...)
	// The initial tab is reused as the test page.
	return append(args, "about:blank")
}

// Stop terminates the Chrome process and cleans up.
func (cp *ChromeProcess) Stop() error {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		if err := cp.Cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill chrome: %w", err)
		}
		_ = cp.Cmd.Wait()
	}

	if cp.UserDataDir != "" {
		_ = os.RemoveAll(cp.UserDataDir)
	}

	return nil
}

// PID returns the process ID of the Chrome instance.
func (cp *ChromeProcess) PID() int {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		return cp.Cmd.Process.Pid
	}
	return 0
}

// FindChrome reports the Chrome executable that LaunchChrome would use.
func FindChrome(override string) (string, error) {
	return resolveChrome(override)
}

func resolveChrome(override string) (string, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrChromeNotFound, override)
		}
		return path, nil
	}
	if path := findChrome(); path != "" {
		return path, nil
	}
	return "", ErrChromeNotFound
}

// findChrome locates the Chrome executable on the system.
func findChrome() string {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			filepath.Join(os.Getenv("HOME"), "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		programFiles := os.Getenv("PROGRAMFILES")
		programFilesX86 := os.Getenv("PROGRAMFILES(X86)")

		paths = []string{
			filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe"),
		}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	return ""
}
