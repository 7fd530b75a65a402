// browser_driver runs a browser-based test page in Chrome, streams the page's
// console output to stdout/stderr and exits with the page's verdict.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajsharma/browser_driver/internal/cdp"
	"github.com/ajsharma/browser_driver/internal/config"
	"github.com/ajsharma/browser_driver/internal/events"
	"github.com/ajsharma/browser_driver/internal/observability"
	"github.com/ajsharma/browser_driver/internal/poller"
	"github.com/ajsharma/browser_driver/internal/redact"
	"github.com/ajsharma/browser_driver/internal/runner"
	"github.com/ajsharma/browser_driver/internal/transcript"
)

// visibleUsage spells out that TEST_BROWSER_VISIBLE=0 (or false/no/off) stays
// headless; any other non-empty value shows the window.
const visibleUsage = "Show the browser window instead of running headless " +
	"(TEST_BROWSER_VISIBLE; empty, 0, false, no or off keep it headless)"

// openFunc creates the browser session for a run.
type openFunc func(ctx context.Context, opts cdp.LaunchOptions, logger *zap.Logger) (runner.Session, error)

func openChrome(ctx context.Context, opts cdp.LaunchOptions, logger *zap.Logger) (runner.Session, error) {
	s, err := cdp.Open(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type app struct {
	v       *viper.Viper
	cfgFile string

	stdout io.Writer
	stderr io.Writer
	exit   func(code int)

	open      openFunc
	newLogger func(config.LoggerConfig) *zap.Logger
}

func newApp() *app {
	return &app{
		v:         viper.New(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		exit:      os.Exit,
		open:      openChrome,
		newLogger: observability.NewLogger,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "browser_driver",
		Short: "Run a browser test page in Chrome and report its result",
		Long: `browser_driver opens ROOT_URL in Chrome, forwards the page's console
output to stdout (errors to stderr with an [ERROR] prefix) and waits until the
page sets window.testsDone. It then reads window.testFailures and exits with
status 0 when it is zero, 1 when tests failed and 2 when the run ended
abnormally (for example a timeout).

Example:
  # Run the suite served by a local dev server
  ROOT_URL=http://localhost:3000/ browser_driver

  # Watch the run in a visible window with extra Chrome flags
  browser_driver --root-url http://localhost:3000/ --visible --chrome-args "--no-sandbox"`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return a.runDriver(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./browser_driver.yaml)")
	flags.StringP("port", "p", "0", "Chrome remote debugging port (0 picks a free port per run)")
	flags.String("chrome-path", "", "Chrome executable (default: auto-detect)")
	flags.Bool("visible", false, visibleUsage)
	flags.String("chrome-args", "", "Extra Chrome arguments, whitespace separated (%20 for a literal space)")
	flags.Duration("timeout", poller.DefaultTimeout, "How long to wait for the page to report completion")
	flags.Duration("poll-interval", 0, "Minimum time between completion checks")
	flags.String("log-level", "info", "Diagnostic log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Diagnostic log format (console, json)")
	flags.String("log-file", "", "Also write diagnostics as JSON to this file")
	flags.String("transcript", "", "Directory for a JSON lines transcript of each run's page output")
	flags.Bool("redact", true, "Mask credentials in URLs and arguments written to the diagnostic log")
	rootCmd.Flags().String("root-url", "", "URL of the test page (ROOT_URL)")

	bind := map[string]string{
		"port":            "port",
		"chrome_path":     "chrome-path",
		"visible":         "visible",
		"chrome_args":     "chrome-args",
		"timeout":         "timeout",
		"poll_interval":   "poll-interval",
		"logger.level":    "log-level",
		"logger.format":   "log-format",
		"logger.log_file": "log-file",
		"transcript_dir":  "transcript",
		"redact":          "redact",
	}
	for key, name := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	_ = a.v.BindPFlag("root_url", rootCmd.Flags().Lookup("root-url"))

	rootCmd.AddCommand(newSelftestCmd(a), newVersionCmd(a))
	return rootCmd
}

func newSelftestCmd(a *app) *cobra.Command {
	var (
		failures int
		delay    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the driver against a built-in test page",
		Long: `selftest serves a small page that follows the testsDone/testFailures
contract from a local HTTP server and runs the driver against it. Use it to
check that Chrome can be found and driven on this machine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return fmt.Errorf("failed to listen for test page: %w", err)
			}
			srv := &http.Server{Handler: cdp.TestPageHandler(), ReadHeaderTimeout: 5 * time.Second}
			go func() { _ = srv.Serve(ln) }()
			defer srv.Close()

			q := url.Values{}
			q.Set("failures", fmt.Sprint(failures))
			q.Set("delay", fmt.Sprint(delay.Milliseconds()))
			cfg.RootURL = fmt.Sprintf("http://%s/?%s", ln.Addr(), q.Encode())

			return a.runDriver(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&failures, "failures", 0, "Failure count the test page reports")
	cmd.Flags().DurationVar(&delay, "delay", 250*time.Millisecond, "Time before the test page reports completion")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "browser_driver %s\n", config.Version)
		},
	}
}

// loadConfig reads the config file, environment and flags, in increasing
// precedence.
func (a *app) loadConfig() (*config.Config, error) {
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("browser_driver")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("BROWSER_DRIVER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	config.BindEnv(a.v)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return config.Load(a.v)
}

// runDriver executes one run. Once the session exists every exit goes through
// the guard, so the browser is gone before the process is.
func (a *app) runDriver(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := a.newLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()
	logger.Debug("Starting browser_driver", zap.String("version", config.Version))

	redactor := redact.New(cfg.Redact)
	logger.Debug("Launching Chrome",
		zap.String("port", cfg.ChromePort),
		zap.Bool("visible", cfg.Visible),
		zap.Strings("extra_args", redactor.Args(cfg.ChromeArgs)))

	guard := runner.NewGuard(logger)
	stopSignals := guard.HandleSignals(a.exit)

	session, err := a.open(ctx, cdp.LaunchOptions{
		Port:       cfg.ChromePort,
		ChromePath: cfg.ChromePath,
		Headless:   !cfg.Visible,
		ExtraArgs:  cfg.ChromeArgs,
	}, logger)
	if err != nil {
		stopSignals()
		return err
	}

	opts := runner.Options{
		RootURL:      cfg.RootURL,
		Timeout:      cfg.Timeout,
		PollInterval: cfg.PollInterval,
		Stdout:       func(line string) { fmt.Fprintln(a.stdout, line) },
		Stderr:       func(line string) { fmt.Fprintln(a.stderr, line) },
		Redactor:     redactor,
		Logger:       logger,
		Guard:        guard,
	}

	exitCode := runner.ExitAbnormal
	opts.Done = func(failures *int) {
		exitCode = runner.Outcome{FailureCount: failures}.ExitCode()
	}

	var tw *transcript.Writer
	if cfg.TranscriptDir != "" {
		opts.RunID = uuid.NewString()
		tw, err = transcript.Create(cfg.TranscriptDir, cfg.RootURL, opts.RunID)
		if err != nil {
			logger.Warn("Transcript disabled", zap.Error(err))
		} else {
			logger.Info("Writing transcript", zap.String("path", tw.Path()))
			opts.Record = func(e events.Entry) {
				if err := tw.Write(e); err != nil {
					logger.Debug("Transcript write failed", zap.Error(err))
				}
			}
		}
	}

	if _, err := runner.New(opts).Run(ctx, session); err != nil {
		var timeout *poller.TimeoutError
		if errors.As(err, &timeout) {
			fmt.Fprintf(a.stderr, "browser_driver: %v\n", err)
		}
	}
	stopSignals()

	if tw != nil {
		if err := tw.Close(); err != nil {
			logger.Warn("Failed to close transcript", zap.Error(err))
		}
	}
	_ = logger.Sync()
	guard.Exit(a.exit, exitCode)
	return nil
}

func main() {
	a := newApp()
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		a.exit(1)
	}
}
