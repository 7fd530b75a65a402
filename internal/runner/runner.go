// Package runner sequences one test run against a browser session: open the
// page, poll until the page reports completion, flush the remaining output,
// read the failure count and tear the session down.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajsharma/browser_driver/internal/drain"
	"github.com/ajsharma/browser_driver/internal/events"
	"github.com/ajsharma/browser_driver/internal/poller"
	"github.com/ajsharma/browser_driver/internal/redact"
)

// Exit codes reported for an Outcome.
const (
	ExitPassed   = 0
	ExitFailed   = 1
	ExitAbnormal = 2
)

// Session is the browser session the runner drives. Calls are never issued
// concurrently.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Logs(ctx context.Context) ([]events.Entry, error)
	TestsDone(ctx context.Context) (bool, error)
	TestFailures(ctx context.Context) (*int, error)
	Close() error
}

// Outcome is the result of a run. A nil FailureCount means the page never
// reported completion.
type Outcome struct {
	RunID        string
	FailureCount *int
	Duration     time.Duration
}

// Completed reports whether the page reported a failure count.
func (o Outcome) Completed() bool {
	return o.FailureCount != nil
}

// Passed reports whether the run completed with zero failures.
func (o Outcome) Passed() bool {
	return o.FailureCount != nil && *o.FailureCount == 0
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch {
	case o.FailureCount == nil:
		return ExitAbnormal
	case *o.FailureCount == 0:
		return ExitPassed
	default:
		return ExitFailed
	}
}

// Options configures a Runner.
type Options struct {
	RootURL      string
	Timeout      time.Duration
	PollInterval time.Duration

	// Stdout and Stderr receive page output lines.
	Stdout func(line string)
	Stderr func(line string)

	// Done is called exactly once per run with the failure count, or nil when
	// the run ended abnormally.
	Done func(failureCount *int)

	// RunID names the run in logs; a fresh one is generated when empty.
	RunID string
	// Record, when set, sees every drained entry before it is printed.
	Record func(events.Entry)
	// Redactor masks credentials in logged URLs. Nil masks with the
	// default rules.
	Redactor *redact.Redactor

	Logger *zap.Logger
	Guard  *Guard
	Clock  func() time.Time
}

// Runner executes test runs.
type Runner struct {
	opts   Options
	guard  *Guard
	logger *zap.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := opts.Guard
	if guard == nil {
		guard = NewGuard(logger)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = poller.DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Redactor == nil {
		opts.Redactor = redact.New(true)
	}

	return &Runner{
		opts:   opts,
		guard:  guard,
		logger: logger.Named("runner"),
	}
}

// Run takes ownership of session and executes one test run on it. The session
// is always torn down before Run returns and Done is always called exactly
// once. The returned error is non-nil when the run ended abnormally; a
// *poller.TimeoutError signals that completion was never observed.
func (r *Runner) Run(ctx context.Context, session Session) (outcome Outcome, err error) {
	outcome.RunID = r.opts.RunID
	if outcome.RunID == "" {
		outcome.RunID = uuid.New().String()
	}
	logger := r.logger.With(zap.String("run_id", outcome.RunID))
	start := r.opts.Clock()

	r.guard.Hold(session)

	var doneOnce sync.Once
	finish := func(failures *int) {
		doneOnce.Do(func() {
			if r.opts.Done != nil {
				r.opts.Done(failures)
			}
		})
	}

	defer func() {
		if p := recover(); p != nil {
			_ = r.guard.Teardown()
			finish(nil)
			panic(p)
		}

		if terr := r.guard.Teardown(); terr != nil {
			logger.Warn("Failed to close browser session", zap.Error(terr))
		}
		outcome.Duration = r.opts.Clock().Sub(start)

		if err != nil {
			outcome.FailureCount = nil
			logger.Error("Test run ended abnormally", zap.Error(err), zap.Duration("duration", outcome.Duration))
		} else {
			logger.Info("Test run finished",
				zap.Int("failures", *outcome.FailureCount),
				zap.Duration("duration", outcome.Duration))
		}
		finish(outcome.FailureCount)
	}()

	var source drain.Source = session
	if r.opts.Record != nil {
		source = recordingSource{Source: session, record: r.opts.Record}
	}
	drainer := drain.New(source, drain.SinkFuncs{Out: r.opts.Stdout, Err: r.opts.Stderr})

	// One deadline covers the whole run: a page whose load event never fires
	// uses up the same budget as one that never sets testsDone.
	safeURL := r.opts.Redactor.URL(r.opts.RootURL)
	logger.Info("Opening test page", zap.String("url", safeURL))
	navCtx, cancelNav := context.WithTimeout(ctx, r.opts.Timeout)
	navErr := session.Navigate(navCtx, r.opts.RootURL)
	navExpired := ctx.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancelNav()
	if navErr != nil {
		if navExpired {
			return outcome, r.loadTimeout(logger, start)
		}
		return outcome, fmt.Errorf("failed to navigate to %s: %w", safeURL, navErr)
	}

	p := poller.New(drainer, session, r.opts.Timeout)
	p.SetInterval(r.opts.PollInterval)
	p.SetLogger(logger)
	p.SetClock(r.opts.Clock)
	p.SetStart(start)
	if err := p.Run(ctx); err != nil {
		return outcome, err
	}

	// Entries produced between the last tick and completion.
	if _, err := drainer.Drain(ctx); err != nil {
		return outcome, err
	}

	failures, err := session.TestFailures(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to read failure count: %w", err)
	}
	if failures == nil {
		return outcome, fmt.Errorf("page reported completion without a failure count")
	}
	outcome.FailureCount = failures

	return outcome, nil
}

func (r *Runner) loadTimeout(logger *zap.Logger, start time.Time) error {
	err := &poller.TimeoutError{
		Timeout: r.opts.Timeout,
		Elapsed: r.opts.Clock().Sub(start),
	}
	logger.Warn("Timed out loading test page", zap.Error(err))
	return err
}

// recordingSource passes every entry it hands out to record.
type recordingSource struct {
	drain.Source
	record func(events.Entry)
}

func (s recordingSource) Logs(ctx context.Context) ([]events.Entry, error) {
	entries, err := s.Source.Logs(ctx)
	for _, e := range entries {
		s.record(e)
	}
	return entries, err
}
