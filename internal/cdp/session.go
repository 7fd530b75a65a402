package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ajsharma/browser_driver/internal/events"
)

// StartupTimeout bounds how long Open waits for the DevTools endpoint.
const StartupTimeout = 30 * time.Second

var (
	// ErrSessionClosed is returned by a Session after Close or after the
	// browser connection went away.
	ErrSessionClosed = errors.New("browser session closed")

	// ErrPageCrashed is returned once the page target reported a crash.
	ErrPageCrashed = errors.New("page crashed")
)

// Session is one browser with one page under test. It buffers console,
// exception and browser log events as they arrive; Logs hands out everything
// gathered since the previous call.
type Session struct {
	chrome *ChromeProcess
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	pending []events.Entry
	fault   error

	closeOnce sync.Once
	closeErr  error
}

// Open launches Chrome and attaches to its initial tab. Launch failures are
// reported as *SetupError.
func Open(ctx context.Context, opts LaunchOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	chrome, err := LaunchChrome(opts)
	if err != nil {
		return nil, err
	}

	s := &Session{chrome: chrome, logger: logger}
	if err := s.attach(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("Browser session ready",
		zap.Int("pid", chrome.PID()),
		zap.String("port", chrome.Port),
		zap.Bool("headless", opts.Headless))
	return s, nil
}

// attach connects to the initial tab of the launched Chrome. The endpoint is
// taken from the profile Chrome wrote, never from whatever answers on the
// requested port.
func (s *Session) attach(ctx context.Context) error {
	port, info, err := resolveEndpoint(ctx, s.chrome.UserDataDir, StartupTimeout)
	if err != nil {
		return err
	}
	s.chrome.Port = port

	tabs, err := DiscoverTabs(ctx, port)
	if err != nil {
		return &SetupError{Op: "discover tabs", Err: err}
	}
	if len(tabs) == 0 {
		return &SetupError{Op: "discover tabs", Err: errors.New("no page target")}
	}

	// The session outlives the setup context; teardown is explicit via Close.
	s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), info.WebSocketDebuggerURL)

	sugar := s.logger.Sugar()
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithTargetID(target.ID(tabs[0].TargetID)),
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	// Registered before the first Run so nothing emitted on attach is missed.
	chromedp.ListenTarget(s.browserCtx, s.handleEvent)

	// Attaching enables the runtime and log domains.
	if err := chromedp.Run(s.browserCtx); err != nil {
		return &SetupError{Op: "attach to page", Err: err}
	}
	return nil
}

// handleEvent runs on the chromedp event loop and must not block.
func (s *Session) handleEvent(ev any) {
	var entry events.Entry
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		entry = events.FromConsoleAPICall(ev)
	case *runtime.EventExceptionThrown:
		entry = events.FromException(ev)
	case *cdplog.EventEntryAdded:
		entry = events.FromLogEntry(ev)
	case *inspector.EventTargetCrashed:
		s.setFault(ErrPageCrashed)
		return
	case *inspector.EventDetached:
		s.setFault(fmt.Errorf("%w: inspector detached: %s", ErrSessionClosed, ev.Reason))
		return
	default:
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, entry)
	s.mu.Unlock()
}

func (s *Session) setFault(err error) {
	s.mu.Lock()
	if s.fault == nil {
		s.fault = err
	}
	s.mu.Unlock()
}

// Logs returns the entries gathered since the previous call, in arrival
// order. Buffered entries are always handed out before a session fault is
// reported.
func (s *Session) Logs(ctx context.Context) ([]events.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	fault := s.fault
	s.mu.Unlock()

	if len(batch) > 0 {
		return batch, nil
	}
	if fault != nil {
		return nil, fault
	}
	if s.browserCtx != nil && s.browserCtx.Err() != nil {
		return nil, ErrSessionClosed
	}
	return nil, nil
}

// Navigate loads url in the page and waits for its load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// TestsDone reads window.testsDone as a boolean.
func (s *Session) TestsDone(ctx context.Context) (bool, error) {
	var done bool
	if err := s.run(ctx, chromedp.Evaluate(`!!window.testsDone`, &done)); err != nil {
		return false, err
	}
	return done, nil
}

// TestFailures reads window.testFailures. It returns nil when the page has
// not set it.
func (s *Session) TestFailures(ctx context.Context) (*int, error) {
	var failures *float64
	if err := s.run(ctx, chromedp.Evaluate(`window.testFailures`, &failures)); err != nil {
		return nil, err
	}
	if failures == nil {
		return nil, nil
	}
	n := int(*failures)
	return &n, nil
}

// run executes actions on the page. chromedp needs a context derived from
// the browser context, so ctx contributes only its deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.browserCtx == nil {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	if s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	return err
}

// Close detaches from the page and stops Chrome. It is safe to call more than
// once; only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setFault(ErrSessionClosed)

		if s.browserCtx != nil {
			if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("Page detach failed", zap.Error(err))
			}
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		if s.chrome != nil {
			s.closeErr = s.chrome.Stop()
		}
	})
	return s.closeErr
}
