// Package poller waits for the page under test to report completion while
// draining its console output.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a whole poll loop.
const DefaultTimeout = 600 * time.Second

// State is the poll loop state.
type State int

const (
	// Polling means completion has not been observed yet.
	Polling State = iota
	// Done means the completion flag was observed as true.
	Done
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Drainer forwards pending log entries and reports how many it forwarded.
type Drainer interface {
	Drain(ctx context.Context) (int, error)
}

// Condition reads the completion flag exposed by the page.
type Condition interface {
	TestsDone(ctx context.Context) (bool, error)
}

// TimeoutError is returned when completion was not observed before the deadline.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
	Ticks   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tests did not complete within %s (%d polls)", e.Timeout, e.Ticks)
}

// Is makes errors.Is(err, context.DeadlineExceeded) hold for timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// Poller drives the Polling -> Done state machine. Each tick drains logs and
// then reads the completion flag; the two calls never overlap.
type Poller struct {
	drainer   Drainer
	condition Condition
	timeout   time.Duration
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *zap.Logger

	start time.Time

	state State
	ticks int
}

// New creates a Poller with the given deadline. A non-positive timeout uses
// DefaultTimeout.
func New(d Drainer, c Condition, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		drainer:   d,
		condition: c,
		timeout:   timeout,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
}

// SetInterval sets a minimum spacing between ticks. Zero runs ticks back to back.
func (p *Poller) SetInterval(interval time.Duration) {
	if interval <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(rate.Every(interval), 1)
}

// SetLogger sets the diagnostic logger.
func (p *Poller) SetLogger(logger *zap.Logger) {
	if logger != nil {
		p.logger = logger.Named("poller")
	}
}

// SetClock replaces the wall clock used for the deadline.
func (p *Poller) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// SetStart anchors the deadline at start instead of at the beginning of Run,
// so time already spent on the run counts against the timeout.
func (p *Poller) SetStart(start time.Time) {
	p.start = start
}

// State returns the current state.
func (p *Poller) State() State {
	return p.state
}

// Ticks returns the number of completed ticks.
func (p *Poller) Ticks() int {
	return p.ticks
}

// Run ticks until the completion flag is true. It returns a *TimeoutError when
// the deadline elapses first, and any drain or flag error as-is.
func (p *Poller) Run(ctx context.Context) error {
	p.state = Polling
	p.ticks = 0

	start := p.start
	if start.IsZero() {
		start = p.now()
	}
	deadline := start.Add(p.timeout)

	for p.state == Polling {
		if err := ctx.Err(); err != nil {
			return err
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return p.timeoutError(start)
		}

		tickCtx, cancel := context.WithTimeout(ctx, remaining)
		done, err := p.tick(tickCtx)
		// Only the poll deadline itself is a timeout; a deadline hit inside
		// the drain or the flag read is an ordinary failure.
		expired := ctx.Err() == nil && errors.Is(tickCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if expired {
				return p.timeoutError(start)
			}
			return err
		}
		p.ticks++

		if done {
			p.state = Done
			p.logger.Debug("Completion flag observed",
				zap.Int("ticks", p.ticks),
				zap.Duration("elapsed", p.now().Sub(start)))
		}
	}

	return nil
}

// tick runs one drain and one flag read, both bounded by tickCtx.
func (p *Poller) tick(tickCtx context.Context) (bool, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(tickCtx); err != nil {
			// The limiter refuses up front any wait that would overrun the
			// deadline; sit out the rest of it so a timeout is never early.
			<-tickCtx.Done()
			return false, tickCtx.Err()
		}
	}

	n, err := p.drainer.Drain(tickCtx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		p.logger.Debug("Drained log entries", zap.Int("count", n))
	}

	done, err := p.condition.TestsDone(tickCtx)
	if err != nil {
		return false, fmt.Errorf("failed to read completion flag: %w", err)
	}
	return done, nil
}

func (p *Poller) timeoutError(start time.Time) error {
	err := &TimeoutError{
		Timeout: p.timeout,
		Elapsed: p.now().Sub(start),
		Ticks:   p.ticks,
	}
	p.logger.Warn("Timed out waiting for tests", zap.Error(err))
	return err
}
