package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock advances by step every time it is read.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type countingDrainer struct {
	calls int
	err   error
	log   *[]string
}

func (d *countingDrainer) Drain(ctx context.Context) (int, error) {
	d.calls++
	if d.log != nil {
		*d.log = append(*d.log, "drain")
	}
	return d.calls, d.err
}

type scriptedCondition struct {
	results []bool
	calls   int
	err     error
	block   bool
	log     *[]string
}

func (c *scriptedCondition) TestsDone(ctx context.Context) (bool, error) {
	c.calls++
	if c.log != nil {
		*c.log = append(*c.log, "flag")
	}
	if c.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if c.err != nil {
		return false, c.err
	}
	if len(c.results) == 0 {
		return false, nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r, nil
}

func TestPollerCompletes(t *testing.T) {
	var order []string
	d := &countingDrainer{log: &order}
	c := &scriptedCondition{results: []bool{false, false, true}, log: &order}

	p := New(d, c, time.Minute)
	p.SetLogger(zaptest.NewLogger(t))
	require.Equal(t, Polling, p.State())

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, Done, p.State())
	assert.Equal(t, 3, p.Ticks())
	assert.Equal(t, []string{"drain", "flag", "drain", "flag", "drain", "flag"}, order)
}

func TestPollerTimesOut(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Second}
	d := &countingDrainer{}
	c := &scriptedCondition{}

	p := New(d, c, 10*time.Second)
	p.SetClock(clock.Now)

	err := p.Run(context.Background())
	require.Error(t, err)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 10*time.Second, te.Timeout)
	assert.GreaterOrEqual(t, te.Elapsed, 10*time.Second)
	assert.Equal(t, c.calls, te.Ticks)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, Polling, p.State())
	assert.Equal(t, d.calls, c.calls)
}

func TestPollerTimeoutRealClock(t *testing.T) {
	timeout := 50 * time.Millisecond
	p := New(&countingDrainer{}, &scriptedCondition{}, timeout)
	p.SetInterval(time.Millisecond)

	start := time.Now()
	err := p.Run(context.Background())
	elapsed := time.Since(start)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+2*time.Second)
}

func TestPollerHungFlagReadHitsDeadline(t *testing.T) {
	timeout := 50 * time.Millisecond
	c := &scriptedCondition{block: true}
	p := New(&countingDrainer{}, c, timeout)

	start := time.Now()
	err := p.Run(context.Background())

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, c.calls)
	assert.Less(t, time.Since(start), timeout+2*time.Second)
}

func TestPollerInnerDeadlineIsNotTimeout(t *testing.T) {
	// A deadline hit by one protocol call, well before the poll deadline.
	inner := fmt.Errorf("evaluate: %w", context.DeadlineExceeded)
	p := New(&countingDrainer{}, &scriptedCondition{err: inner}, time.Minute)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TimeoutError
	assert.False(t, errors.As(err, &te), "got %v", err)
}

func TestPollerSetStartCountsEarlierTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0), step: time.Millisecond}
	c := &scriptedCondition{results: []bool{true}}

	p := New(&countingDrainer{}, c, 10*time.Second)
	p.SetClock(clock.Now)
	// The whole budget was spent before polling began.
	p.SetStart(time.Unix(90, 0))

	err := p.Run(context.Background())

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Ticks)
	assert.Zero(t, c.calls)
	assert.GreaterOrEqual(t, te.Elapsed, 10*time.Second)
}

func TestPollerCompletionFirstTick(t *testing.T) {
	d := &countingDrainer{}
	p := New(d, &scriptedCondition{results: []bool{true}}, time.Minute)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, Done, p.State())
}

func TestPollerPropagatesDrainError(t *testing.T) {
	cause := errors.New("session closed")
	c := &scriptedCondition{}
	p := New(&countingDrainer{err: cause}, c, time.Minute)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Zero(t, c.calls, "flag must not be read after a failed drain")

	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestPollerPropagatesFlagError(t *testing.T) {
	cause := errors.New("evaluate failed")
	d := &countingDrainer{}
	p := New(d, &scriptedCondition{err: cause}, time.Minute)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, d.calls)
}

func TestPollerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &countingDrainer{}
	err := New(d, &scriptedCondition{}, time.Minute).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, d.calls)
}

func TestNewDefaultsTimeout(t *testing.T) {
	p := New(&countingDrainer{}, &scriptedCondition{}, 0)
	assert.Equal(t, DefaultTimeout, p.timeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "polling", Polling.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", State(7).String())
}
