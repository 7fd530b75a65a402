//go:build unix

package runner

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardHandleSignals(t *testing.T) {
	g := NewGuard(nil)
	c := &countingCloser{}
	g.Hold(c)

	exited := make(chan int, 1)
	stop := g.HandleSignals(func(code int) { exited <- code }, syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case code := <-exited:
		assert.Equal(t, 128+int(syscall.SIGUSR1), code)
	case <-time.After(5 * time.Second):
		t.Fatal("signal was not handled")
	}
	assert.Equal(t, 1, c.closed)
	assert.False(t, g.Live())
}
