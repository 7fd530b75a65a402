package runner

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Guard owns the live browser session so that every exit path, including a
// signal that ends the process, tears it down first.
type Guard struct {
	mu     sync.Mutex
	live   io.Closer
	logger *zap.Logger
}

// NewGuard creates an empty Guard.
func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{logger: logger.Named("guard")}
}

// Hold registers c as the live session. A previously held session is torn
// down first.
func (g *Guard) Hold(c io.Closer) {
	_ = g.Teardown()

	g.mu.Lock()
	g.live = c
	g.mu.Unlock()
}

// Live reports whether a session is currently held.
func (g *Guard) Live() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live != nil
}

// Teardown closes the held session, if any. It is safe to call repeatedly and
// from multiple goroutines; only the first call after Hold closes.
func (g *Guard) Teardown() error {
	g.mu.Lock()
	c := g.live
	g.live = nil
	g.mu.Unlock()

	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil {
		g.logger.Warn("Session teardown failed", zap.Error(err))
		return err
	}
	g.logger.Debug("Session torn down")
	return nil
}

// Exit tears the session down and then ends the process with code.
func (g *Guard) Exit(exit func(int), code int) {
	_ = g.Teardown()
	exit(code)
}

// HandleSignals tears the session down and exits when one of sigs arrives.
// With no sigs, SIGINT and SIGTERM are handled. The returned function stops
// handling and waits for the handler goroutine to finish.
func (g *Guard) HandleSignals(exit func(int), sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	quit := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		select {
		case sig := <-sigCh:
			g.logger.Warn("Received shutdown signal", zap.Stringer("signal", sig))
			g.Exit(exit, exitCodeForSignal(sig))
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
			<-finished
		})
	}
}

func exitCodeForSignal(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
