package dispatch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benjamin-robertson/bolt/internal/logger"
)

// guard installs an interrupt handler around exactly the dispatching phase of
// a run. The first SIGINT/SIGTERM cancels the run context; operations already
// dispatched to targets finish on their own, so the handler warns that remote
// processes may still be executing.
type guard struct {
	log logger.Logger

	// Injection points for tests; default to the signal package.
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
}

func newGuard(log logger.Logger) *guard {
	return &guard{log: log, notify: signal.Notify, stop: signal.Stop}
}

// install starts signal handling and returns a restore function that removes
// the handler. restore must run on every exit path, normal or errored.
func (g *guard) install(cancel context.CancelFunc) (restore func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	g.notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			g.log.Warn("Interrupt received: finishing in-flight operations. Processes already started on remote targets may still be executing.")
			cancel()
		case <-done:
		}
	}()

	return func() {
		g.stop(ch)
		close(done)
	}
}
