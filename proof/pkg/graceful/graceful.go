package graceful

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// HandleSignals blocks until SIGTERM, SIGINT or ctx is done, then runs every
// stop func concurrently. Each stop func gets a context bounded by timeout.
func HandleSignals(ctx context.Context, timeout time.Duration, stopFunc ...func(context.Context)) {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-sigCtx.Done()
	Stop(timeout, stopFunc...)
}

// Stop runs the stop funcs concurrently and waits for all of them.
func Stop(timeout time.Duration, stopFunc ...func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wg := sync.WaitGroup{}
	wg.Add(len(stopFunc))
	for _, f := range stopFunc {
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	wg.Wait()
}

// Sequence runs stop funcs one after another with the shared context, for
// shutdown steps that must happen in order.
func Sequence(stopFunc ...func(context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		for _, f := range stopFunc {
			f(ctx)
		}
	}
}
