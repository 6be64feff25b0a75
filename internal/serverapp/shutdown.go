package serverapp

import (
	"context"
	"log/slog"

	"query-engine/internal/logging"
)

type cleanupFunc func(context.Context) error

type namedCleanup struct {
	name string
	fn   cleanupFunc
}

// cleanupStack releases resources in the reverse order they were acquired.
type cleanupStack []namedCleanup

func (s *cleanupStack) push(name string, fn cleanupFunc) {
	*s = append(*s, namedCleanup{name: name, fn: fn})
}

// run drains the stack. A failing step is logged and does not stop the rest.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) {
	items := *s
	*s = nil
	for i := len(items) - 1; i >= 0; i-- {
		step := items[i]
		if logger != nil {
			logger.Info("releasing resource", slog.String("component", step.name))
		}
		err := step.fn(ctx)
		if err != nil && logger != nil {
			logger.Warn("cleanup failed",
				slog.String("component", step.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown releases everything Init acquired. Only the first call does any
// work; later calls return nil immediately.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		a.started = false
		a.stateMu.Unlock()

		a.cleanup.run(ctx, a.logger)
	})
	return nil
}
