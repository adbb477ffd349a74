package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// DefaultTimeout bounds tasks started with a non-positive timeout
const DefaultTimeout = 5 * time.Second

// SafeGo executes fn in a goroutine with a timeout, panic recovery and
// error logging. The returned channel is closed once fn has returned.
//
// Example:
//
//	async.SafeGo(context.Background(), logger, 2*time.Second, "draft cleanup", func(ctx context.Context) error {
//	    return store.Clear(ctx, userID)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logFor(logger).WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logFor(logger).WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()

	return done
}

func logFor(logger *observability.Logger) *observability.Logger {
	if logger != nil {
		return logger
	}
	return observability.FromContext(context.Background())
}
