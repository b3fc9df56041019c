package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn with a context cancelled after timeout. fn must honour
// ctx; WithTimeout does not abandon it.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(timeoutCtx)
	if err != nil && timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
	return err
}
