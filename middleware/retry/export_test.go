package retry

import (
	"context"
	"time"
)

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		c.sleep = fn
	}
}
