// Package retry provides an LLM middleware that retries failed calls with
// exponential backoff.
package retry

import (
	"context"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

type config struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retryIf    func(error) bool
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures the middleware.
type Option func(*config)

// WithBackoff sets the first delay and the cap of the doubling delay.
func WithBackoff(base, max time.Duration) Option {
	return func(c *config) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// WithRetryIf limits retries to errors accepted by fn. By default every
// error except context cancellation is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) {
		c.retryIf = fn
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// New returns a middleware that retries a call up to maxRetries times. A
// stream is retried only while no chunk has been delivered.
func New(maxRetries int, opts ...Option) quizai.Middleware {
	c := &config{
		maxRetries: maxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		retryIf:    func(error) bool { return true },
		sleep:      sleep,
	}
	for _, opt := range opts {
		opt(c)
	}

	return quizai.Middleware{
		Generate: func(next quizai.GenerateHandler) quizai.GenerateHandler {
			return func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
				var resp *quizai.Response
				err := c.do(ctx, func() (bool, error) {
					var err error
					resp, err = next(ctx, req)
					return true, err
				})
				return resp, err
			}
		},
		Stream: func(next quizai.StreamHandler) quizai.StreamHandler {
			return func(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
				var resp *quizai.Response
				err := c.do(ctx, func() (bool, error) {
					delivered := false
					var err error
					resp, err = next(ctx, req, func(chunk string) error {
						delivered = true
						return fn(chunk)
					})
					return !delivered, err
				})
				return resp, err
			}
		},
	}
}

// do calls fn until it succeeds, it reports the call as not retryable, or
// the retries are used up.
func (c *config) do(ctx context.Context, fn func() (bool, error)) error {
	delay := c.baseDelay
	for attempt := 0; ; attempt++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		if !retryable || attempt >= c.maxRetries || ctx.Err() != nil || !c.retryIf(err) {
			return err
		}

		quizai.LoggerFromContext(ctx).Warn("LLM call failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}
