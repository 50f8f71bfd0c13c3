package xeda

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig bounds RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int
	// Backoff returns the pause after the given failed attempt (1-based).
	// Nil retries immediately.
	Backoff func(attempt int) time.Duration
	// Jitter adds a random [0, Jitter) delay to every pause.
	Jitter time.Duration
	// RetryIf reports whether err is worth another attempt. Nil uses
	// Retryable.
	RetryIf func(err error) bool
}

// ExponentialBackoff doubles base on every attempt, capped at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d <= 0 || d > ceiling {
			return ceiling
		}
		return d
	}
}

// Retryable is the default RetryIf. Malformed input and a closed bus fail the
// same way every time, so they are returned at once.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedEntity),
		errors.Is(err, ErrEnrollmentMethod),
		errors.Is(err, ErrInvalidEnvelope),
		errors.Is(err, ErrBusClosed):
		return false
	}
	return true
}

// RetryMiddleware calls next until it succeeds, the attempts run out or ctx
// ends. On the publish chain the message keeps its id across attempts.
func RetryMiddleware(cfg RetryConfig) Middleware {
	attempts := max(cfg.MaxAttempts, 1)
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = Retryable
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			var err error
			for attempt := 1; ; attempt++ {
				if err = next(ctx, msg); err == nil {
					return nil
				}
				if attempt >= attempts || ctx.Err() != nil || !retryIf(err) {
					return err
				}
				if wait := cfg.pause(attempt); wait > 0 {
					t := time.NewTimer(wait)
					select {
					case <-ctx.Done():
						t.Stop()
						return err
					case <-t.C:
					}
				}
			}
		}
	}
}

func (cfg RetryConfig) pause(attempt int) time.Duration {
	var d time.Duration
	if cfg.Backoff != nil {
		d = cfg.Backoff(attempt)
	}
	if cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}
	return d
}

// TimeoutMiddleware gives next at most d. Past the deadline the call returns
// context.DeadlineExceeded while next keeps running on its own goroutine.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return passthrough
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
					}
				}()
				done <- next(tctx, msg)
			}()

			select {
			case err := <-done:
				return err
			case <-tctx.Done():
				return tctx.Err()
			}
		}
	}
}

// RateLimitMiddleware waits for a token from limiter before each call.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	if limiter == nil {
		return passthrough
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs failed calls with the logger and topic found in ctx.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			err := next(ctx, msg)
			if err == nil {
				return nil
			}
			if l, ok := LoggerFromContext(ctx); ok {
				topic, _ := TopicFromContext(ctx)
				l.Warn().Str("topic", topic).Str("message_id", msg.ID).Err(err).Msg("xeda: handler failed")
			}
			return err
		}
	}
}

// RecoveryMiddleware turns a panic in next into an error wrapping
// ErrHandlerPanic.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

func passthrough(next Handler) Handler { return next }

// Chain wraps h so that mws[0] runs first. Nil entries are skipped.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
