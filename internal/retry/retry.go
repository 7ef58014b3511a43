// Package retry implements the bounded exponential backoff used when a pass
// must be repeated until the vault settles.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted is returned by Do when every attempt asked to retry.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy configures exponential backoff between attempts.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy doubles from 100ms up to 2s over five attempts.
func DefaultPolicy() Policy {
	return Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, MaxAttempts: 5}
}

// BackOff returns the interval generator for p: doubling from BaseDelay,
// capped at MaxDelay, without jitter.
func (p Policy) BackOff() *backoff.ExponentialBackOff {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
}

// Do calls fn until it reports done, returns an error, or the attempt budget
// runs out. The first attempt runs immediately.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (done bool, err error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		done, err := fn(attempt)
		switch {
		case err != nil:
			return struct{}{}, backoff.Permanent(err)
		case !done:
			return struct{}{}, ErrExhausted
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(p.BackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	// The last attempt's error comes back still marked permanent.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
