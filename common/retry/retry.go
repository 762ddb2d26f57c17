// Package retry runs an operation with exponential backoff.
//
//	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
//	    return client.Send(ctx, msg)
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls the backoff.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below one mean a single call.
	Attempts int
	// Initial is the wait before the second call. Later waits double up to
	// Max.
	Initial time.Duration
	Max     time.Duration
}

// Default suits short network calls such as sending a chat message.
var Default = Policy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 10 * time.Second}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// used up or ctx is done. The last error from fn is returned, joined with
// the context error when the context ended the loop.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Initial
	if delay <= 0 {
		delay = Default.Initial
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = Default.Max
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		slog.Debug("retry: attempt failed",
			"attempt", attempt, "of", attempts, "err", last, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(last, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, ceiling)
	}
	return last
}
