// Package poller retries a fetch until the result is fresh enough, then
// commits it. It backs every read-after-write path against the indexer and
// the chain receipt wait.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = 2 * time.Second

var ErrMaxAttempts = errors.New("poller: max attempts reached")

// Versioned is a snapshot stamped with the last block its source processed.
type Versioned interface {
	Version() uint64
}

// Options tune a poll. A zero MaxAttempts polls until fresh or until ctx
// ends; a zero Timeout adds no deadline of its own.
type Options struct {
	Name        string
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	OnAttempt   func(Attempt)
	Logger      *zap.Logger
}

type Attempt struct {
	N       int
	Version uint64
	Fresh   bool
	Err     error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err so the poller stops instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether any error in the chain declares itself
// permanent. Everything else is retried.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// Until calls fetch until isFresh accepts the result, hands it to onFresh
// and returns it. Stale results and transient errors wait Interval and
// retry with no backoff.
func Until[T any](ctx context.Context, fetch func(context.Context) (T, error), isFresh func(T) bool, onFresh func(T) error, opts Options) (T, error) {
	var zero T
	if fetch == nil || isFresh == nil {
		return zero, fmt.Errorf("poller: fetch and isFresh are required")
	}
	opts = opts.normalize()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			opts.report(Attempt{N: attempt, Err: err})
			if IsPermanent(err) {
				return zero, fmt.Errorf("%s: %w", opts.Name, err)
			}
			if opts.Logger != nil {
				opts.Logger.Warn("poll fetch failed, retrying",
					zap.String("poll", opts.Name),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
		case isFresh(value):
			opts.report(Attempt{N: attempt, Version: versionOf(value), Fresh: true})
			if onFresh != nil {
				if err := onFresh(value); err != nil {
					return zero, fmt.Errorf("%s: commit: %w", opts.Name, err)
				}
			}
			return value, nil
		default:
			opts.report(Attempt{N: attempt, Version: versionOf(value)})
			if opts.Logger != nil {
				opts.Logger.Debug("poll result stale",
					zap.String("poll", opts.Name),
					zap.Int("attempt", attempt),
					zap.Uint64("version", versionOf(value)),
				)
			}
		}

		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return zero, fmt.Errorf("%s: %w (%d)", opts.Name, ErrMaxAttempts, attempt)
		}
		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return zero, err
		}
	}
}

// UntilBlock polls until the snapshot has processed at least target().
// target is re-read on every attempt so callers may raise it mid-poll.
func UntilBlock[T Versioned](ctx context.Context, target func() uint64, fetch func(context.Context) (T, error), commit func(T) error, opts Options) (T, error) {
	return Until(ctx, fetch, func(v T) bool {
		return v.Version() >= target()
	}, commit, opts)
}

func (o Options) normalize() Options {
	if o.Name == "" {
		o.Name = "poll"
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

func (o Options) report(a Attempt) {
	if o.OnAttempt != nil {
		o.OnAttempt(a)
	}
}

func versionOf(v any) uint64 {
	if vv, ok := v.(Versioned); ok {
		return vv.Version()
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
