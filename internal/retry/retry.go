// Package retry repeats startup steps with capped exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds a retry loop. Attempts <= 0 retries until ctx is done.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Startup is the policy the binaries use for dependencies that may come up late.
var Startup = Policy{Attempts: 10, Initial: 2 * time.Second, Max: 30 * time.Second}

// Do calls fn until it succeeds, the attempts run out, or ctx is done. It
// returns nil on success, otherwise the last error from fn or ctx.Err().
func Do(ctx context.Context, log *slog.Logger, what string, p Policy, fn func(context.Context) error) error {
	delay := p.Initial
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Attempts > 0 && attempt >= p.Attempts {
			return err
		}

		log.Warn(what+" failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.Attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
}
