// Package waiter blocks startup until a dependency answers.
package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Probe returns nil once the dependency is usable.
type Probe func(ctx context.Context) error

const (
	baseDelay = 100 * time.Millisecond
	maxDelay  = 2 * time.Second
)

// Wait calls probe with exponential backoff until it succeeds or timeout
// elapses. The last probe error is returned on timeout.
func Wait(ctx context.Context, name string, timeout time.Duration, logger logging.Logger, probe Probe) error {
	b := retry.NewExponential(baseDelay)
	b = retry.WithCappedDuration(maxDelay, b)
	b = retry.WithMaxDuration(timeout, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := probe(ctx); err != nil {
			logger.Debug(ctx, "dependency not ready", "dependency", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s not ready after %s: %w", name, timeout, err)
	}
	logger.Info(ctx, "dependency ready", "dependency", name, "attempts", attempt)
	return nil
}
