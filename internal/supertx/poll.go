package supertx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AwaitCompletion polls /status until the transaction reaches a terminal
// status. Backoff doubles from the configured interval up to the maximum;
// the overall deadline bounds the wait so a stuck transaction surfaces as
// ErrStatusTimeout and can be flagged for manual review instead of being
// polled forever.
func (c *Client) AwaitCompletion(ctx context.Context, txHash string) (*StatusResult, error) {
	interval := c.poll.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxInterval := c.poll.maxInterval
	if maxInterval < interval {
		maxInterval = interval
	}

	deadline := time.Now().Add(c.poll.deadline)
	if c.poll.deadline <= 0 {
		deadline = time.Now().Add(10 * time.Minute)
	}

	for {
		result, err := c.Status(ctx, txHash)
		switch {
		case err == nil:
			if result.Status == StatusCompleted || result.Status == StatusFailed {
				zap.L().Info("Transaction reached terminal status",
					zap.String("tx_hash", txHash),
					zap.String("status", result.Status))
				return result, nil
			}
		case errors.Is(err, ErrNetwork):
			// Transient; keep polling until the deadline.
			zap.L().Warn("Status poll failed, will retry",
				zap.String("tx_hash", txHash),
				zap.Error(err))
		default:
			return nil, err
		}

		if time.Now().Add(interval).After(deadline) {
			zap.L().Warn("Giving up on transaction status",
				zap.String("tx_hash", txHash),
				zap.Duration("waited", c.poll.deadline))
			return nil, fmt.Errorf("%w: %s", ErrStatusTimeout, txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}
