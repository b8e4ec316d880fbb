package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// callAttempts bounds retries of one provider call. A turn that fails all
// attempts propagates the error; failed turns are never billed.
const callAttempts = 3

// withRetry runs a provider call with bounded exponential backoff. Context
// cancellation stops the retry loop immediately.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, callAttempts-1), ctx))
}
