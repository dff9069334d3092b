package orchestrator

import (
	"context"
	"errors"
	"time"

	"botfleet/pkg/orcherr"
	"botfleet/pkg/ratecoord"
)

// withAdmission acquires a Rate Coordinator lease for credentialID before
// running fn, and releases it afterwards with the outcome the error
// implies. deadline bounds the admission wait itself, not fn's own
// execution.
func withAdmission[T any](ctx context.Context, rc *ratecoord.Coordinator, credentialID string, priority int, deadline time.Time, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	lease, err := rc.Acquire(ctx, credentialID, priority, deadline)
	if err != nil {
		return zero, err
	}

	result, callErr := fn(ctx)
	rc.Release(lease, outcomeFor(callErr))
	return result, callErr
}

func outcomeFor(err error) ratecoord.Outcome {
	switch {
	case err == nil:
		return ratecoord.OutcomeSuccess
	case errors.Is(err, orcherr.ErrRateLimited):
		return ratecoord.OutcomeRateLimited
	default:
		return ratecoord.OutcomeFailure
	}
}
