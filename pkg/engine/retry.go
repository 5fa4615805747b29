package engine

import (
	"time"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
)

// ScheduleActivityWithRetry runs ScheduleActivity in a loop governed by
// policy, matching spec.md §7's backoff table. Only errors activities.
// Classify calls transient are retried; conflict and fatal errors return
// immediately regardless of MaxAttempts, and attempts stop once
// policy.OverallTimeout has elapsed since the first attempt.
func ScheduleActivityWithRetry(ctx *OrchestrationContext, name string, input interface{}, policy history.RetryPolicy) ([]byte, error) {
	start := ctx.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		future := ctx.scheduleActivityWithPolicy(name, input, &policy)
		output, err := future.Await(ctx)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if activities.Classify(err) != types.ErrorTransient {
			return nil, err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return nil, lastErr
		}
		if policy.OverallTimeout > 0 && ctx.Now().Sub(start) >= policy.OverallTimeout {
			return nil, lastErr
		}

		delay := backoffDelay(policy, attempt)
		timer := ctx.CreateTimer(delay)
		if err := timer.Await(ctx); err != nil {
			return nil, err
		}
	}
}

// backoffDelay computes the wait before the next attempt. attempt is the
// 1-indexed number of the attempt that just failed. Verified against
// spec.md's worked example: Linear with BaseDelay=2s produces 2s, 4s, 6s
// on attempts 1, 2, 3.
func backoffDelay(policy history.RetryPolicy, attempt int) time.Duration {
	var delay time.Duration
	switch policy.Backoff {
	case history.BackoffFixed:
		delay = policy.BaseDelay
	case history.BackoffLinear:
		delay = policy.BaseDelay * time.Duration(attempt)
	case history.BackoffExponential:
		multiplier := policy.Multiplier
		if multiplier <= 0 {
			multiplier = 2
		}
		delay = policy.BaseDelay
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * multiplier)
		}
	default:
		delay = policy.BaseDelay
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}
