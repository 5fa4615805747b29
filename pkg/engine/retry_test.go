package engine

import (
	"testing"
	"time"

	"github.com/affandar/toygres/pkg/history"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayLinearMatchesWorkedExample(t *testing.T) {
	policy := history.RetryPolicy{Backoff: history.BackoffLinear, BaseDelay: 2 * time.Second}

	assert.Equal(t, 2*time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 6*time.Second, backoffDelay(policy, 3))
}

func TestBackoffDelayFixed(t *testing.T) {
	policy := history.RetryPolicy{Backoff: history.BackoffFixed, BaseDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 5*time.Second, backoffDelay(policy, 4))
}

func TestBackoffDelayExponentialRespectsMaxDelay(t *testing.T) {
	policy := history.RetryPolicy{
		Backoff:    history.BackoffExponential,
		BaseDelay:  1 * time.Second,
		Multiplier: 2,
		MaxDelay:   5 * time.Second,
	}

	assert.Equal(t, 1*time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(policy, 3))
	assert.Equal(t, 5*time.Second, backoffDelay(policy, 4), "8s would exceed MaxDelay and must be capped")
}
