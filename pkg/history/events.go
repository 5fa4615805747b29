// Package history implements the Event-History Store: an append-only,
// per-execution event log plus the lease bookkeeping that arbitrates
// deciders and activity workers. It is replicated via Raft so that only
// the current leader ever proposes a decision round, giving the
// single-writer-per-instance guarantee the Orchestration Runtime relies on.
package history

import (
	"encoding/json"
	"time"
)

// EventKind enumerates the canonical event vocabulary. The set is closed;
// replay must be exhaustive over it.
type EventKind string

const (
	KindOrchestrationStarted      EventKind = "OrchestrationStarted"
	KindActivityScheduled         EventKind = "ActivityScheduled"
	KindActivityCompleted         EventKind = "ActivityCompleted"
	KindActivityFailed            EventKind = "ActivityFailed"
	KindTimerCreated              EventKind = "TimerCreated"
	KindTimerFired                EventKind = "TimerFired"
	KindSubOrchestrationScheduled EventKind = "SubOrchestrationScheduled"
	KindSubOrchestrationCompleted EventKind = "SubOrchestrationCompleted"
	KindSubOrchestrationFailed    EventKind = "SubOrchestrationFailed"
	KindExternalEventRaised       EventKind = "ExternalEventRaised"
	KindExternalEventReceived     EventKind = "ExternalEventReceived"
	KindContinuedAsNew            EventKind = "ContinuedAsNew"
	KindOrchestrationCompleted    EventKind = "OrchestrationCompleted"
	KindOrchestrationFailed       EventKind = "OrchestrationFailed"
)

// BackoffKind selects the shape of a retry policy's inter-attempt delay.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy is the wire shape of an activity retry policy, carried on
// ActivityScheduled so that a replaying workflow can reconstruct the same
// backoff schedule without recomputing it from scratch.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	Backoff        BackoffKind   `json:"backoff"`
	BaseDelay      time.Duration `json:"base_delay"`
	Multiplier     float64       `json:"multiplier,omitempty"`
	MaxDelay       time.Duration `json:"max_delay,omitempty"`
	OverallTimeout time.Duration `json:"overall_timeout,omitempty"`
}

// Event is one entry in an execution's ordered history. Kind determines
// which of the remaining fields are meaningful; unused fields are left at
// their zero value and omitted on the wire.
type Event struct {
	Seq    int       `json:"seq,omitempty"`
	Kind   EventKind `json:"kind"`
	Name   string    `json:"name,omitempty"`
	Version int      `json:"version,omitempty"`

	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	FireAt time.Time `json:"fire_at,omitempty"`

	ChildInstanceID string `json:"child_instance_id,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Lease is a time-bounded exclusive claim, either on a WorkflowInstance (the
// workflow plane) or on one scheduled activity record (the activity plane).
type Lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l Lease) expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// ActivityWorkItem identifies one claimable ActivityScheduled record.
type ActivityWorkItem struct {
	InstanceID  string          `json:"instance_id"`
	ExecutionID int             `json:"execution_id"`
	Seq         int             `json:"seq"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
}

// Key is the composite key workers use to resolve completions back to the
// scheduled record they satisfy.
func (w ActivityWorkItem) key() string {
	return leaseKey(w.InstanceID, w.ExecutionID, w.Seq)
}
