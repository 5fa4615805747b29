package history

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/affandar/toygres/pkg/types"
)

// Store is the full contract the Orchestration Runtime and Activity Worker
// depend on. A RaftStore proposes every mutation through Raft so that at
// most one leader ever commits it; reads are served locally since a
// follower's applied log is, by construction, a prefix of the leader's.
type Store interface {
	// CreateInstance starts a new WorkflowInstance at execution 1 and
	// appends its OrchestrationStarted event. created=false means the
	// instance_id was already in use (StartOrchestration is a no-op then).
	CreateInstance(instanceID, name string, version int, input json.RawMessage) (created bool, err error)

	GetWorkflowInstance(instanceID string) (*types.WorkflowInstance, error)
	ListInstances() ([]string, error)
	ListExecutions(instanceID string) ([]int, error)
	ReadHistory(instanceID string, executionID int) ([]Event, error)

	// AppendEvents commits the events one decision round produced, in
	// order, assigning seq to any Scheduled/Created kind that doesn't carry
	// one yet. It is the only way history grows.
	AppendEvents(instanceID string, executionID int, events []Event) error

	// ContinueAsNew closes the current execution (already recorded via
	// AppendEvents carrying a ContinuedAsNew event) and opens the next one
	// with a fresh, input-only history.
	ContinueAsNew(instanceID string, nextExecutionID int, input json.RawMessage) error

	// RaiseEvent appends ExternalEventRaised into the current execution of
	// instanceID. Used by RaiseEvent activities and by the Client Surface.
	RaiseEvent(instanceID string, name string, payload json.RawMessage) error

	// Workflow-plane (instance) leases.
	AcquireInstanceLease(instanceID, owner string, timeout time.Duration) (bool, error)
	RenewInstanceLease(instanceID, owner string, timeout time.Duration) error
	ReleaseInstanceLease(instanceID, owner string) error

	// Activity-plane leases.
	ListClaimableActivities(limit int) ([]ActivityWorkItem, error)
	ClaimActivity(item ActivityWorkItem, owner string, timeout time.Duration) (bool, error)
	ReapExpiredLeases() (instanceLeasesReaped int, activityLeasesReaped int, err error)

	Close() error
}

func leaseKey(instanceID string, executionID int, seq int) string {
	return instanceID + "\x00" + strconv.Itoa(executionID) + "\x00" + strconv.Itoa(seq)
}

func executionKey(instanceID string, executionID int) string {
	return instanceID + "\x00" + strconv.Itoa(executionID)
}
