package history

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/raft"
)

// Command is a state-change operation in the Raft log: the same tagged
// {Op, Data} shape the teacher's WarrenFSM uses, one entry per history
// mutation rather than per cluster-object mutation.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
	Now  time.Time       `json:"now"`
}

const (
	opCreateInstance       = "create_instance"
	opAppendEvents         = "append_events"
	opContinueAsNew        = "continue_as_new"
	opRaiseEvent           = "raise_event"
	opAcquireInstanceLease = "acquire_instance_lease"
	opRenewInstanceLease   = "renew_instance_lease"
	opReleaseInstanceLease = "release_instance_lease"
	opClaimActivity        = "claim_activity"
	opReapExpiredLeases    = "reap_expired_leases"
)

// FSM implements raft.FSM over a BoltStore. Apply is the only place a
// Command is interpreted; every write method on RaftStore builds one of
// these and proposes it through raft.Raft.Apply.
type FSM struct {
	store *BoltStore
}

// NewFSM wraps store for use as a raft.FSM.
func NewFSM(store *BoltStore) *FSM {
	return &FSM{store: store}
}

type createInstanceArgs struct {
	InstanceID string          `json:"instance_id"`
	Name       string          `json:"name"`
	Version    int             `json:"version"`
	Input      json.RawMessage `json:"input"`
}

type createInstanceResult struct {
	Created bool `json:"created"`
}

type appendEventsArgs struct {
	InstanceID  string  `json:"instance_id"`
	ExecutionID int     `json:"execution_id"`
	Events      []Event `json:"events"`
}

type continueAsNewArgs struct {
	InstanceID      string          `json:"instance_id"`
	NextExecutionID int             `json:"next_execution_id"`
	Input           json.RawMessage `json:"input"`
}

type raiseEventArgs struct {
	InstanceID string          `json:"instance_id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
}

type leaseArgs struct {
	InstanceID string        `json:"instance_id"`
	Owner      string        `json:"owner"`
	Timeout    time.Duration `json:"timeout"`
}

type leaseResult struct {
	Acquired bool `json:"acquired"`
}

type claimActivityArgs struct {
	Item    ActivityWorkItem `json:"item"`
	Owner   string           `json:"owner"`
	Timeout time.Duration    `json:"timeout"`
}

type reapResult struct {
	InstanceLeasesReaped int `json:"instance_leases_reaped"`
	ActivityLeasesReaped int `json:"activity_leases_reaped"`
}

// fsmResult is what Apply returns; callers type-assert it out of the
// raft.ApplyFuture response.
type fsmResult struct {
	value interface{}
	err   error
}

// Apply applies one committed Raft log entry to the underlying BoltStore.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fsmResult{err: fmt.Errorf("fatal: unmarshal command: %w", err)}
	}

	switch cmd.Op {
	case opCreateInstance:
		var a createInstanceArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		created, err := f.store.createInstance(a.InstanceID, a.Name, a.Version, a.Input, cmd.Now)
		return fsmResult{value: createInstanceResult{Created: created}, err: err}

	case opAppendEvents:
		var a appendEventsArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		err := f.store.appendEvents(a.InstanceID, a.ExecutionID, a.Events, cmd.Now)
		return fsmResult{err: err}

	case opContinueAsNew:
		var a continueAsNewArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		err := f.store.continueAsNew(a.InstanceID, a.NextExecutionID, a.Input, cmd.Now)
		return fsmResult{err: err}

	case opRaiseEvent:
		var a raiseEventArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		err := f.store.raiseEvent(a.InstanceID, a.Name, a.Payload, cmd.Now)
		return fsmResult{err: err}

	case opAcquireInstanceLease:
		var a leaseArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		acquired, err := f.store.acquireInstanceLease(a.InstanceID, a.Owner, a.Timeout, cmd.Now)
		return fsmResult{value: leaseResult{Acquired: acquired}, err: err}

	case opRenewInstanceLease:
		var a leaseArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		err := f.store.renewInstanceLease(a.InstanceID, a.Owner, a.Timeout, cmd.Now)
		return fsmResult{err: err}

	case opReleaseInstanceLease:
		var a leaseArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		err := f.store.releaseInstanceLease(a.InstanceID, a.Owner)
		return fsmResult{err: err}

	case opClaimActivity:
		var a claimActivityArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return fsmResult{err: err}
		}
		claimed, err := f.store.claimActivity(a.Item, a.Owner, a.Timeout, cmd.Now)
		return fsmResult{value: claimed, err: err}

	case opReapExpiredLeases:
		instanceReaped, activityReaped, err := f.store.reapExpiredLeases(cmd.Now)
		return fsmResult{value: reapResult{InstanceLeasesReaped: instanceReaped, ActivityLeasesReaped: activityReaped}, err: err}

	default:
		return fsmResult{err: fmt.Errorf("fatal: unknown history command %q", cmd.Op)}
	}
}

// snapshot is the point-in-time dump of every bucket, restorable in full.
type snapshot struct {
	Instances  map[string]json.RawMessage `json:"instances"`
	Executions map[string]json.RawMessage `json:"executions"`
	Leases     map[string]json.RawMessage `json:"leases"`
}

// Snapshot dumps the full BoltStore state for Raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	snap, err := f.store.dumpForSnapshot()
	if err != nil {
		return nil, err
	}
	return &historySnapshot{data: snap}, nil
}

// historySnapshot is the raft.FSMSnapshot returned to the Raft library.
type historySnapshot struct {
	data snapshot
}

func (s *historySnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.data); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *historySnapshot) Release() {}

// Restore replaces the BoltStore's contents with a previously persisted
// snapshot. Called when a node joins or restarts behind the log.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("fatal: decode history snapshot: %w", err)
	}

	return f.store.restoreSnapshot(snap.Instances, snap.Executions, snap.Leases)
}
