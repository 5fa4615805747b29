package history

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/affandar/toygres/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftConfig configures the single-node-by-default Raft cluster backing
// the Event-History Store. Multi-node joins follow the teacher's
// Manager.Bootstrap/Join split but are not exercised by the three
// workflows this repo implements; NodeID/BindAddr still matter because
// raft.NewRaft needs a transport even in single-node mode.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftStore is the Store implementation the rest of the control plane
// talks to. Every mutating call builds a Command and proposes it through
// raft.Raft.Apply; only the elected leader's proposals ever commit, which
// is what makes "single-writer-per-instance" (spec.md §4.2) hold without a
// separate leader-election layer.
type RaftStore struct {
	raft  *raft.Raft
	fsm   *FSM
	store *BoltStore

	applyTimeout time.Duration
}

// OpenRaftStore opens the local BoltStore, wraps it in an FSM, and
// bootstraps a single-node Raft cluster over it. Mirrors the shape of the
// teacher's Manager.NewManager + Bootstrap, collapsed into one call since
// this repo has no separate join-an-existing-cluster path to support.
func OpenRaftStore(cfg RaftConfig) (*RaftStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("fatal: create history data dir: %w", err)
	}

	boltStore, err := NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	fsm := NewFSM(boltStore)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("fatal: resolve raft bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("fatal: create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("fatal: create raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("fatal: create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("fatal: create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("fatal: create raft instance: %w", err)
	}

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		return nil, err
	}
	if !hasState {
		bootstrapConfig := raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		}
		if err := r.BootstrapCluster(bootstrapConfig).Error(); err != nil {
			return nil, fmt.Errorf("fatal: bootstrap raft cluster: %w", err)
		}
	}

	return &RaftStore{raft: r, fsm: fsm, store: boltStore, applyTimeout: 5 * time.Second}, nil
}

// IsLeader reports whether this node is currently the Raft leader for the
// Event-History Store.
func (s *RaftStore) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address, or "" if none is
// elected yet.
func (s *RaftStore) LeaderAddr() string {
	return string(s.raft.Leader())
}

// WaitForLeader blocks until this node (or any node) becomes Raft leader,
// or the timeout elapses.
func (s *RaftStore) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.raft.Leader() != "" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("transient: no raft leader elected within %s", timeout)
}

func (s *RaftStore) apply(op string, args interface{}) (interface{}, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("fatal: marshal %s args: %w", op, err)
	}
	cmd := Command{Op: op, Data: data, Now: time.Now().UTC()}
	cmdData, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("fatal: marshal command: %w", err)
	}

	future := s.raft.Apply(cmdData, s.applyTimeout)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("transient: raft apply %s: %w", op, err)
	}
	res, ok := future.Response().(fsmResult)
	if !ok {
		return nil, fmt.Errorf("fatal: unexpected fsm response type for %s", op)
	}
	return res.value, res.err
}

func (s *RaftStore) CreateInstance(instanceID, name string, version int, input json.RawMessage) (bool, error) {
	v, err := s.apply(opCreateInstance, createInstanceArgs{InstanceID: instanceID, Name: name, Version: version, Input: input})
	if err != nil {
		return false, err
	}
	res, _ := v.(createInstanceResult)
	return res.Created, nil
}

func (s *RaftStore) GetWorkflowInstance(instanceID string) (*types.WorkflowInstance, error) {
	return s.store.GetWorkflowInstance(instanceID)
}

func (s *RaftStore) ListInstances() ([]string, error) {
	return s.store.ListInstances()
}

func (s *RaftStore) ListExecutions(instanceID string) ([]int, error) {
	return s.store.ListExecutions(instanceID)
}

func (s *RaftStore) ReadHistory(instanceID string, executionID int) ([]Event, error) {
	return s.store.ReadHistory(instanceID, executionID)
}

func (s *RaftStore) AppendEvents(instanceID string, executionID int, events []Event) error {
	_, err := s.apply(opAppendEvents, appendEventsArgs{InstanceID: instanceID, ExecutionID: executionID, Events: events})
	return err
}

func (s *RaftStore) ContinueAsNew(instanceID string, nextExecutionID int, input json.RawMessage) error {
	_, err := s.apply(opContinueAsNew, continueAsNewArgs{InstanceID: instanceID, NextExecutionID: nextExecutionID, Input: input})
	return err
}

func (s *RaftStore) RaiseEvent(instanceID, name string, payload json.RawMessage) error {
	_, err := s.apply(opRaiseEvent, raiseEventArgs{InstanceID: instanceID, Name: name, Payload: payload})
	return err
}

func (s *RaftStore) AcquireInstanceLease(instanceID, owner string, timeout time.Duration) (bool, error) {
	v, err := s.apply(opAcquireInstanceLease, leaseArgs{InstanceID: instanceID, Owner: owner, Timeout: timeout})
	if err != nil {
		return false, err
	}
	res, _ := v.(leaseResult)
	return res.Acquired, nil
}

func (s *RaftStore) RenewInstanceLease(instanceID, owner string, timeout time.Duration) error {
	_, err := s.apply(opRenewInstanceLease, leaseArgs{InstanceID: instanceID, Owner: owner, Timeout: timeout})
	return err
}

func (s *RaftStore) ReleaseInstanceLease(instanceID, owner string) error {
	_, err := s.apply(opReleaseInstanceLease, leaseArgs{InstanceID: instanceID, Owner: owner})
	return err
}

// ListClaimableActivities is a read and bypasses Raft: claim decisions are
// still serialized by ClaimActivity's proposal, so a stale read here only
// risks a wasted (and safely rejected) claim attempt.
func (s *RaftStore) ListClaimableActivities(limit int) ([]ActivityWorkItem, error) {
	return s.store.listClaimableActivities(limit, time.Now().UTC())
}

func (s *RaftStore) ClaimActivity(item ActivityWorkItem, owner string, timeout time.Duration) (bool, error) {
	v, err := s.apply(opClaimActivity, claimActivityArgs{Item: item, Owner: owner, Timeout: timeout})
	if err != nil {
		return false, err
	}
	claimed, _ := v.(bool)
	return claimed, nil
}

func (s *RaftStore) ReapExpiredLeases() (int, int, error) {
	v, err := s.apply(opReapExpiredLeases, struct{}{})
	if err != nil {
		return 0, 0, err
	}
	res, _ := v.(reapResult)
	return res.InstanceLeasesReaped, res.ActivityLeasesReaped, nil
}

var _ Store = (*RaftStore)(nil)

func (s *RaftStore) Close() error {
	if err := s.raft.Shutdown().Error(); err != nil {
		return err
	}
	return s.store.Close()
}
