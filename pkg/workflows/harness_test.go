package workflows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/engine"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
)

// memStore is a minimal in-memory history.Store good enough to drive whole
// workflows end to end in tests: it assigns seq numbers the same way
// BoltStore does (max-seen-so-far, per execution) and tracks terminal
// status so sub-orchestration resolution and ContinueAsNew behave like the
// real thing.
type memStore struct {
	instances map[string]*memInstance
}

type memInstance struct {
	name               string
	version            int
	status             types.WorkflowStatus
	currentExecutionID int
	output             json.RawMessage
	failureDetails     string
	executions         map[int][]history.Event
}

func newMemStore() *memStore {
	return &memStore{instances: map[string]*memInstance{}}
}

func (s *memStore) CreateInstance(instanceID, name string, version int, input json.RawMessage) (bool, error) {
	if _, exists := s.instances[instanceID]; exists {
		return false, nil
	}
	s.instances[instanceID] = &memInstance{
		name: name, version: version, status: types.WorkflowRunning, currentExecutionID: 1,
		executions: map[int][]history.Event{
			1: {{Kind: history.KindOrchestrationStarted, Input: input, Timestamp: time.Now()}},
		},
	}
	return true, nil
}

func (s *memStore) GetWorkflowInstance(instanceID string) (*types.WorkflowInstance, error) {
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, nil
	}
	return &types.WorkflowInstance{
		InstanceID: instanceID, Name: inst.name, Version: inst.version, Status: inst.status,
		CurrentExecutionID: inst.currentExecutionID, Output: string(inst.output), FailureDetails: inst.failureDetails,
	}, nil
}

func (s *memStore) ListInstances() ([]string, error) {
	var ids []string
	for id := range s.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) ListExecutions(instanceID string) ([]int, error) {
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, nil
	}
	var ids []int
	for id := range inst.executions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) ReadHistory(instanceID string, executionID int) ([]history.Event, error) {
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, nil
	}
	return append([]history.Event{}, inst.executions[executionID]...), nil
}

func (s *memStore) AppendEvents(instanceID string, executionID int, newEvents []history.Event) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("unknown instance %s", instanceID)
	}
	existing := inst.executions[executionID]

	nextSeq := 0
	for _, e := range existing {
		if e.Seq > nextSeq {
			nextSeq = e.Seq
		}
	}

	for _, e := range newEvents {
		switch e.Kind {
		case history.KindActivityScheduled, history.KindTimerCreated, history.KindSubOrchestrationScheduled:
			if e.Seq == 0 {
				nextSeq++
				e.Seq = nextSeq
			}
		case history.KindOrchestrationCompleted:
			inst.status = types.WorkflowCompleted
			inst.output = e.Output
		case history.KindOrchestrationFailed:
			inst.status = types.WorkflowFailed
			inst.failureDetails = e.Error
		}
		existing = append(existing, e)
	}
	inst.executions[executionID] = existing
	return nil
}

func (s *memStore) ContinueAsNew(instanceID string, nextExecutionID int, input json.RawMessage) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("unknown instance %s", instanceID)
	}
	inst.currentExecutionID = nextExecutionID
	inst.status = types.WorkflowRunning
	inst.executions[nextExecutionID] = []history.Event{{Kind: history.KindOrchestrationStarted, Input: input, Timestamp: time.Now()}}
	return nil
}

func (s *memStore) RaiseEvent(instanceID, name string, payload json.RawMessage) error {
	inst, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("unknown instance %s", instanceID)
	}
	inst.executions[inst.currentExecutionID] = append(inst.executions[inst.currentExecutionID], history.Event{
		Kind: history.KindExternalEventRaised, Name: name, Payload: payload, Timestamp: time.Now(),
	})
	return nil
}

func (s *memStore) AcquireInstanceLease(string, string, time.Duration) (bool, error) { return true, nil }
func (s *memStore) RenewInstanceLease(string, string, time.Duration) error           { return nil }
func (s *memStore) ReleaseInstanceLease(string, string) error                        { return nil }
func (s *memStore) ListClaimableActivities(int) ([]history.ActivityWorkItem, error)  { return nil, nil }
func (s *memStore) ClaimActivity(history.ActivityWorkItem, string, time.Duration) (bool, error) {
	return true, nil
}
func (s *memStore) ReapExpiredLeases() (int, int, error) { return 0, 0, nil }
func (s *memStore) Close() error                         { return nil }

// unresolvedActivities returns every ActivityScheduled event in
// instanceID's current execution that has no matching Completed/Failed
// event yet, letting a test simulate the Activity Worker by answering them.
func (s *memStore) unresolvedActivities(instanceID string) []history.Event {
	inst := s.instances[instanceID]
	events := inst.executions[inst.currentExecutionID]
	resolved := map[int]bool{}
	for _, e := range events {
		if e.Kind == history.KindActivityCompleted || e.Kind == history.KindActivityFailed {
			resolved[e.Seq] = true
		}
	}
	var out []history.Event
	for _, e := range events {
		if e.Kind == history.KindActivityScheduled && !resolved[e.Seq] {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) unfiredTimers(instanceID string) []history.Event {
	inst := s.instances[instanceID]
	events := inst.executions[inst.currentExecutionID]
	resolved := map[int]bool{}
	for _, e := range events {
		if e.Kind == history.KindTimerFired {
			resolved[e.Seq] = true
		}
	}
	var out []history.Event
	for _, e := range events {
		if e.Kind == history.KindTimerCreated && !resolved[e.Seq] {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) completeActivity(instanceID string, seq int, output json.RawMessage) error {
	inst := s.instances[instanceID]
	return s.AppendEvents(instanceID, inst.currentExecutionID, []history.Event{
		{Kind: history.KindActivityCompleted, Seq: seq, Output: output, Timestamp: time.Now()},
	})
}

func (s *memStore) failActivity(instanceID string, seq int, errMsg string) error {
	inst := s.instances[instanceID]
	return s.AppendEvents(instanceID, inst.currentExecutionID, []history.Event{
		{Kind: history.KindActivityFailed, Seq: seq, Error: errMsg, Timestamp: time.Now()},
	})
}

func (s *memStore) fireTimer(instanceID string, seq int) error {
	inst := s.instances[instanceID]
	return s.AppendEvents(instanceID, inst.currentExecutionID, []history.Event{
		{Kind: history.KindTimerFired, Seq: seq, Timestamp: time.Now()},
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// resolveSubOrchestrations mirrors engine.Dispatcher's unexported method of
// the same name closely enough to drive tests deterministically: spawn a
// child instance the first time its scheduling is observed, and propagate
// its terminal status back to the parent once it reaches one.
func resolveSubOrchestrations(store *memStore, instanceID string) error {
	wi, err := store.GetWorkflowInstance(instanceID)
	if err != nil || wi == nil || wi.Status != types.WorkflowRunning {
		return err
	}

	events, err := store.ReadHistory(instanceID, wi.CurrentExecutionID)
	if err != nil {
		return err
	}

	resolved := map[int]bool{}
	pending := map[int]history.Event{}
	for _, e := range events {
		switch e.Kind {
		case history.KindSubOrchestrationScheduled:
			pending[e.Seq] = e
		case history.KindSubOrchestrationCompleted, history.KindSubOrchestrationFailed:
			resolved[e.Seq] = true
		}
	}

	var toAppend []history.Event
	for seq, sched := range pending {
		if resolved[seq] {
			continue
		}
		child, err := store.GetWorkflowInstance(sched.ChildInstanceID)
		if err != nil {
			return err
		}
		if child == nil {
			if _, err := store.CreateInstance(sched.ChildInstanceID, sched.Name, 1, sched.Input); err != nil {
				return err
			}
			continue
		}
		switch child.Status {
		case types.WorkflowCompleted:
			toAppend = append(toAppend, history.Event{Kind: history.KindSubOrchestrationCompleted, Seq: seq, Output: json.RawMessage(child.Output)})
		case types.WorkflowFailed:
			toAppend = append(toAppend, history.Event{Kind: history.KindSubOrchestrationFailed, Seq: seq, Error: child.FailureDetails})
		}
	}

	if len(toAppend) == 0 {
		return nil
	}
	return store.AppendEvents(instanceID, wi.CurrentExecutionID, toAppend)
}

// activityHandler lets a test answer an activity by name; returning a
// non-empty errMsg fails the activity instead of completing it.
type activityHandler func() (output interface{}, errMsg string)

// driveToTerminal repeatedly resolves sub-orchestrations, runs a decision
// round on every Running instance, and answers any activity or timer the
// round produced, until rootID reaches a terminal status or maxRounds is
// exhausted.
func driveToTerminal(store *memStore, rt *engine.Runtime, rootID string, stubs map[string]activityHandler, maxRounds int) error {
	for round := 0; round < maxRounds; round++ {
		ids, err := store.ListInstances()
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := resolveSubOrchestrations(store, id); err != nil {
				return err
			}
			wi, err := store.GetWorkflowInstance(id)
			if err != nil {
				return err
			}
			if wi == nil || wi.Status != types.WorkflowRunning {
				continue
			}
			if err := rt.Decide(id); err != nil {
				return err
			}
			for _, e := range store.unresolvedActivities(id) {
				handler, ok := stubs[e.Name]
				if !ok {
					continue
				}
				out, errMsg := handler()
				if errMsg != "" {
					if err := store.failActivity(id, e.Seq, errMsg); err != nil {
						return err
					}
					continue
				}
				if err := store.completeActivity(id, e.Seq, mustJSON(out)); err != nil {
					return err
				}
			}
			for _, e := range store.unfiredTimers(id) {
				if err := store.fireTimer(id, e.Seq); err != nil {
					return err
				}
			}
		}

		root, err := store.GetWorkflowInstance(rootID)
		if err != nil {
			return err
		}
		if root != nil && root.Status != types.WorkflowRunning {
			return nil
		}
	}
	return fmt.Errorf("instance %s did not reach a terminal status within %d rounds", rootID, maxRounds)
}
