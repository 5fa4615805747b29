// Package engine implements the Orchestration Runtime: the replay-and-decide
// loop that drives a WorkflowInstance forward one decision round at a time.
// A workflow body is an ordinary Go function; its only way of touching the
// outside world is through the primitives OrchestrationContext exposes, each
// of which is serviced purely from the replayed event slice so that calling
// the same function against the same history always schedules the same
// things in the same order.
package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/history"
)

// WorkflowFunc is the shape every registered orchestration implements.
type WorkflowFunc func(ctx *OrchestrationContext, input json.RawMessage) (json.RawMessage, error)

// suspendSignal unwinds a workflow body back to the decision loop when it
// awaits something not yet resolved in history. continueAsNewSignal does
// the same for a workflow that has chosen to loop via ContinueAsNew. Both
// are recovered in run(); any other panic is a genuine bug and propagates.
type suspendSignal struct{}
type continueAsNewSignal struct{ input json.RawMessage }

// OrchestrationContext is rebuilt fresh for every decision round. It is not
// safe to retain across rounds or use from more than one goroutine.
type OrchestrationContext struct {
	instanceID string
	now        time.Time

	// scheduledInHistory holds, in program order, the prior Scheduled/
	// Created events already committed for this execution.
	scheduledInHistory []history.Event
	// resolutions maps a seq to its Completed/Failed/Fired event.
	resolutions map[int]history.Event
	callIndex   int

	// raisedByName / receivedPayloadsByName back WaitForEvent's FIFO
	// name matching; newlyConsumed counts WaitForEvent(name) calls made
	// so far during this replay.
	raisedByName           map[string][]json.RawMessage
	receivedPayloadsByName map[string][]json.RawMessage
	newlyConsumed          map[string]int

	pending []history.Event
}

// newOrchestrationContext replays a committed event slice into the lookup
// tables the scheduling primitives consult.
func newOrchestrationContext(instanceID string, events []history.Event, now time.Time) *OrchestrationContext {
	ctx := &OrchestrationContext{
		instanceID:             instanceID,
		now:                    now,
		resolutions:            map[int]history.Event{},
		raisedByName:           map[string][]json.RawMessage{},
		receivedPayloadsByName: map[string][]json.RawMessage{},
		newlyConsumed:          map[string]int{},
	}

	for _, e := range events {
		switch e.Kind {
		case history.KindActivityScheduled, history.KindTimerCreated, history.KindSubOrchestrationScheduled:
			ctx.scheduledInHistory = append(ctx.scheduledInHistory, e)
		case history.KindActivityCompleted, history.KindActivityFailed,
			history.KindTimerFired,
			history.KindSubOrchestrationCompleted, history.KindSubOrchestrationFailed:
			ctx.resolutions[e.Seq] = e
		case history.KindExternalEventRaised:
			ctx.raisedByName[e.Name] = append(ctx.raisedByName[e.Name], e.Payload)
		case history.KindExternalEventReceived:
			ctx.receivedPayloadsByName[e.Name] = append(ctx.receivedPayloadsByName[e.Name], e.Payload)
		}
	}

	return ctx
}

// Now returns the wall-clock time materialized at the start of this
// decision round. Workflows must read time only through this method so
// that replay reproduces the same value every time.
func (ctx *OrchestrationContext) Now() time.Time {
	return ctx.now
}

func (ctx *OrchestrationContext) suspend() {
	panic(suspendSignal{})
}

// ContinueAsNew ends the current execution and opens the next one with
// input as its sole seed. It never returns.
func (ctx *OrchestrationContext) ContinueAsNew(input interface{}) {
	data, err := json.Marshal(input)
	if err != nil {
		panic(fmt.Errorf("fatal: marshal continue-as-new input: %w", err))
	}
	panic(continueAsNewSignal{input: data})
}

// decisionOutcomeKind is the shape run() hands back to the driver loop.
type decisionOutcomeKind int

const (
	outcomeSuspended decisionOutcomeKind = iota
	outcomeCompleted
	outcomeContinueAsNew
	outcomeFailed
)

type decisionOutcome struct {
	kind          decisionOutcomeKind
	output        json.RawMessage
	err           error
	continueInput json.RawMessage
}

// run executes fn to its next suspension point (or to completion) and
// reports what happened, recovering the panics ScheduleActivity/CreateTimer/
// WaitForEvent/ContinueAsNew use to unwind.
func (ctx *OrchestrationContext) run(fn WorkflowFunc, input json.RawMessage) (outcome decisionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			switch sig := r.(type) {
			case suspendSignal:
				outcome = decisionOutcome{kind: outcomeSuspended}
			case continueAsNewSignal:
				outcome = decisionOutcome{kind: outcomeContinueAsNew, continueInput: sig.input}
			default:
				panic(r)
			}
		}
	}()

	output, err := fn(ctx, input)
	if err != nil {
		return decisionOutcome{kind: outcomeFailed, err: err}
	}
	return decisionOutcome{kind: outcomeCompleted, output: output}
}

func marshalInput(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fatal: marshal activity input: %w", err)
	}
	return data, nil
}
