package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/history"
)

// Awaitable is the common shape Select races over. A concrete future knows
// whether it has already resolved from the replayed history without
// needing to be awaited first.
type Awaitable interface {
	Resolved() bool
}

// ActivityFuture is returned by ScheduleActivity / ScheduleActivityWithRetry.
type ActivityFuture struct {
	seq      int
	resolved bool
	output   json.RawMessage
	failErr  string
}

func (f *ActivityFuture) Resolved() bool { return f.resolved }

// Await blocks (by suspending the whole decision round) until the
// activity's completion or failure event is present in history.
func (f *ActivityFuture) Await(ctx *OrchestrationContext) (json.RawMessage, error) {
	if !f.resolved {
		ctx.suspend()
	}
	if f.failErr != "" {
		return nil, errors.New(f.failErr)
	}
	return f.output, nil
}

// TimerFuture is returned by CreateTimer.
type TimerFuture struct {
	seq      int
	resolved bool
}

func (f *TimerFuture) Resolved() bool { return f.resolved }

func (f *TimerFuture) Await(ctx *OrchestrationContext) error {
	if !f.resolved {
		ctx.suspend()
	}
	return nil
}

// SubOrchestrationFuture is returned by CallSubOrchestration.
type SubOrchestrationFuture struct {
	seq      int
	resolved bool
	output   json.RawMessage
	failErr  string
}

func (f *SubOrchestrationFuture) Resolved() bool { return f.resolved }

func (f *SubOrchestrationFuture) Await(ctx *OrchestrationContext) (json.RawMessage, error) {
	if !f.resolved {
		ctx.suspend()
	}
	if f.failErr != "" {
		return nil, errors.New(f.failErr)
	}
	return f.output, nil
}

// EventFuture is returned by WaitForEvent.
type EventFuture struct {
	resolved bool
	payload  json.RawMessage
}

func (f *EventFuture) Resolved() bool { return f.resolved }

func (f *EventFuture) Await(ctx *OrchestrationContext) (json.RawMessage, error) {
	if !f.resolved {
		ctx.suspend()
	}
	return f.payload, nil
}

// AwaitAs decodes a resolved ActivityFuture's output into T. Go methods
// can't carry their own type parameters, so typed activity results go
// through this free function instead of a generic method.
func AwaitAs[T any](ctx *OrchestrationContext, f *ActivityFuture) (T, error) {
	var v T
	raw, err := f.Await(ctx)
	if err != nil {
		return v, err
	}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("fatal: decode activity output: %w", err)
	}
	return v, nil
}

// ScheduleActivity is the single-attempt scheduling primitive: spec.md
// §4.2 step 3 in code. The first call against a fresh decision round whose
// program-order slot has no committed Scheduled event yet records one and
// leaves the future unresolved; a later replay that reaches the matching
// Completed/Failed event resolves it without scheduling anything new.
func (ctx *OrchestrationContext) ScheduleActivity(name string, input interface{}) *ActivityFuture {
	return ctx.scheduleActivityWithPolicy(name, input, nil)
}

func (ctx *OrchestrationContext) scheduleActivityWithPolicy(name string, input interface{}, policy *history.RetryPolicy) *ActivityFuture {
	data, err := marshalInput(input)
	if err != nil {
		panic(err)
	}

	idx := ctx.callIndex
	ctx.callIndex++

	if idx >= len(ctx.scheduledInHistory) {
		ctx.pending = append(ctx.pending, history.Event{
			Kind:        history.KindActivityScheduled,
			Name:        name,
			Input:       data,
			RetryPolicy: policy,
		})
		return &ActivityFuture{}
	}

	scheduled := ctx.scheduledInHistory[idx]
	res, ok := ctx.resolutions[scheduled.Seq]
	if !ok {
		return &ActivityFuture{seq: scheduled.Seq}
	}
	if res.Kind == history.KindActivityFailed {
		return &ActivityFuture{seq: scheduled.Seq, resolved: true, failErr: res.Error}
	}
	return &ActivityFuture{seq: scheduled.Seq, resolved: true, output: res.Output}
}

// CreateTimer schedules a durable timer that fires at ctx.Now()+d.
func (ctx *OrchestrationContext) CreateTimer(d time.Duration) *TimerFuture {
	idx := ctx.callIndex
	ctx.callIndex++

	if idx >= len(ctx.scheduledInHistory) {
		ctx.pending = append(ctx.pending, history.Event{
			Kind:   history.KindTimerCreated,
			FireAt: ctx.now.Add(d),
		})
		return &TimerFuture{}
	}

	scheduled := ctx.scheduledInHistory[idx]
	_, ok := ctx.resolutions[scheduled.Seq]
	return &TimerFuture{seq: scheduled.Seq, resolved: ok}
}

// CallSubOrchestration starts (or resumes awaiting) a named child workflow
// instance. The parent never holds a handle to the child — only its
// instance id — and the result travels back purely through the Store once
// a reconciliation pass observes the child reach a terminal status.
func (ctx *OrchestrationContext) CallSubOrchestration(childInstanceID, name string, input interface{}) *SubOrchestrationFuture {
	data, err := marshalInput(input)
	if err != nil {
		panic(err)
	}

	idx := ctx.callIndex
	ctx.callIndex++

	if idx >= len(ctx.scheduledInHistory) {
		ctx.pending = append(ctx.pending, history.Event{
			Kind:            history.KindSubOrchestrationScheduled,
			Name:            name,
			Input:           data,
			ChildInstanceID: childInstanceID,
		})
		return &SubOrchestrationFuture{}
	}

	scheduled := ctx.scheduledInHistory[idx]
	res, ok := ctx.resolutions[scheduled.Seq]
	if !ok {
		return &SubOrchestrationFuture{seq: scheduled.Seq}
	}
	if res.Kind == history.KindSubOrchestrationFailed {
		return &SubOrchestrationFuture{seq: scheduled.Seq, resolved: true, failErr: res.Error}
	}
	return &SubOrchestrationFuture{seq: scheduled.Seq, resolved: true, output: res.Output}
}

// WaitForEvent awaits the next externally raised event of the given name,
// matched FIFO: the n-th WaitForEvent("X") call in program order consumes
// the n-th ExternalEventRaised{"X"} ever appended to this execution.
func (ctx *OrchestrationContext) WaitForEvent(name string) *EventFuture {
	callN := ctx.newlyConsumed[name]
	ctx.newlyConsumed[name] = callN + 1

	received := ctx.receivedPayloadsByName[name]
	if callN < len(received) {
		// This call's match was already committed in an earlier round.
		return &EventFuture{resolved: true, payload: received[callN]}
	}

	newlyMatchedThisRound := callN - len(received)
	position := len(received) + newlyMatchedThisRound
	raised := ctx.raisedByName[name]
	if position >= len(raised) {
		return &EventFuture{}
	}

	payload := raised[position]
	ctx.pending = append(ctx.pending, history.Event{
		Kind:    history.KindExternalEventReceived,
		Name:    name,
		Payload: payload,
	})
	return &EventFuture{resolved: true, payload: payload}
}
