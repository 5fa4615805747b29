package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/affandar/toygres/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoWorkflow(ctx *OrchestrationContext, input json.RawMessage) (json.RawMessage, error) {
	f := ctx.ScheduleActivity("echo", input)
	out, err := f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func TestOrchestrationContextSuspendsUntilActivityResolves(t *testing.T) {
	ctx := newOrchestrationContext("wf-1", nil, time.Now().UTC())
	outcome := ctx.run(echoWorkflow, json.RawMessage(`"hi"`))

	require.Equal(t, outcomeSuspended, outcome.kind)
	require.Len(t, ctx.pending, 1)
	assert.Equal(t, history.KindActivityScheduled, ctx.pending[0].Kind)
	assert.Equal(t, "echo", ctx.pending[0].Name)
}

func TestOrchestrationContextCompletesAfterReplayingResolution(t *testing.T) {
	events := []history.Event{
		{Seq: 1, Kind: history.KindActivityScheduled, Name: "echo", Input: json.RawMessage(`"hi"`)},
		{Seq: 1, Kind: history.KindActivityCompleted, Output: json.RawMessage(`"hi-out"`)},
	}
	ctx := newOrchestrationContext("wf-1", events, time.Now().UTC())
	outcome := ctx.run(echoWorkflow, json.RawMessage(`"hi"`))

	require.Equal(t, outcomeCompleted, outcome.kind)
	assert.JSONEq(t, `"hi-out"`, string(outcome.output))
	assert.Empty(t, ctx.pending)
}

func TestOrchestrationContextPropagatesActivityFailure(t *testing.T) {
	events := []history.Event{
		{Seq: 1, Kind: history.KindActivityScheduled, Name: "echo"},
		{Seq: 1, Kind: history.KindActivityFailed, Error: "fatal: boom"},
	}
	ctx := newOrchestrationContext("wf-1", events, time.Now().UTC())
	outcome := ctx.run(echoWorkflow, nil)

	require.Equal(t, outcomeFailed, outcome.kind)
	assert.EqualError(t, outcome.err, "fatal: boom")
}

func continueForeverWorkflow(ctx *OrchestrationContext, input json.RawMessage) (json.RawMessage, error) {
	ctx.ContinueAsNew(input)
	return nil, nil
}

func TestOrchestrationContextContinueAsNew(t *testing.T) {
	ctx := newOrchestrationContext("wf-1", nil, time.Now().UTC())
	outcome := ctx.run(continueForeverWorkflow, json.RawMessage(`"seed"`))

	require.Equal(t, outcomeContinueAsNew, outcome.kind)
	assert.JSONEq(t, `"seed"`, string(outcome.continueInput))
}

func waitForSignalWorkflow(ctx *OrchestrationContext, _ json.RawMessage) (json.RawMessage, error) {
	f := ctx.WaitForEvent("approve")
	payload, err := f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func TestWaitForEventFIFOMatchesInProgramOrder(t *testing.T) {
	ctx := newOrchestrationContext("wf-1", nil, time.Now().UTC())
	outcome := ctx.run(waitForSignalWorkflow, nil)
	require.Equal(t, outcomeSuspended, outcome.kind)
	require.Empty(t, ctx.pending, "WaitForEvent must not append anything until a matching raise exists")

	events := []history.Event{
		{Kind: history.KindExternalEventRaised, Name: "approve", Payload: json.RawMessage(`"go"`)},
	}
	ctx2 := newOrchestrationContext("wf-1", events, time.Now().UTC())
	outcome2 := ctx2.run(waitForSignalWorkflow, nil)

	require.Equal(t, outcomeCompleted, outcome2.kind)
	assert.JSONEq(t, `"go"`, string(outcome2.output))
	require.Len(t, ctx2.pending, 1)
	assert.Equal(t, history.KindExternalEventReceived, ctx2.pending[0].Kind)
}
