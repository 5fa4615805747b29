package workflows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/engine"
)

const actorPollInterval = 30 * time.Second

// InstanceActor is the workflow registered under NameInstanceActor. It
// never completes normally except when InstanceDeleted fires or the
// catalog row disappears — every other path loops forever via
// ContinueAsNew, per spec.md §4.5.3.
func InstanceActor(ctx *engine.OrchestrationContext, rawInput json.RawMessage) (json.RawMessage, error) {
	var input InstanceActorInput
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return nil, fmt.Errorf("fatal: decode instance-actor input: %w", err)
	}

	// Step 1: look up the connection.
	lookupFuture := ctx.ScheduleActivity(activities.NameCMSGetConnection, activities.CMSLookupInput{K8sName: input.K8sName})
	lookup, err := engine.AwaitAs[activities.CMSLookupOutput](ctx, lookupFuture)
	if err != nil {
		return nil, err
	}

	// Step 2: catalog row is gone — nothing left to watch.
	if !lookup.Found {
		return nil, nil
	}

	// Step 3: deleting/deleted is noted, not special-cased further — the
	// iteration still runs its probe-or-wait logic below, and termination
	// happens through the normal step 7 race once InstanceDeleted lands.

	// Step 4: no connection string yet — wait and retry as the same
	// execution via continue-as-new.
	if lookup.IPConnectionString == "" {
		ctx.CreateTimer(actorPollInterval).Await(ctx)
		ctx.ContinueAsNew(input)
		return nil, nil
	}

	// Step 5: probe, no retry at this layer.
	t0 := ctx.Now()
	probeFuture := ctx.ScheduleActivity(activities.NameTestConnection, activities.TestConnectionInput{
		ConnectionString: lookup.IPConnectionString,
	})
	probeOutput, probeErr := engine.AwaitAs[activities.TestConnectionOutput](ctx, probeFuture)
	t1 := ctx.Now()
	responseTimeMS := int(t1.Sub(t0).Milliseconds())

	status := "healthy"
	errorMessage := ""
	if probeErr != nil {
		status = "unhealthy"
		errorMessage = probeErr.Error()
	}

	// Step 6: record and update health.
	recordFuture := ctx.ScheduleActivity(activities.NameCMSRecordHealthCheck, activities.CMSRecordHealthCheckInput{
		InstanceID:      lookup.InstanceID,
		Status:          status,
		PostgresVersion: probeOutput.Version,
		ResponseTimeMS:  responseTimeMS,
		ErrorMessage:    errorMessage,
	})
	if _, err := engine.AwaitAs[activities.CMSRecordHealthCheckOutput](ctx, recordFuture); err != nil {
		return nil, err
	}

	updateHealthFuture := ctx.ScheduleActivity(activities.NameCMSUpdateHealth, activities.CMSUpdateHealthInput{
		InstanceID: lookup.InstanceID,
		Health:     status,
	})
	if _, err := engine.AwaitAs[activities.CMSUpdateHealthOutput](ctx, updateHealthFuture); err != nil {
		return nil, err
	}

	// Step 7: race a 30s timer against the InstanceDeleted event.
	timer := ctx.CreateTimer(actorPollInterval)
	event := ctx.WaitForEvent(EventInstanceDeleted)
	winner, err := engine.Select(timer, event)
	if err != nil {
		return nil, err
	}
	if winner == 1 {
		// Event won: graceful stop.
		return nil, nil
	}
	ctx.ContinueAsNew(input)
	return nil, nil
}
