package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/engine"
)

// DeleteInstance is the workflow registered under NameDeleteInstance. See
// spec.md §4.5.2 for the full protocol; step numbers in comments below
// refer to that section.
func DeleteInstance(ctx *engine.OrchestrationContext, rawInput json.RawMessage) (json.RawMessage, error) {
	var input DeleteInstanceInput
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return nil, fmt.Errorf("fatal: decode delete-instance input: %w", err)
	}
	if input.Namespace == "" {
		input.Namespace = defaultNamespace
	}

	// Step 1: lookup, to learn whether an actor needs waking.
	lookupFuture := ctx.ScheduleActivity(activities.NameCMSGetByK8sName, activities.CMSLookupInput{K8sName: input.Name})
	lookup, err := engine.AwaitAs[activities.CMSLookupOutput](ctx, lookupFuture)
	if err != nil {
		return nil, err
	}

	// Step 2: if found, mark deleting.
	if lookup.Found {
		message := "Deletion requested"
		updateFuture := ctx.ScheduleActivity(activities.NameCMSUpdateState, activities.CMSUpdateStateInput{
			K8sName:               input.Name,
			State:                 "deleting",
			DeleteOrchestrationID: &input.OrchestrationID,
			Message:               &message,
		})
		if _, err := engine.AwaitAs[activities.CMSUpdateStateOutput](ctx, updateFuture); err != nil {
			return nil, err
		}
	}

	// Step 3: tear down Kubernetes resources.
	deleteFuture := ctx.ScheduleActivity(activities.NameDeletePostgres, activities.DeletePostgresInput{
		Namespace:    input.Namespace,
		InstanceName: input.Name,
	})
	deleteOutput, err := engine.AwaitAs[activities.DeletePostgresOutput](ctx, deleteFuture)
	if err != nil {
		return nil, err
	}

	// Step 4: best-effort wake of a running actor; failure is not fatal.
	if lookup.Found {
		actorID := actorInstanceID(input.Name)
		raiseFuture := ctx.ScheduleActivity(activities.NameRaiseEvent, activities.RaiseEventInput{
			InstanceID: actorID,
			EventName:  EventInstanceDeleted,
			EventData:  "{}",
		})
		engine.AwaitAs[activities.RaiseEventOutput](ctx, raiseFuture)
	}

	// Step 5: mark deleted.
	deletedMessage := fmt.Sprintf("Deleted (resources deleted: %t)", deleteOutput.Deleted)
	finalUpdateFuture := ctx.ScheduleActivity(activities.NameCMSUpdateState, activities.CMSUpdateStateInput{
		K8sName: input.Name,
		State:   "deleted",
		Message: &deletedMessage,
	})
	if _, err := engine.AwaitAs[activities.CMSUpdateStateOutput](ctx, finalUpdateFuture); err != nil {
		return nil, err
	}

	// Step 6: remove the catalog row.
	deleteRecordFuture := ctx.ScheduleActivity(activities.NameCMSDeleteInstance, activities.CMSDeleteInstanceInput{K8sName: input.Name})
	if _, err := engine.AwaitAs[activities.CMSDeleteInstanceOutput](ctx, deleteRecordFuture); err != nil {
		return nil, err
	}

	// Step 7: free the dns reservation — idempotent after record deletion.
	freeDNSFuture := ctx.ScheduleActivity(activities.NameCMSFreeDNS, activities.CMSFreeDNSInput{K8sName: input.Name})
	if _, err := engine.AwaitAs[activities.CMSFreeDNSOutput](ctx, freeDNSFuture); err != nil {
		return nil, err
	}

	return marshalOutput(DeleteInstanceOutput{InstanceName: input.Name, Deleted: deleteOutput.Deleted})
}
