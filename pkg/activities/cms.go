package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/affandar/toygres/pkg/catalog"
	"github.com/affandar/toygres/pkg/types"
)

// CMSReserve wraps catalog.Store.Reserve. A dns name held live by another
// instance is reported as a conflict-class error so the retry executor
// does not retry it; a k8s name owned by a different orchestration comes
// back as a plain (transient-class) error.
func CMSReserve(store *catalog.Store) func(context.Context, CMSReserveInput) (CMSReserveOutput, error) {
	return func(ctx context.Context, input CMSReserveInput) (CMSReserveOutput, error) {
		id, err := store.Reserve(ctx, catalog.ReserveParams{
			UserName:              input.UserName,
			K8sName:               input.K8sName,
			DNSName:               input.DNSName,
			PostgresVersion:       input.PostgresVersion,
			StorageSizeGB:         input.StorageSizeGB,
			UseLoadBalancer:       input.UseLoadBalancer,
			Namespace:             input.Namespace,
			CreateOrchestrationID: input.CreateOrchestrationID,
		})
		if err != nil {
			if errors.Is(err, catalog.ErrDNSNameReserved) {
				return CMSReserveOutput{}, fmt.Errorf("conflict: %w", err)
			}
			return CMSReserveOutput{}, err
		}
		return CMSReserveOutput{InstanceID: id}, nil
	}
}

// CMSUpdateState wraps catalog.Store.UpdateState.
func CMSUpdateState(store *catalog.Store) func(context.Context, CMSUpdateStateInput) (CMSUpdateStateOutput, error) {
	return func(ctx context.Context, input CMSUpdateStateInput) (CMSUpdateStateOutput, error) {
		updated, err := store.UpdateState(ctx, catalog.UpdateStateParams{
			K8sName:               input.K8sName,
			State:                 types.InstanceState(input.State),
			IPConnectionString:    input.IPConnectionString,
			DNSConnectionString:   input.DNSConnectionString,
			ExternalIP:            input.ExternalIP,
			DeleteOrchestrationID: input.DeleteOrchestrationID,
			Message:               input.Message,
		})
		if err != nil {
			return CMSUpdateStateOutput{}, err
		}
		return CMSUpdateStateOutput{Updated: updated}, nil
	}
}

// CMSFreeDNS wraps catalog.Store.FreeDNS.
func CMSFreeDNS(store *catalog.Store) func(context.Context, CMSFreeDNSInput) (CMSFreeDNSOutput, error) {
	return func(ctx context.Context, input CMSFreeDNSInput) (CMSFreeDNSOutput, error) {
		freed, err := store.FreeDNS(ctx, input.K8sName)
		if err != nil {
			return CMSFreeDNSOutput{}, err
		}
		return CMSFreeDNSOutput{Freed: freed}, nil
	}
}

// CMSGetByK8sName wraps catalog.Store.GetByK8sName.
func CMSGetByK8sName(store *catalog.Store) func(context.Context, CMSLookupInput) (CMSLookupOutput, error) {
	return func(ctx context.Context, input CMSLookupInput) (CMSLookupOutput, error) {
		inst, found, err := store.GetByK8sName(ctx, input.K8sName)
		if err != nil {
			return CMSLookupOutput{}, err
		}
		return lookupOutput(inst, found), nil
	}
}

// CMSGetConnection wraps catalog.Store.GetConnection.
func CMSGetConnection(store *catalog.Store) func(context.Context, CMSLookupInput) (CMSLookupOutput, error) {
	return func(ctx context.Context, input CMSLookupInput) (CMSLookupOutput, error) {
		inst, found, err := store.GetConnection(ctx, input.K8sName)
		if err != nil {
			return CMSLookupOutput{}, err
		}
		return lookupOutput(inst, found), nil
	}
}

func lookupOutput(inst types.Instance, found bool) CMSLookupOutput {
	if !found {
		return CMSLookupOutput{Found: false}
	}
	return CMSLookupOutput{
		Found:               true,
		InstanceID:          inst.ID,
		State:               string(inst.State),
		Health:              string(inst.Health),
		IPConnectionString:  inst.IPConnectionString,
		DNSConnectionString: inst.DNSConnectionString,
		ExternalIP:          inst.ExternalIP,
		Namespace:           inst.Namespace,
	}
}

// CMSRecordHealthCheck wraps catalog.Store.RecordHealthCheck.
func CMSRecordHealthCheck(store *catalog.Store) func(context.Context, CMSRecordHealthCheckInput) (CMSRecordHealthCheckOutput, error) {
	return func(ctx context.Context, input CMSRecordHealthCheckInput) (CMSRecordHealthCheckOutput, error) {
		err := store.RecordHealthCheck(ctx, input.InstanceID, types.HealthCheck{
			Status:          types.InstanceHealth(input.Status),
			PostgresVersion: input.PostgresVersion,
			ResponseTimeMS:  input.ResponseTimeMS,
			ErrorMessage:    input.ErrorMessage,
		})
		if err != nil {
			return CMSRecordHealthCheckOutput{}, err
		}
		return CMSRecordHealthCheckOutput{Recorded: true}, nil
	}
}

// CMSUpdateHealth wraps catalog.Store.UpdateHealth.
func CMSUpdateHealth(store *catalog.Store) func(context.Context, CMSUpdateHealthInput) (CMSUpdateHealthOutput, error) {
	return func(ctx context.Context, input CMSUpdateHealthInput) (CMSUpdateHealthOutput, error) {
		if err := store.UpdateHealth(ctx, input.InstanceID, types.InstanceHealth(input.Health)); err != nil {
			return CMSUpdateHealthOutput{}, err
		}
		return CMSUpdateHealthOutput{Updated: true}, nil
	}
}

// CMSRecordActorID wraps catalog.Store.RecordActorID.
func CMSRecordActorID(store *catalog.Store) func(context.Context, CMSRecordActorIDInput) (CMSRecordActorIDOutput, error) {
	return func(ctx context.Context, input CMSRecordActorIDInput) (CMSRecordActorIDOutput, error) {
		if err := store.RecordActorID(ctx, input.K8sName, input.ActorOrchestrationID); err != nil {
			return CMSRecordActorIDOutput{}, err
		}
		return CMSRecordActorIDOutput{Recorded: true}, nil
	}
}

// CMSDeleteInstance wraps catalog.Store.DeleteRecord.
func CMSDeleteInstance(store *catalog.Store) func(context.Context, CMSDeleteInstanceInput) (CMSDeleteInstanceOutput, error) {
	return func(ctx context.Context, input CMSDeleteInstanceInput) (CMSDeleteInstanceOutput, error) {
		if err := store.DeleteRecord(ctx, input.K8sName); err != nil {
			return CMSDeleteInstanceOutput{}, err
		}
		return CMSDeleteInstanceOutput{Deleted: true}, nil
	}
}
