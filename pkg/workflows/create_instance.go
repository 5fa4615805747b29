package workflows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/engine"
	"github.com/affandar/toygres/pkg/history"
)

const readinessProbeMaxAttempts = 60
const readinessProbeInterval = 5 * time.Second

var connectionStringRetryPolicy = history.RetryPolicy{
	MaxAttempts:    5,
	Backoff:        history.BackoffLinear,
	BaseDelay:      2 * time.Second,
	MaxDelay:       10 * time.Second,
	OverallTimeout: 120 * time.Second,
}

var testConnectionRetryPolicy = history.RetryPolicy{
	MaxAttempts:    5,
	Backoff:        history.BackoffExponential,
	BaseDelay:      2 * time.Second,
	Multiplier:     2,
	MaxDelay:       30 * time.Second,
	OverallTimeout: 60 * time.Second,
}

// CreateInstance is the workflow registered under NameCreateInstance. See
// spec.md §4.5.1 for the full protocol; step letters in comments below
// refer to that section.
func CreateInstance(ctx *engine.OrchestrationContext, rawInput json.RawMessage) (json.RawMessage, error) {
	var input CreateInstanceInput
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return nil, fmt.Errorf("fatal: decode create-instance input: %w", err)
	}
	applyCreateInstanceDefaults(&input)

	// Step 1: reserve the catalog row. No rollback possible yet if this fails.
	reserveFuture := ctx.ScheduleActivity(activities.NameCMSCreateInstance, activities.CMSReserveInput{
		UserName:              input.UserName,
		K8sName:               input.K8sName,
		DNSName:               input.DNSLabel,
		PostgresVersion:       input.PostgresVersion,
		StorageSizeGB:         input.StorageSizeGB,
		UseLoadBalancer:       input.UseLoadBalancer,
		Namespace:             input.Namespace,
		CreateOrchestrationID: input.OrchestrationID,
	})
	if _, err := engine.AwaitAs[activities.CMSReserveOutput](ctx, reserveFuture); err != nil {
		return nil, err
	}

	output, bodyErr := createInstanceBody(ctx, input)
	if bodyErr == nil {
		return marshalOutput(output)
	}

	cleanupCreateInstance(ctx, input, bodyErr)
	return nil, bodyErr
}

func createInstanceBody(ctx *engine.OrchestrationContext, input CreateInstanceInput) (CreateInstanceOutput, error) {
	startTime := ctx.Now()

	// Step b: deploy.
	deployFuture := ctx.ScheduleActivity(activities.NameDeployPostgres, activities.DeployPostgresInput{
		Namespace:       input.Namespace,
		InstanceName:    input.K8sName,
		Password:        input.Password,
		PostgresVersion: input.PostgresVersion,
		StorageSizeGB:   input.StorageSizeGB,
		UseLoadBalancer: input.UseLoadBalancer,
		DNSLabel:        input.DNSLabel,
		CPURequest:      input.CPURequest,
		MemoryRequest:   input.MemoryRequest,
		CPULimit:        input.CPULimit,
		MemoryLimit:     input.MemoryLimit,
	})
	if _, err := engine.AwaitAs[activities.DeployPostgresOutput](ctx, deployFuture); err != nil {
		return CreateInstanceOutput{}, err
	}

	// Step c: readiness loop — up to 60 probes, 5s durable timer apart.
	ready := false
	for attempt := 1; attempt <= readinessProbeMaxAttempts; attempt++ {
		probeFuture := ctx.ScheduleActivity(activities.NameWaitForReady, activities.WaitForReadyInput{
			Namespace:    input.Namespace,
			InstanceName: input.K8sName,
		})
		probeOutput, err := engine.AwaitAs[activities.WaitForReadyOutput](ctx, probeFuture)
		if err != nil {
			return CreateInstanceOutput{}, err
		}
		if probeOutput.IsReady {
			ready = true
			break
		}
		if attempt < readinessProbeMaxAttempts {
			ctx.CreateTimer(readinessProbeInterval).Await(ctx)
		}
	}
	if !ready {
		return CreateInstanceOutput{}, fmt.Errorf("instance %q did not become ready after %d attempts", input.K8sName, readinessProbeMaxAttempts)
	}

	// Step d: connection-string build, retried per policy.
	connRaw, err := engine.ScheduleActivityWithRetry(ctx, activities.NameGetConnectionStrings, activities.GetConnectionStringsInput{
		Namespace:       input.Namespace,
		InstanceName:    input.K8sName,
		Password:        input.Password,
		UseLoadBalancer: input.UseLoadBalancer,
		DNSLabel:        input.DNSLabel,
	}, connectionStringRetryPolicy)
	if err != nil {
		return CreateInstanceOutput{}, err
	}
	var connOutput activities.GetConnectionStringsOutput
	if err := json.Unmarshal(connRaw, &connOutput); err != nil {
		return CreateInstanceOutput{}, fmt.Errorf("fatal: decode connection strings output: %w", err)
	}

	// Step e: TCP/SQL probe, retried per policy.
	testRaw, err := engine.ScheduleActivityWithRetry(ctx, activities.NameTestConnection, activities.TestConnectionInput{
		ConnectionString: connOutput.IPConnectionString,
	}, testConnectionRetryPolicy)
	if err != nil {
		return CreateInstanceOutput{}, err
	}
	var testOutput activities.TestConnectionOutput
	if err := json.Unmarshal(testRaw, &testOutput); err != nil {
		return CreateInstanceOutput{}, fmt.Errorf("fatal: decode test connection output: %w", err)
	}

	deploySeconds := int64(ctx.Now().Sub(startTime).Seconds())

	// Step f: mark the catalog row running.
	message := fmt.Sprintf("Instance ready in %d seconds", deploySeconds)
	updateFuture := ctx.ScheduleActivity(activities.NameCMSUpdateState, activities.CMSUpdateStateInput{
		K8sName:             input.K8sName,
		State:               "running",
		IPConnectionString:  &connOutput.IPConnectionString,
		DNSConnectionString: &connOutput.DNSConnectionString,
		ExternalIP:          &connOutput.ExternalIP,
		Message:             &message,
	})
	if _, err := engine.AwaitAs[activities.CMSUpdateStateOutput](ctx, updateFuture); err != nil {
		return CreateInstanceOutput{}, err
	}

	// Step g: start the actor, fire-and-forget.
	actorID := actorInstanceID(input.K8sName)
	ctx.CallSubOrchestration(actorID, NameInstanceActor, InstanceActorInput{
		K8sName:         input.K8sName,
		Namespace:       input.Namespace,
		OrchestrationID: actorID,
	})

	// Step h: stamp the actor id on the catalog row.
	recordFuture := ctx.ScheduleActivity(activities.NameCMSRecordActorID, activities.CMSRecordActorIDInput{
		K8sName:              input.K8sName,
		ActorOrchestrationID: actorID,
	})
	if _, err := engine.AwaitAs[activities.CMSRecordActorIDOutput](ctx, recordFuture); err != nil {
		return CreateInstanceOutput{}, err
	}

	return CreateInstanceOutput{
		IPConnectionString:  connOutput.IPConnectionString,
		DNSConnectionString: connOutput.DNSConnectionString,
		ExternalIP:          connOutput.ExternalIP,
		Version:             testOutput.Version,
		DeploySeconds:       deploySeconds,
	}, nil
}

// cleanupCreateInstance runs step 3 of spec.md §4.5.1: mark the row
// failed, release the reserved dns name, and tear down via DeleteInstance
// so the delete path's idempotent K8s/CMS cleanup is reused rather than
// duplicated here.
func cleanupCreateInstance(ctx *engine.OrchestrationContext, input CreateInstanceInput, bodyErr error) {
	message := bodyErr.Error()
	updateFuture := ctx.ScheduleActivity(activities.NameCMSUpdateState, activities.CMSUpdateStateInput{
		K8sName: input.K8sName,
		State:   "failed",
		Message: &message,
	})
	engine.AwaitAs[activities.CMSUpdateStateOutput](ctx, updateFuture)

	freeDNSFuture := ctx.ScheduleActivity(activities.NameCMSFreeDNS, activities.CMSFreeDNSInput{K8sName: input.K8sName})
	engine.AwaitAs[activities.CMSFreeDNSOutput](ctx, freeDNSFuture)

	cleanupID := fmt.Sprintf("cleanup-%s", input.K8sName)
	deleteFuture := ctx.CallSubOrchestration(cleanupID, NameDeleteInstance, DeleteInstanceInput{
		Name:            input.K8sName,
		Namespace:       input.Namespace,
		OrchestrationID: cleanupID,
	})
	deleteFuture.Await(ctx)
}

func actorInstanceID(k8sName string) string {
	return fmt.Sprintf("actor-%s", k8sName)
}

func applyCreateInstanceDefaults(input *CreateInstanceInput) {
	if input.PostgresVersion == "" {
		input.PostgresVersion = defaultPostgresVersion
	}
	if input.StorageSizeGB == 0 {
		input.StorageSizeGB = defaultStorageSizeGB
	}
	if input.Namespace == "" {
		input.Namespace = defaultNamespace
	}
}

func marshalOutput(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fatal: marshal workflow output: %w", err)
	}
	return data, nil
}
