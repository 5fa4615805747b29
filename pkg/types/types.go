// Package types holds the data model shared across the control plane:
// the catalog's Instance record and its audit tables, plus the small
// wire types the Orchestration Runtime and Client Surface exchange.
package types

import "time"

// InstanceState is the catalog lifecycle state of a provisioned instance.
type InstanceState string

const (
	InstanceStateCreating InstanceState = "creating"
	InstanceStateRunning  InstanceState = "running"
	InstanceStateFailed   InstanceState = "failed"
	InstanceStateDeleting InstanceState = "deleting"
	InstanceStateDeleted  InstanceState = "deleted"
)

// InstanceHealth is the last-observed health of a running instance.
type InstanceHealth string

const (
	HealthUnknown   InstanceHealth = "unknown"
	HealthHealthy   InstanceHealth = "healthy"
	HealthUnhealthy InstanceHealth = "unhealthy"
)

// DeletedDNSPrefix marks a freed dns_name so the unique reservation can be
// released without destroying the row's audit value (invariant I1).
const DeletedDNSPrefix = "__deleted_"

// Instance is the user-visible catalog row for a provisioned PostgreSQL
// instance.
type Instance struct {
	ID       string
	UserName string
	K8sName  string
	DNSName  string

	State  InstanceState
	Health InstanceHealth

	PostgresVersion string
	StorageSizeGB   int
	UseLoadBalancer bool
	Namespace       string

	IPConnectionString  string
	DNSConnectionString string
	ExternalIP          string

	CreateOrchestrationID        string
	DeleteOrchestrationID        string
	InstanceActorOrchestrationID string

	Message string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// HealthCheck is one append-only health observation.
type HealthCheck struct {
	ID              int64
	InstanceID      string
	Status          InstanceHealth
	PostgresVersion string
	ResponseTimeMS  int
	ErrorMessage    string
	CheckedAt       time.Time
}

// InstanceEvent is an append-only state-change audit record.
type InstanceEvent struct {
	ID         int64
	InstanceID string
	EventType  string
	OldState   string
	NewState   string
	Message    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// WorkflowStatus is the externally-visible status of a WorkflowInstance.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "Running"
	WorkflowCompleted WorkflowStatus = "Completed"
	WorkflowFailed    WorkflowStatus = "Failed"
	WorkflowNotFound  WorkflowStatus = "NotFound"
)

// WorkflowInstance is the runtime identity of one durable orchestration,
// distinct from the catalog Instance it may be acting on.
type WorkflowInstance struct {
	InstanceID         string
	Name               string
	Version            int
	Status             WorkflowStatus
	CurrentExecutionID int
	Output             string
	FailureDetails     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ErrorClass buckets an activity error per spec.md 6.5 so the retry
// executor can decide whether retrying even makes sense.
type ErrorClass string

const (
	ErrorTransient ErrorClass = "transient"
	ErrorConflict  ErrorClass = "conflict"
	ErrorFatal     ErrorClass = "fatal"
)
