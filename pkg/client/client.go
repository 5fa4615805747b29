// Package client is the direct Go API spec.md §6.2 describes: a thin
// wrapper over the Event-History Store (and, for the supplemented
// cluster-summary call, the Catalog Metadata Store) that both
// pkg/api's HTTP handlers and the toygres CLI call into. There is no
// network boundary here — StartOrchestration et al. call straight
// through to history.Store, the same way a caller in-process would.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/affandar/toygres/pkg/catalog"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
)

// Client is the Client Surface over one Event-History Store. CatalogStore
// is optional: every call except ClusterSummary works without it, and
// ClusterSummary returns an error when it is nil.
type Client struct {
	store        history.Store
	catalogStore *catalog.Store
}

// New builds a Client over store. WithCatalog attaches the CMS for
// ClusterSummary.
func New(store history.Store) *Client {
	return &Client{store: store}
}

// WithCatalog attaches a Catalog Metadata Store, returning the
// same *Client for chaining.
func (c *Client) WithCatalog(catalogStore *catalog.Store) *Client {
	c.catalogStore = catalogStore
	return c
}

// StartOrchestration creates a WorkflowInstance if instanceID is not
// already in use. created=false means it was already in use — spec.md
// §6.2 leaves the no-op-or-error choice to the caller; this client
// reports it as a plain boolean rather than an error so the CLI and the
// HTTP layer can each decide what that means for their callers.
func (c *Client) StartOrchestration(instanceID, workflowName string, input interface{}) (created bool, err error) {
	data, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("marshal orchestration input: %w", err)
	}
	created, err = c.store.CreateInstance(instanceID, workflowName, 1, data)
	if err != nil {
		return false, fmt.Errorf("start orchestration %s: %w", instanceID, err)
	}
	return created, nil
}

// RaiseEvent appends an ExternalEventRaised into instanceID's current
// execution.
func (c *Client) RaiseEvent(instanceID, eventName string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if err := c.store.RaiseEvent(instanceID, eventName, data); err != nil {
		return fmt.Errorf("raise event %q on %s: %w", eventName, instanceID, err)
	}
	return nil
}

// OrchestrationStatus is GetOrchestrationStatus's result: exactly one of
// Output or FailureDetails is meaningful, depending on Status.
type OrchestrationStatus struct {
	Status         types.WorkflowStatus `json:"status"`
	Output         string               `json:"output,omitempty"`
	FailureDetails string               `json:"failure_details,omitempty"`
}

// GetOrchestrationStatus reports instanceID's current status, per spec.md
// §6.2. A missing instance reports WorkflowNotFound rather than an error.
func (c *Client) GetOrchestrationStatus(instanceID string) (OrchestrationStatus, error) {
	wi, err := c.store.GetWorkflowInstance(instanceID)
	if err != nil {
		return OrchestrationStatus{}, fmt.Errorf("get orchestration status %s: %w", instanceID, err)
	}
	if wi == nil {
		return OrchestrationStatus{Status: types.WorkflowNotFound}, nil
	}
	return OrchestrationStatus{Status: wi.Status, Output: wi.Output, FailureDetails: wi.FailureDetails}, nil
}

// ListInstances returns every known WorkflowInstance id.
func (c *Client) ListInstances() ([]string, error) {
	ids, err := c.store.ListInstances()
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return ids, nil
}

// GetInstanceInfo returns the full WorkflowInstance record, or nil if
// instanceID is unknown.
func (c *Client) GetInstanceInfo(instanceID string) (*types.WorkflowInstance, error) {
	wi, err := c.store.GetWorkflowInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance info %s: %w", instanceID, err)
	}
	return wi, nil
}

// ListExecutions returns every execution id instanceID has had, including
// closed ones from before any continue-as-new.
func (c *Client) ListExecutions(instanceID string) ([]int, error) {
	ids, err := c.store.ListExecutions(instanceID)
	if err != nil {
		return nil, fmt.Errorf("list executions %s: %w", instanceID, err)
	}
	return ids, nil
}

// ReadExecutionHistory returns executionID's full committed event log for
// instanceID, in commit order.
func (c *Client) ReadExecutionHistory(instanceID string, executionID int) ([]history.Event, error) {
	events, err := c.store.ReadHistory(instanceID, executionID)
	if err != nil {
		return nil, fmt.Errorf("read execution history %s/%d: %w", instanceID, executionID, err)
	}
	return events, nil
}

// ClusterSummary is a supplemented, read-only diagnostic aggregating
// catalog and history-store counts — the Go equivalent of the original
// toygres-server's "system" introspection command.
type ClusterSummary struct {
	TotalInstances     int            `json:"total_instances"`
	InstancesByState   map[string]int `json:"instances_by_state"`
	InstancesByHealth  map[string]int `json:"instances_by_health"`
	RunningWorkflows   int            `json:"running_workflows"`
	CompletedWorkflows int            `json:"completed_workflows"`
	FailedWorkflows    int            `json:"failed_workflows"`
}

// ClusterSummary aggregates cluster-wide diagnostics: per-state and
// per-health instance counts from the catalog, and workflow-status
// counts from the history store's orchestration backlog. Returns an
// error if no catalog store was attached via WithCatalog.
func (c *Client) ClusterSummary() (ClusterSummary, error) {
	if c.catalogStore == nil {
		return ClusterSummary{}, fmt.Errorf("fatal: cluster summary requires a catalog store")
	}

	instances, err := c.catalogStore.List(context.Background())
	if err != nil {
		return ClusterSummary{}, fmt.Errorf("list catalog instances: %w", err)
	}

	summary := ClusterSummary{
		InstancesByState:  map[string]int{},
		InstancesByHealth: map[string]int{},
	}
	for _, inst := range instances {
		summary.TotalInstances++
		summary.InstancesByState[string(inst.State)]++
		summary.InstancesByHealth[string(inst.Health)]++
	}

	ids, err := c.store.ListInstances()
	if err != nil {
		return ClusterSummary{}, fmt.Errorf("list workflow instances: %w", err)
	}
	for _, id := range ids {
		wi, err := c.store.GetWorkflowInstance(id)
		if err != nil {
			return ClusterSummary{}, fmt.Errorf("get workflow instance %s: %w", id, err)
		}
		if wi == nil {
			continue
		}
		switch wi.Status {
		case types.WorkflowRunning:
			summary.RunningWorkflows++
		case types.WorkflowCompleted:
			summary.CompletedWorkflows++
		case types.WorkflowFailed:
			summary.FailedWorkflows++
		}
	}

	return summary, nil
}
