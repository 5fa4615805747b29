/*
Package client provides the Client Surface for toygres: a direct Go API
over one Event-History Store, used by both pkg/api's HTTP handlers and
cmd/toygres's CLI commands to start orchestrations, raise events into
running ones, and read back status and history.

# Architecture

Unlike a typical cluster client, there is no RPC boundary here. Starting
an instance creates a row in the same history.Store the Dispatcher
itself decides against:

	┌─────────────── pkg/api / cmd/toygres ───────────────┐
	│                                                       │
	│  c := client.New(store).WithCatalog(catalogStore)    │
	│  c.StartOrchestration("pg-1", "CreateInstance", in)  │
	│                                                       │
	└───────────────────────┬───────────────────────────────┘
	                        │ direct call, no serialization
	┌───────────────────────▼─── pkg/client ────────────────┐
	│                                                         │
	│  Client{ store history.Store, catalogStore *catalog }  │
	│                                                         │
	└───────────────────────┬───────────────────────────────┘
	                        │
	┌───────────────────────▼─── pkg/history ───────────────┐
	│             bbolt-backed Event-History Store            │
	└─────────────────────────────────────────────────────────┘

# Usage

Starting an instance:

	c := client.New(store)
	created, err := c.StartOrchestration("pg-1", workflows.NameCreateInstance, workflows.CreateInstanceInput{
		UserName: "alice",
		K8sName:  "pg-1",
		Password: "secret",
	})

Checking status:

	status, err := c.GetOrchestrationStatus("pg-1")
	switch status.Status {
	case types.WorkflowCompleted:
		// status.Output holds the JSON-encoded CreateInstanceOutput
	case types.WorkflowFailed:
		// status.FailureDetails holds the wrapped error chain
	case types.WorkflowRunning:
		// still in flight
	case types.WorkflowNotFound:
		// no such instance id
	}

Raising an event (waking a running InstanceActor early, or any other
external signal):

	err := c.RaiseEvent("pg-1", workflows.EventInstanceDeleted, nil)

Reading execution history (for diagnostics or a `toygres instance
history` command):

	execIDs, _ := c.ListExecutions("pg-1")
	events, _ := c.ReadExecutionHistory("pg-1", execIDs[len(execIDs)-1])

Cluster-wide diagnostics (requires WithCatalog):

	summary, err := c.WithCatalog(catalogStore).ClusterSummary()
	fmt.Printf("%d instances, %d running workflows\n",
		summary.TotalInstances, summary.RunningWorkflows)

# Error handling

Every method wraps the underlying store error with context
(fmt.Errorf("...: %w", err)) rather than returning a bespoke error
type — callers that need to distinguish "not found" from "store
unavailable" should consult OrchestrationStatus.Status (WorkflowNotFound
is a value, not an error) rather than string-matching on err.

# Thread safety

Client holds no mutable state of its own beyond the two store handles it
was built with; safety for concurrent use follows directly from
history.Store's own concurrency guarantees.

# See also

  - pkg/api for the HTTP layer built on this package
  - pkg/history for the Event-History Store this wraps
  - pkg/catalog for the Catalog Metadata Store ClusterSummary reads
  - cmd/toygres for CLI usage examples
*/
package client
