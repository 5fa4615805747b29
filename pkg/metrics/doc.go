/*
Package metrics defines and registers every Prometheus metric toygres
exposes: catalog state, Event-History Store Raft health, Client Surface
request counts/latency, Orchestration Runtime and Activity Worker
throughput, and Kubernetes deploy activity duration. Metrics are
registered once at package init and exposed via Handler for mounting at
/metrics.

# Usage

Updating a gauge:

	metrics.InstancesTotal.WithLabelValues("running").Set(5)

Incrementing a counter:

	metrics.OrchestrationsStartedTotal.WithLabelValues(workflows.NameCreateInstance).Inc()

Timing an operation:

	timer := metrics.NewTimer()
	// ... do the work ...
	timer.ObserveDurationVec(metrics.ActivityDuration, activityName)

# See also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - pkg/api: mounts Handler() at /metrics and instruments every request
    via the recordMetrics middleware.
  - pkg/worker, pkg/engine: report activity/orchestration counters and
    durations as they run.
*/
package metrics
