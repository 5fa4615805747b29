package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance/catalog metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toygres_instances_total",
			Help: "Total number of catalog instances by state",
		},
		[]string{"state"},
	)

	InstanceHealthTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toygres_instance_health_total",
			Help: "Total number of instances by last-observed health",
		},
		[]string{"health"},
	)

	// Raft / event-history store metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toygres_raft_is_leader",
			Help: "Whether this node is the Raft leader of the event-history store (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toygres_raft_peers_total",
			Help: "Total number of Raft peers backing the event-history store",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toygres_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toygres_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toygres_raft_apply_duration_seconds",
			Help:    "Time taken to apply a decision-round batch to the Raft log",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_api_requests_total",
			Help: "Total number of Client Surface requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toygres_api_request_duration_seconds",
			Help:    "Client Surface request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Orchestration runtime metrics
	OrchestrationsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_orchestrations_started_total",
			Help: "Total number of orchestrations started, by name",
		},
		[]string{"name"},
	)

	OrchestrationsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_orchestrations_completed_total",
			Help: "Total number of orchestrations that reached a terminal status, by name and status",
		},
		[]string{"name", "status"},
	)

	OrchestrationReplayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toygres_orchestration_replay_duration_seconds",
			Help:    "Time taken for one decide-and-replay pass of an orchestrator",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	ContinueAsNewTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_continue_as_new_total",
			Help: "Total number of ContinueAsNew transitions, by orchestration name",
		},
		[]string{"name"},
	)

	// Activity worker metrics
	ActivitiesScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_activities_scheduled_total",
			Help: "Total number of activities scheduled, by activity name",
		},
		[]string{"activity"},
	)

	ActivitiesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_activities_completed_total",
			Help: "Total number of activity executions completed, by activity name and outcome",
		},
		[]string{"activity", "outcome"},
	)

	ActivityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toygres_activity_duration_seconds",
			Help:    "Activity execution duration in seconds, by activity name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"activity"},
	)

	ActivityLeaseExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_activity_lease_expired_total",
			Help: "Total number of activity leases reclaimed after expiry, by activity name",
		},
		[]string{"activity"},
	)

	WorkerPoolInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toygres_worker_pool_in_flight",
			Help: "Number of activity executions currently in flight in the worker pool",
		},
	)

	// Lease-reaper / reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toygres_reconciliation_duration_seconds",
			Help:    "Time taken for a lease-reaping reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "toygres_reconciliation_cycles_total",
			Help: "Total number of lease-reaping reconciliation cycles completed",
		},
	)

	// Kubernetes deploy/delete activity metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toygres_k8s_deployments_total",
			Help: "Total number of Kubernetes deploy activities, by status",
		},
		[]string{"status"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toygres_k8s_deployment_duration_seconds",
			Help:    "Kubernetes deploy activity duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	// Catalog (CMS) metrics
	CatalogQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toygres_catalog_query_duration_seconds",
			Help:    "Catalog metadata store query duration in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(InstanceHealthTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(OrchestrationsStartedTotal)
	prometheus.MustRegister(OrchestrationsCompletedTotal)
	prometheus.MustRegister(OrchestrationReplayDuration)
	prometheus.MustRegister(ContinueAsNewTotal)
	prometheus.MustRegister(ActivitiesScheduledTotal)
	prometheus.MustRegister(ActivitiesCompletedTotal)
	prometheus.MustRegister(ActivityDuration)
	prometheus.MustRegister(ActivityLeaseExpiredTotal)
	prometheus.MustRegister(WorkerPoolInFlight)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(CatalogQueryDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
