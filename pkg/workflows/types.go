package workflows

// CreateInstanceInput is CreateInstance's input, per spec.md §4.5.1. Every
// workflow input carries orchestration_id equal to the instance_id it runs
// under, tying activity idempotency keys to the workflow identity.
type CreateInstanceInput struct {
	UserName        string `json:"user_name"`
	K8sName         string `json:"k8s_name"`
	Password        string `json:"password"`
	PostgresVersion string `json:"postgres_version,omitempty"`
	StorageSizeGB   int    `json:"storage_size_gb,omitempty"`
	UseLoadBalancer bool   `json:"use_load_balancer,omitempty"`
	DNSLabel        string `json:"dns_label,omitempty"`
	Namespace       string `json:"namespace,omitempty"`
	OrchestrationID string `json:"orchestration_id"`

	// Optional container resource overrides, passed through unchanged
	// to the Deploy activity's container spec.
	CPURequest    string `json:"cpu_request,omitempty"`
	MemoryRequest string `json:"memory_request,omitempty"`
	CPULimit      string `json:"cpu_limit,omitempty"`
	MemoryLimit   string `json:"memory_limit,omitempty"`
}

// CreateInstanceOutput is CreateInstance's success output.
type CreateInstanceOutput struct {
	IPConnectionString  string `json:"ip_connection_string"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
	ExternalIP          string `json:"external_ip,omitempty"`
	Version             string `json:"version"`
	DeploySeconds        int64  `json:"deploy_seconds"`
}

// DeleteInstanceInput is DeleteInstance's input, per spec.md §4.5.2.
type DeleteInstanceInput struct {
	Name            string `json:"name"`
	Namespace       string `json:"namespace,omitempty"`
	OrchestrationID string `json:"orchestration_id"`
}

// DeleteInstanceOutput is DeleteInstance's output.
type DeleteInstanceOutput struct {
	InstanceName string `json:"instance_name"`
	Deleted      bool   `json:"deleted"`
}

// InstanceActorInput is InstanceActor's input, carried unchanged across
// every continue-as-new iteration.
type InstanceActorInput struct {
	K8sName         string `json:"k8s_name"`
	Namespace       string `json:"namespace"`
	OrchestrationID string `json:"orchestration_id"`
}

const (
	defaultPostgresVersion = "16"
	defaultStorageSizeGB   = 10
	defaultNamespace       = "default"
)
