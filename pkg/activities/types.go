package activities

// DeployPostgresInput is the input to NameDeployPostgres.
type DeployPostgresInput struct {
	Namespace       string `json:"namespace"`
	InstanceName    string `json:"instance_name"`
	Password        string `json:"password"`
	PostgresVersion string `json:"postgres_version"`
	StorageSizeGB   int    `json:"storage_size_gb"`
	UseLoadBalancer bool   `json:"use_load_balancer"`
	DNSLabel        string `json:"dns_label,omitempty"`

	// Resource requests/limits for the postgres container, in
	// Kubernetes quantity form (e.g. "500m", "1Gi"). Any left blank
	// are omitted from the container's ResourceRequirements entirely
	// rather than defaulted, so a cluster's LimitRange still applies.
	CPURequest    string `json:"cpu_request,omitempty"`
	MemoryRequest string `json:"memory_request,omitempty"`
	CPULimit      string `json:"cpu_limit,omitempty"`
	MemoryLimit   string `json:"memory_limit,omitempty"`
}

// DeployPostgresOutput reports whether Deploy actually created anything.
type DeployPostgresOutput struct {
	InstanceName string `json:"instance_name"`
	Namespace    string `json:"namespace"`
	Created      bool   `json:"created"`
}

// DeletePostgresInput is the input to NameDeletePostgres.
type DeletePostgresInput struct {
	Namespace    string `json:"namespace"`
	InstanceName string `json:"instance_name"`
}

// DeletePostgresOutput reports whether any resource existed to delete.
type DeletePostgresOutput struct {
	Deleted bool `json:"deleted"`
}

// WaitForReadyInput is the input to NameWaitForReady.
type WaitForReadyInput struct {
	Namespace    string `json:"namespace"`
	InstanceName string `json:"instance_name"`
}

// WaitForReadyOutput is a single, non-polling snapshot of pod readiness;
// the workflow itself drives the polling loop via a durable timer.
type WaitForReadyOutput struct {
	PodPhase string `json:"pod_phase"`
	IsReady  bool   `json:"is_ready"`
}

// GetConnectionStringsInput is the input to NameGetConnectionStrings.
type GetConnectionStringsInput struct {
	Namespace       string `json:"namespace"`
	InstanceName    string `json:"instance_name"`
	Password        string `json:"password"`
	UseLoadBalancer bool   `json:"use_load_balancer"`
	DNSLabel        string `json:"dns_label,omitempty"`
}

// GetConnectionStringsOutput carries every connection form the activity
// could build; fields are empty when not applicable.
type GetConnectionStringsOutput struct {
	IPConnectionString  string `json:"ip_connection_string"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
	ExternalIP          string `json:"external_ip,omitempty"`
	DNSName             string `json:"dns_name,omitempty"`
}

// TestConnectionInput is the input to NameTestConnection.
type TestConnectionInput struct {
	ConnectionString string `json:"connection_string"`
}

// TestConnectionOutput reports the probed server version.
type TestConnectionOutput struct {
	Version   string `json:"version"`
	Connected bool   `json:"connected"`
}

// RaiseEventInput is the input to NameRaiseEvent.
type RaiseEventInput struct {
	InstanceID string `json:"instance_id"`
	EventName  string `json:"event_name"`
	EventData  string `json:"event_data,omitempty"`
}

// RaiseEventOutput confirms the append landed.
type RaiseEventOutput struct {
	Raised bool `json:"raised"`
}

// CMSReserveInput is the input to NameCMSCreateInstance.
type CMSReserveInput struct {
	UserName              string `json:"user_name"`
	K8sName               string `json:"k8s_name"`
	DNSName               string `json:"dns_name,omitempty"`
	PostgresVersion       string `json:"postgres_version"`
	StorageSizeGB         int    `json:"storage_size_gb"`
	UseLoadBalancer       bool   `json:"use_load_balancer"`
	Namespace             string `json:"namespace"`
	CreateOrchestrationID string `json:"create_orchestration_id"`
}

// CMSReserveOutput carries the catalog id assigned to the new row.
type CMSReserveOutput struct {
	InstanceID string `json:"instance_id"`
}

// CMSUpdateStateInput is the input to NameCMSUpdateState.
type CMSUpdateStateInput struct {
	K8sName               string  `json:"k8s_name"`
	State                 string  `json:"state"`
	IPConnectionString    *string `json:"ip_connection_string,omitempty"`
	DNSConnectionString   *string `json:"dns_connection_string,omitempty"`
	ExternalIP            *string `json:"external_ip,omitempty"`
	DeleteOrchestrationID *string `json:"delete_orchestration_id,omitempty"`
	Message               *string `json:"message,omitempty"`
}

// CMSUpdateStateOutput reports whether a row actually existed to update.
type CMSUpdateStateOutput struct {
	Updated bool `json:"updated"`
}

// CMSFreeDNSInput is the input to NameCMSFreeDNS.
type CMSFreeDNSInput struct {
	K8sName string `json:"k8s_name"`
}

// CMSFreeDNSOutput reports whether a dns_name was actually released.
type CMSFreeDNSOutput struct {
	Freed bool `json:"freed"`
}

// CMSLookupInput is the input to both NameCMSGetByK8sName and
// NameCMSGetConnection — both are lookups by the same key.
type CMSLookupInput struct {
	K8sName string `json:"k8s_name"`
}

// CMSLookupOutput carries the catalog row, if found.
type CMSLookupOutput struct {
	Found               bool   `json:"found"`
	InstanceID          string `json:"instance_id,omitempty"`
	State               string `json:"state,omitempty"`
	Health              string `json:"health,omitempty"`
	IPConnectionString  string `json:"ip_connection_string,omitempty"`
	DNSConnectionString string `json:"dns_connection_string,omitempty"`
	ExternalIP          string `json:"external_ip,omitempty"`
	Namespace           string `json:"namespace,omitempty"`
}

// CMSRecordHealthCheckInput is the input to NameCMSRecordHealthCheck.
type CMSRecordHealthCheckInput struct {
	InstanceID      string `json:"instance_id"`
	Status          string `json:"status"`
	PostgresVersion string `json:"postgres_version,omitempty"`
	ResponseTimeMS  int    `json:"response_time_ms,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// CMSRecordHealthCheckOutput confirms the append landed.
type CMSRecordHealthCheckOutput struct {
	Recorded bool `json:"recorded"`
}

// CMSUpdateHealthInput is the input to NameCMSUpdateHealth.
type CMSUpdateHealthInput struct {
	InstanceID string `json:"instance_id"`
	Health     string `json:"health"`
}

// CMSUpdateHealthOutput confirms the stamp landed.
type CMSUpdateHealthOutput struct {
	Updated bool `json:"updated"`
}

// CMSRecordActorIDInput is the input to NameCMSRecordActorID.
type CMSRecordActorIDInput struct {
	K8sName              string `json:"k8s_name"`
	ActorOrchestrationID string `json:"actor_orchestration_id"`
}

// CMSRecordActorIDOutput confirms the stamp landed.
type CMSRecordActorIDOutput struct {
	Recorded bool `json:"recorded"`
}

// CMSDeleteInstanceInput is the input to NameCMSDeleteInstance.
type CMSDeleteInstanceInput struct {
	K8sName string `json:"k8s_name"`
}

// CMSDeleteInstanceOutput confirms the row is gone.
type CMSDeleteInstanceOutput struct {
	Deleted bool `json:"deleted"`
}
