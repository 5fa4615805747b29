package activities

// Stable activity names, exactly as spec.md §6.3 lists them. The
// Orchestration Runtime schedules activities by these strings; renaming
// one here would silently break replay of any in-flight history that
// already recorded the old name.
const (
	NameDeployPostgres        = "deploy-postgres"
	NameDeletePostgres        = "delete-postgres"
	NameWaitForReady          = "wait-for-ready"
	NameGetConnectionStrings  = "get-connection-strings"
	NameTestConnection        = "test-connection"
	NameRaiseEvent            = "raise-event"
	NameCMSCreateInstance     = "cms-create-instance-record"
	NameCMSUpdateState        = "cms-update-instance-state"
	NameCMSFreeDNS            = "cms-free-dns-name"
	NameCMSGetByK8sName       = "cms-get-instance-by-k8s-name"
	NameCMSGetConnection      = "cms-get-instance-connection"
	NameCMSRecordHealthCheck  = "cms-record-health-check"
	NameCMSUpdateHealth       = "cms-update-instance-health"
	NameCMSRecordActorID      = "cms-record-instance-actor"
	NameCMSDeleteInstance     = "cms-delete-instance-record"
)
