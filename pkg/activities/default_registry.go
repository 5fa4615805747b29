package activities

import (
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/affandar/toygres/pkg/catalog"
	"github.com/affandar/toygres/pkg/history"
)

// NewDefaultRegistry builds the Activity Catalog used by the Activity
// Worker in production: every activity named in names.go, wired to a real
// Kubernetes client, the CMS, and the Event-History Store.
func NewDefaultRegistry(k8sClient client.Client, catalogStore *catalog.Store, historyStore history.Store) *Registry {
	r := NewRegistry()

	RegisterTyped(r, NameDeployPostgres, K8sDeploy(k8sClient))
	RegisterTyped(r, NameDeletePostgres, K8sDelete(k8sClient))
	RegisterTyped(r, NameWaitForReady, K8sWaitForReady(k8sClient))
	RegisterTyped(r, NameGetConnectionStrings, K8sGetConnectionStrings(k8sClient))
	RegisterTyped(r, NameTestConnection, TestConnection)
	RegisterTyped(r, NameRaiseEvent, RaiseEvent(historyStore))

	RegisterTyped(r, NameCMSCreateInstance, CMSReserve(catalogStore))
	RegisterTyped(r, NameCMSUpdateState, CMSUpdateState(catalogStore))
	RegisterTyped(r, NameCMSFreeDNS, CMSFreeDNS(catalogStore))
	RegisterTyped(r, NameCMSGetByK8sName, CMSGetByK8sName(catalogStore))
	RegisterTyped(r, NameCMSGetConnection, CMSGetConnection(catalogStore))
	RegisterTyped(r, NameCMSRecordHealthCheck, CMSRecordHealthCheck(catalogStore))
	RegisterTyped(r, NameCMSUpdateHealth, CMSUpdateHealth(catalogStore))
	RegisterTyped(r, NameCMSRecordActorID, CMSRecordActorID(catalogStore))
	RegisterTyped(r, NameCMSDeleteInstance, CMSDeleteInstance(catalogStore))

	return r
}
