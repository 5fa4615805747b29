package workflows

import (
	"testing"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/engine"
	"github.com/affandar/toygres/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteInstanceHappyPath(t *testing.T) {
	store := newMemStore()
	rt := engine.NewRuntime(store, NewDefaultRegistry())

	const rootID = "delete-pg-test"
	input := DeleteInstanceInput{Name: "pg-test", OrchestrationID: rootID}
	created, err := store.CreateInstance(rootID, NameDeleteInstance, 1, mustJSON(input))
	require.NoError(t, err)
	require.True(t, created)

	stubs := map[string]activityHandler{
		activities.NameCMSGetByK8sName: func() (interface{}, string) {
			return activities.CMSLookupOutput{Found: true, InstanceID: "inst-1"}, ""
		},
		activities.NameCMSUpdateState: func() (interface{}, string) {
			return activities.CMSUpdateStateOutput{Updated: true}, ""
		},
		activities.NameDeletePostgres: func() (interface{}, string) {
			return activities.DeletePostgresOutput{Deleted: true}, ""
		},
		activities.NameRaiseEvent: func() (interface{}, string) {
			return activities.RaiseEventOutput{Raised: true}, ""
		},
		activities.NameCMSDeleteInstance: func() (interface{}, string) {
			return activities.CMSDeleteInstanceOutput{Deleted: true}, ""
		},
		activities.NameCMSFreeDNS: func() (interface{}, string) {
			return activities.CMSFreeDNSOutput{Freed: true}, ""
		},
	}

	err = driveToTerminal(store, rt, rootID, stubs, 20)
	require.NoError(t, err)

	wi, err := store.GetWorkflowInstance(rootID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowCompleted, wi.Status)
	assert.Contains(t, wi.Output, `"deleted":true`)
}

func TestDeleteInstanceSkipsActorWakeWhenNotFound(t *testing.T) {
	store := newMemStore()
	rt := engine.NewRuntime(store, NewDefaultRegistry())

	const rootID = "delete-pg-missing"
	input := DeleteInstanceInput{Name: "pg-missing", OrchestrationID: rootID}
	created, err := store.CreateInstance(rootID, NameDeleteInstance, 1, mustJSON(input))
	require.NoError(t, err)
	require.True(t, created)

	raiseCalled := false
	stubs := map[string]activityHandler{
		activities.NameCMSGetByK8sName: func() (interface{}, string) {
			return activities.CMSLookupOutput{Found: false}, ""
		},
		activities.NameCMSUpdateState: func() (interface{}, string) {
			return activities.CMSUpdateStateOutput{Updated: false}, ""
		},
		activities.NameDeletePostgres: func() (interface{}, string) {
			return activities.DeletePostgresOutput{Deleted: false}, ""
		},
		activities.NameRaiseEvent: func() (interface{}, string) {
			raiseCalled = true
			return activities.RaiseEventOutput{Raised: true}, ""
		},
		activities.NameCMSDeleteInstance: func() (interface{}, string) {
			return activities.CMSDeleteInstanceOutput{Deleted: false}, ""
		},
		activities.NameCMSFreeDNS: func() (interface{}, string) {
			return activities.CMSFreeDNSOutput{Freed: false}, ""
		},
	}

	err = driveToTerminal(store, rt, rootID, stubs, 20)
	require.NoError(t, err)

	wi, err := store.GetWorkflowInstance(rootID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkflowCompleted, wi.Status)
	assert.False(t, raiseCalled, "RaiseEvent must not fire when the catalog row was never found")
}
