package activities

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
)

type fakeEventStore struct {
	raisedInstanceID string
	raisedName       string
	raisedPayload    json.RawMessage
}

func (f *fakeEventStore) CreateInstance(string, string, int, json.RawMessage) (bool, error) {
	return false, nil
}
func (f *fakeEventStore) GetWorkflowInstance(string) (*types.WorkflowInstance, error) { return nil, nil }
func (f *fakeEventStore) ListInstances() ([]string, error)                           { return nil, nil }
func (f *fakeEventStore) ListExecutions(string) ([]int, error)                        { return nil, nil }
func (f *fakeEventStore) ReadHistory(string, int) ([]history.Event, error)            { return nil, nil }
func (f *fakeEventStore) AppendEvents(string, int, []history.Event) error             { return nil }
func (f *fakeEventStore) ContinueAsNew(string, int, json.RawMessage) error            { return nil }
func (f *fakeEventStore) AcquireInstanceLease(string, string, time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeEventStore) RenewInstanceLease(string, string, time.Duration) error { return nil }
func (f *fakeEventStore) ReleaseInstanceLease(string, string) error             { return nil }
func (f *fakeEventStore) ListClaimableActivities(int) ([]history.ActivityWorkItem, error) {
	return nil, nil
}
func (f *fakeEventStore) ClaimActivity(history.ActivityWorkItem, string, time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeEventStore) ReapExpiredLeases() (int, int, error) { return 0, 0, nil }
func (f *fakeEventStore) Close() error                         { return nil }

func (f *fakeEventStore) RaiseEvent(instanceID, name string, payload json.RawMessage) error {
	f.raisedInstanceID = instanceID
	f.raisedName = name
	f.raisedPayload = payload
	return nil
}

func TestRaiseEventForwardsToStore(t *testing.T) {
	store := &fakeEventStore{}
	raise := RaiseEvent(store)

	out, err := raise(context.Background(), RaiseEventInput{
		InstanceID: "actor-mydb",
		EventName:  "stop",
		EventData:  `{"reason":"delete requested"}`,
	})
	require.NoError(t, err)
	assert.True(t, out.Raised)
	assert.Equal(t, "actor-mydb", store.raisedInstanceID)
	assert.Equal(t, "stop", store.raisedName)
	assert.JSONEq(t, `{"reason":"delete requested"}`, string(store.raisedPayload))
}

func TestRaiseEventDefaultsPayloadToNull(t *testing.T) {
	store := &fakeEventStore{}
	raise := RaiseEvent(store)

	_, err := raise(context.Background(), RaiseEventInput{InstanceID: "actor-mydb", EventName: "stop"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(store.raisedPayload))
}
