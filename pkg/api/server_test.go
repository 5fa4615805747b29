package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affandar/toygres/pkg/client"
	"github.com/affandar/toygres/pkg/config"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
	"github.com/affandar/toygres/pkg/workflows"
)

// fakeStore is a minimal in-memory history.Store, grounded on the same
// shape pkg/client/client_test.go and pkg/worker/pool_test.go use: only
// what this package's handlers actually exercise.
type fakeStore struct {
	instances map[string]*types.WorkflowInstance
	history   map[string][]history.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{instances: map[string]*types.WorkflowInstance{}, history: map[string][]history.Event{}}
}

func (f *fakeStore) CreateInstance(instanceID, name string, version int, input json.RawMessage) (bool, error) {
	if _, exists := f.instances[instanceID]; exists {
		return false, nil
	}
	f.instances[instanceID] = &types.WorkflowInstance{InstanceID: instanceID, Name: name, Version: version, Status: types.WorkflowRunning, CurrentExecutionID: 1}
	f.history[instanceID] = []history.Event{{Seq: 1, Kind: history.KindOrchestrationStarted, Input: input}}
	return true, nil
}

func (f *fakeStore) GetWorkflowInstance(instanceID string) (*types.WorkflowInstance, error) {
	return f.instances[instanceID], nil
}

func (f *fakeStore) ListInstances() ([]string, error) {
	var ids []string
	for id := range f.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) ListExecutions(instanceID string) ([]int, error) {
	if _, ok := f.instances[instanceID]; !ok {
		return nil, nil
	}
	return []int{1}, nil
}

func (f *fakeStore) ReadHistory(instanceID string, executionID int) ([]history.Event, error) {
	return f.history[instanceID], nil
}

func (f *fakeStore) AppendEvents(instanceID string, executionID int, events []history.Event) error {
	f.history[instanceID] = append(f.history[instanceID], events...)
	return nil
}

func (f *fakeStore) ContinueAsNew(string, int, json.RawMessage) error { return nil }
func (f *fakeStore) RaiseEvent(string, string, json.RawMessage) error { return nil }

func (f *fakeStore) AcquireInstanceLease(string, string, time.Duration) (bool, error) { return true, nil }
func (f *fakeStore) RenewInstanceLease(string, string, time.Duration) error           { return nil }
func (f *fakeStore) ReleaseInstanceLease(string, string) error                        { return nil }
func (f *fakeStore) ListClaimableActivities(int) ([]history.ActivityWorkItem, error)  { return nil, nil }
func (f *fakeStore) ClaimActivity(history.ActivityWorkItem, string, time.Duration) (bool, error) {
	return false, nil
}
func (f *fakeStore) ReapExpiredLeases() (int, int, error) { return 0, 0, nil }
func (f *fakeStore) Close() error                         { return nil }

func newTestServer() (*Server, *fakeStore) {
	store := newFakeStore()
	c := client.New(store)
	return NewServer(c, store, zerolog.Nop()), store
}

func TestHealthzAlwaysReady(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzReportsOkForNonRaftStore(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp readyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "not raft-backed", resp.Checks["raft"])
}

func TestCreateInstanceThenGetReportsRunning(t *testing.T) {
	s, _ := newTestServer()

	body, _ := json.Marshal(createInstanceRequest{Name: "pg-1", UserName: "alice", Password: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/instances/pg-1", nil)
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var info types.WorkflowInstance
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&info))
	assert.Equal(t, types.WorkflowRunning, info.Status)
}

func TestCreateInstanceRejectsDuplicateName(t *testing.T) {
	s, _ := newTestServer()
	body, _ := json.Marshal(createInstanceRequest{Name: "pg-1", UserName: "alice", Password: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestCreateInstanceRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer()
	body, _ := json.Marshal(createInstanceRequest{Name: "pg-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInstanceReportsNotFound(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/instances/nope", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteInstanceStartsUnderDistinctOrchestrationID(t *testing.T) {
	s, store := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/instances/pg-1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp deleteInstanceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "delete-pg-1", resp.OrchestrationID)

	wi, err := store.GetWorkflowInstance("delete-pg-1")
	require.NoError(t, err)
	require.NotNil(t, wi)
}

func TestListInstancesAndExecutions(t *testing.T) {
	s, store := newTestServer()
	_, err := store.CreateInstance("pg-1", "CreateInstance", 1, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instances", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp map[string][]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listResp))
	assert.Equal(t, []string{"pg-1"}, listResp["instances"])

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/instances/pg-1/executions", nil)
	w2 := httptest.NewRecorder()
	s.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestCreateInstanceAppliesManifestOverridesForBlankFields(t *testing.T) {
	s, store := newTestServer()
	s.WithManifestOverrides(map[string]config.ManifestOverride{
		"pg-1": {CPURequest: "250m", MemoryLimit: "1Gi"},
	})

	body, _ := json.Marshal(createInstanceRequest{Name: "pg-1", UserName: "alice", Password: "secret", CPULimit: "2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	wi, err := store.GetWorkflowInstance("pg-1")
	require.NoError(t, err)
	require.NotNil(t, wi)

	var input workflows.CreateInstanceInput
	require.NoError(t, json.Unmarshal(store.history["pg-1"][0].Input, &input))
	assert.Equal(t, "250m", input.CPURequest)
	assert.Equal(t, "1Gi", input.MemoryLimit)
	assert.Equal(t, "2", input.CPULimit)
}

func TestClusterSummaryWithoutCatalogFails(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cluster/summary", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
