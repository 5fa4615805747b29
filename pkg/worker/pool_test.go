package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory history.Store covering only what Pool
// exercises: listing and claiming activities, and appending their result.
type fakeStore struct {
	mu      sync.Mutex
	pending []history.ActivityWorkItem
	claimed map[string]bool
	events  []history.Event
}

func newFakeStore(items ...history.ActivityWorkItem) *fakeStore {
	return &fakeStore{pending: items, claimed: map[string]bool{}}
}

func (f *fakeStore) CreateInstance(string, string, int, json.RawMessage) (bool, error) { return false, nil }
func (f *fakeStore) GetWorkflowInstance(string) (*types.WorkflowInstance, error)        { return nil, nil }
func (f *fakeStore) ListInstances() ([]string, error)                                  { return nil, nil }
func (f *fakeStore) ListExecutions(string) ([]int, error)                              { return nil, nil }
func (f *fakeStore) ReadHistory(string, int) ([]history.Event, error)                  { return nil, nil }
func (f *fakeStore) ContinueAsNew(string, int, json.RawMessage) error                  { return nil }
func (f *fakeStore) RaiseEvent(string, string, json.RawMessage) error                  { return nil }
func (f *fakeStore) AcquireInstanceLease(string, string, time.Duration) (bool, error)  { return true, nil }
func (f *fakeStore) RenewInstanceLease(string, string, time.Duration) error            { return nil }
func (f *fakeStore) ReleaseInstanceLease(string, string) error                         { return nil }
func (f *fakeStore) ReapExpiredLeases() (int, int, error)                             { return 0, 0, nil }
func (f *fakeStore) Close() error                                                      { return nil }

func (f *fakeStore) ListClaimableActivities(limit int) ([]history.ActivityWorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []history.ActivityWorkItem
	for _, it := range f.pending {
		key := it.InstanceID
		if !f.claimed[key] {
			out = append(out, it)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ClaimActivity(item history.ActivityWorkItem, owner string, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[item.InstanceID] {
		return false, nil
	}
	f.claimed[item.InstanceID] = true
	return true, nil
}

func (f *fakeStore) AppendEvents(instanceID string, executionID int, events []history.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func TestPoolInvokesRegisteredActivityAndAppendsCompletion(t *testing.T) {
	item := history.ActivityWorkItem{InstanceID: "create-mydb", ExecutionID: 1, Seq: 1, Name: "deploy-postgres", Input: json.RawMessage(`"mydb"`)}
	store := newFakeStore(item)

	registry := activities.NewRegistry()
	registry.Register("deploy-postgres", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"deployed"`), nil
	})

	pool := NewPool(store, registry, Config{OwnerID: "worker-a", PollEvery: 10 * time.Millisecond})
	pool.poll()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.events) == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, history.KindActivityCompleted, store.events[0].Kind)
	assert.JSONEq(t, `"deployed"`, string(store.events[0].Output))
}

func TestPoolAppendsFailureForUnregisteredActivity(t *testing.T) {
	item := history.ActivityWorkItem{InstanceID: "create-mydb", ExecutionID: 1, Seq: 1, Name: "unknown-activity"}
	store := newFakeStore(item)
	registry := activities.NewRegistry()

	pool := NewPool(store, registry, Config{OwnerID: "worker-a"})
	pool.poll()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.events) == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, history.KindActivityFailed, store.events[0].Kind)
}
