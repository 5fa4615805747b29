package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoltStoreCreateInstanceIsIdempotent(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	created, err := store.createInstance("create-mydb", "CreateInstance", 1, json.RawMessage(`{"k":"v"}`), now)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.createInstance("create-mydb", "CreateInstance", 1, json.RawMessage(`{"k":"v"}`), now)
	require.NoError(t, err)
	require.False(t, created, "second CreateInstance with the same instance id must be a no-op")

	events, err := store.ReadHistory("create-mydb", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, KindOrchestrationStarted, events[0].Kind)
}

func TestBoltStoreAppendEventsAssignsSeq(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	_, err = store.createInstance("create-mydb", "CreateInstance", 1, nil, now)
	require.NoError(t, err)

	err = store.appendEvents("create-mydb", 1, []Event{
		{Kind: KindActivityScheduled, Name: "deploy-postgres"},
		{Kind: KindActivityScheduled, Name: "wait-for-ready"},
	}, now)
	require.NoError(t, err)

	events, err := store.ReadHistory("create-mydb", 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, 1, events[1].Seq)
	require.Equal(t, 2, events[2].Seq)
}

func TestBoltStoreInstanceLeaseExclusive(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	_, err = store.createInstance("create-mydb", "CreateInstance", 1, nil, now)
	require.NoError(t, err)

	acquired, err := store.acquireInstanceLease("create-mydb", "worker-a", time.Minute, now)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = store.acquireInstanceLease("create-mydb", "worker-b", time.Minute, now)
	require.NoError(t, err)
	require.False(t, acquired, "a live lease must not be stolen by a different owner")

	acquired, err = store.acquireInstanceLease("create-mydb", "worker-b", time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, acquired, "an expired lease must become acquirable")
}

func TestBoltStoreClaimActivityLeaseExpiry(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	item := ActivityWorkItem{InstanceID: "create-mydb", ExecutionID: 1, Seq: 1, Name: "deploy-postgres"}

	claimed, err := store.claimActivity(item, "worker-a", 5*time.Minute, now)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.claimActivity(item, "worker-b", 5*time.Minute, now)
	require.NoError(t, err)
	require.False(t, claimed)

	instanceReaped, activityReaped, err := store.reapExpiredLeases(now.Add(6 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, instanceReaped)
	require.Equal(t, 1, activityReaped)

	claimed, err = store.claimActivity(item, "worker-b", 5*time.Minute, now.Add(6*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed, "reaped lease must become claimable again")
}
