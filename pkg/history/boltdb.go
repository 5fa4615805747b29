package history

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/affandar/toygres/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketExecutions     = []byte("executions")
	bucketInstancesIndex = []byte("instances_index")
	bucketActivityLeases = []byte("activity_leases")
	bucketInstanceReg    = []byte("instance_registry")
)

// instanceRecord is the value stored in instances_index: everything about a
// WorkflowInstance except its history, which lives keyed separately per
// execution in bucketExecutions.
type instanceRecord struct {
	Name                string              `json:"name"`
	Version             int                 `json:"version"`
	Status              types.WorkflowStatus `json:"status"`
	CurrentExecutionID  int                 `json:"current_execution_id"`
	Output              string              `json:"output,omitempty"`
	FailureDetails      string              `json:"failure_details,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	InstanceLease       *Lease              `json:"instance_lease,omitempty"`
}

// BoltStore is the local, non-replicated bbolt handle underneath the Raft
// FSM. It mirrors the teacher's one-bucket-per-entity BoltStore: every
// entity kind gets its own bucket, values are JSON blobs keyed by a string
// key, and "update" is just "create" again (upsert).
type BoltStore struct {
	mu sync.Mutex
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the event-history database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "history.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketExecutions, bucketInstancesIndex, bucketActivityLeases, bucketInstanceReg} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- instance lifecycle ---

func (s *BoltStore) createInstance(instanceID, name string, version int, input json.RawMessage, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		if idx.Get([]byte(instanceID)) != nil {
			return nil
		}

		rec := instanceRecord{
			Name:               name,
			Version:            version,
			Status:             types.WorkflowRunning,
			CurrentExecutionID: 1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := idx.Put([]byte(instanceID), data); err != nil {
			return err
		}

		reg := tx.Bucket(bucketInstanceReg)
		if err := reg.Put([]byte(instanceID), []byte{1}); err != nil {
			return err
		}

		started := Event{
			Kind:      KindOrchestrationStarted,
			Name:      name,
			Version:   version,
			Input:     input,
			Timestamp: now,
		}
		events := []Event{started}
		evData, err := json.Marshal(events)
		if err != nil {
			return err
		}
		ex := tx.Bucket(bucketExecutions)
		if err := ex.Put([]byte(executionKey(instanceID, 1)), evData); err != nil {
			return err
		}

		created = true
		return nil
	})
	return created, err
}

func (s *BoltStore) getInstanceRecord(tx *bolt.Tx, instanceID string) (*instanceRecord, error) {
	idx := tx.Bucket(bucketInstancesIndex)
	data := idx.Get([]byte(instanceID))
	if data == nil {
		return nil, nil
	}
	var rec instanceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) GetWorkflowInstance(instanceID string) (*types.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wi *types.WorkflowInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		wi = &types.WorkflowInstance{
			InstanceID:         instanceID,
			Name:               rec.Name,
			Version:            rec.Version,
			Status:             rec.Status,
			CurrentExecutionID: rec.CurrentExecutionID,
			Output:             rec.Output,
			FailureDetails:     rec.FailureDetails,
			CreatedAt:          rec.CreatedAt,
			UpdatedAt:          rec.UpdatedAt,
		}
		return nil
	})
	return wi, err
}

func (s *BoltStore) ListInstances() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		reg := tx.Bucket(bucketInstanceReg)
		return reg.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) ListExecutions(instanceID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var executionIDs []int
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		for i := 1; i <= rec.CurrentExecutionID; i++ {
			executionIDs = append(executionIDs, i)
		}
		return nil
	})
	return executionIDs, err
}

func (s *BoltStore) ReadHistory(instanceID string, executionID int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		ex := tx.Bucket(bucketExecutions)
		data := ex.Get([]byte(executionKey(instanceID, executionID)))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &events)
	})
	return events, err
}

func (s *BoltStore) appendEvents(instanceID string, executionID int, newEvents []Event, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		ex := tx.Bucket(bucketExecutions)
		key := []byte(executionKey(instanceID, executionID))

		var events []Event
		if data := ex.Get(key); data != nil {
			if err := json.Unmarshal(data, &events); err != nil {
				return err
			}
		}

		nextSeq := 0
		for _, e := range events {
			if e.Seq > nextSeq {
				nextSeq = e.Seq
			}
		}

		for i := range newEvents {
			e := newEvents[i]
			if e.Timestamp.IsZero() {
				e.Timestamp = now
			}
			switch e.Kind {
			case KindActivityScheduled, KindTimerCreated, KindSubOrchestrationScheduled:
				if e.Seq == 0 {
					nextSeq++
					e.Seq = nextSeq
				}
			}
			events = append(events, e)

			if e.Kind == KindOrchestrationCompleted || e.Kind == KindOrchestrationFailed {
				if err := s.finishInstance(tx, instanceID, e, now); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(events)
		if err != nil {
			return err
		}
		return ex.Put(key, data)
	})
}

func (s *BoltStore) finishInstance(tx *bolt.Tx, instanceID string, e Event, now time.Time) error {
	idx := tx.Bucket(bucketInstancesIndex)
	rec, err := s.getInstanceRecord(tx, instanceID)
	if err != nil || rec == nil {
		return err
	}
	if e.Kind == KindOrchestrationCompleted {
		rec.Status = types.WorkflowCompleted
		rec.Output = string(e.Output)
	} else {
		rec.Status = types.WorkflowFailed
		rec.FailureDetails = e.Error
	}
	rec.UpdatedAt = now
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return idx.Put([]byte(instanceID), data)
}

func (s *BoltStore) continueAsNew(instanceID string, nextExecutionID int, input json.RawMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("fatal: continue-as-new on unknown instance %s", instanceID)
		}
		rec.CurrentExecutionID = nextExecutionID
		rec.Status = types.WorkflowRunning
		rec.UpdatedAt = now
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := idx.Put([]byte(instanceID), data); err != nil {
			return err
		}

		started := Event{Kind: KindOrchestrationStarted, Name: rec.Name, Version: rec.Version, Input: input, Timestamp: now}
		evData, err := json.Marshal([]Event{started})
		if err != nil {
			return err
		}
		ex := tx.Bucket(bucketExecutions)
		return ex.Put([]byte(executionKey(instanceID, nextExecutionID)), evData)
	})
}

func (s *BoltStore) raiseEvent(instanceID, name string, payload json.RawMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("conflict: raise-event on unknown instance %s", instanceID)
		}
		ex := tx.Bucket(bucketExecutions)
		key := []byte(executionKey(instanceID, rec.CurrentExecutionID))
		var events []Event
		if data := ex.Get(key); data != nil {
			if err := json.Unmarshal(data, &events); err != nil {
				return err
			}
		}
		events = append(events, Event{Kind: KindExternalEventRaised, Name: name, Payload: payload, Timestamp: now})
		data, err := json.Marshal(events)
		if err != nil {
			return err
		}
		return ex.Put(key, data)
	})
}

// --- instance-plane (workflow) leases ---

func (s *BoltStore) acquireInstanceLease(instanceID, owner string, timeout time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil || rec == nil {
			return err
		}
		if rec.InstanceLease != nil && !rec.InstanceLease.expired(now) && rec.InstanceLease.Owner != owner {
			return nil
		}
		rec.InstanceLease = &Lease{Owner: owner, ExpiresAt: now.Add(timeout)}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := idx.Put([]byte(instanceID), data); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *BoltStore) renewInstanceLease(instanceID, owner string, timeout time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil || rec == nil {
			return err
		}
		if rec.InstanceLease == nil || rec.InstanceLease.Owner != owner {
			return fmt.Errorf("conflict: lease on %s not held by %s", instanceID, owner)
		}
		rec.InstanceLease.ExpiresAt = now.Add(timeout)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return idx.Put([]byte(instanceID), data)
	})
}

func (s *BoltStore) releaseInstanceLease(instanceID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		rec, err := s.getInstanceRecord(tx, instanceID)
		if err != nil || rec == nil {
			return err
		}
		if rec.InstanceLease != nil && rec.InstanceLease.Owner == owner {
			rec.InstanceLease = nil
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return idx.Put([]byte(instanceID), data)
	})
}

// --- activity-plane leases ---

func (s *BoltStore) listClaimableActivities(limit int, now time.Time) ([]ActivityWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []ActivityWorkItem
	err := s.db.View(func(tx *bolt.Tx) error {
		reg := tx.Bucket(bucketInstanceReg)
		ex := tx.Bucket(bucketExecutions)
		leases := tx.Bucket(bucketActivityLeases)

		return reg.ForEach(func(k, _ []byte) error {
			if len(items) >= limit {
				return nil
			}
			instanceID := string(k)
			rec, err := s.getInstanceRecord(tx, instanceID)
			if err != nil || rec == nil {
				return nil
			}
			data := ex.Get([]byte(executionKey(instanceID, rec.CurrentExecutionID)))
			if data == nil {
				return nil
			}
			var events []Event
			if err := json.Unmarshal(data, &events); err != nil {
				return nil
			}

			resolved := map[int]bool{}
			scheduled := map[int]Event{}
			for _, e := range events {
				switch e.Kind {
				case KindActivityScheduled:
					scheduled[e.Seq] = e
				case KindActivityCompleted, KindActivityFailed:
					resolved[e.Seq] = true
				}
			}
			for seq, e := range scheduled {
				if resolved[seq] || len(items) >= limit {
					continue
				}
				lk := []byte(leaseKey(instanceID, rec.CurrentExecutionID, seq))
				if ld := leases.Get(lk); ld != nil {
					var lease Lease
					if err := json.Unmarshal(ld, &lease); err == nil && !lease.expired(now) {
						continue
					}
				}
				items = append(items, ActivityWorkItem{
					InstanceID:  instanceID,
					ExecutionID: rec.CurrentExecutionID,
					Seq:         seq,
					Name:        e.Name,
					Input:       e.Input,
				})
			}
			return nil
		})
	})
	return items, err
}

func (s *BoltStore) claimActivity(item ActivityWorkItem, owner string, timeout time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		leases := tx.Bucket(bucketActivityLeases)
		key := []byte(item.key())
		if data := leases.Get(key); data != nil {
			var lease Lease
			if err := json.Unmarshal(data, &lease); err == nil && !lease.expired(now) && lease.Owner != owner {
				return nil
			}
		}
		lease := Lease{Owner: owner, ExpiresAt: now.Add(timeout)}
		data, err := json.Marshal(lease)
		if err != nil {
			return err
		}
		if err := leases.Put(key, data); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// dumpForSnapshot copies every bucket's raw key/value pairs, keyed by the
// original string key, for use in a Raft snapshot.
func (s *BoltStore) dumpForSnapshot() (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Instances:  map[string]json.RawMessage{},
		Executions: map[string]json.RawMessage{},
		Leases:     map[string]json.RawMessage{},
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		if err := dumpBucket(tx, bucketInstancesIndex, snap.Instances); err != nil {
			return err
		}
		if err := dumpBucket(tx, bucketExecutions, snap.Executions); err != nil {
			return err
		}
		return dumpBucket(tx, bucketActivityLeases, snap.Leases)
	})
	return snap, err
}

func dumpBucket(tx *bolt.Tx, name []byte, into map[string]json.RawMessage) error {
	b := tx.Bucket(name)
	return b.ForEach(func(k, v []byte) error {
		cp := make([]byte, len(v))
		copy(cp, v)
		into[string(k)] = cp
		return nil
	})
}

// restoreSnapshot replaces every bucket's contents with the given dump and
// rebuilds the instance_registry index from the restored instances.
func (s *BoltStore) restoreSnapshot(instances, executions, leases map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketExecutions, bucketInstancesIndex, bucketActivityLeases, bucketInstanceReg} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		idx := tx.Bucket(bucketInstancesIndex)
		reg := tx.Bucket(bucketInstanceReg)
		for k, v := range instances {
			if err := idx.Put([]byte(k), v); err != nil {
				return err
			}
			if err := reg.Put([]byte(k), []byte{1}); err != nil {
				return err
			}
		}

		ex := tx.Bucket(bucketExecutions)
		for k, v := range executions {
			if err := ex.Put([]byte(k), v); err != nil {
				return err
			}
		}

		lb := tx.Bucket(bucketActivityLeases)
		for k, v := range leases {
			if err := lb.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) reapExpiredLeases(now time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instanceReaped, activityReaped := 0, 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketInstancesIndex)
		c := idx.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec instanceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.InstanceLease != nil && rec.InstanceLease.expired(now) {
				rec.InstanceLease = nil
				data, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if err := idx.Put(k, data); err != nil {
					return err
				}
				instanceReaped++
			}
		}

		leases := tx.Bucket(bucketActivityLeases)
		lc := leases.Cursor()
		var expiredKeys [][]byte
		for k, v := lc.First(); k != nil; k, v = lc.Next() {
			var lease Lease
			if err := json.Unmarshal(v, &lease); err != nil {
				continue
			}
			if lease.expired(now) {
				kc := make([]byte, len(k))
				copy(kc, k)
				expiredKeys = append(expiredKeys, kc)
			}
		}
		for _, k := range expiredKeys {
			if err := leases.Delete(k); err != nil {
				return err
			}
			activityReaped++
		}
		return nil
	})
	return instanceReaped, activityReaped, err
}
