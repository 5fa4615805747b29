package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/log"
	"github.com/affandar/toygres/pkg/metrics"
	"github.com/affandar/toygres/pkg/types"
	"github.com/rs/zerolog"
)

// Runtime owns the registry of workflow implementations and drives
// individual decision rounds against a Store. It does not itself decide
// which instances need a round — that is Dispatcher's job.
type Runtime struct {
	store    history.Store
	registry *Registry
	logger   zerolog.Logger
}

// NewRuntime builds a Runtime over store using the given workflow registry.
func NewRuntime(store history.Store, registry *Registry) *Runtime {
	return &Runtime{
		store:    store,
		registry: registry,
		logger:   log.WithComponent("engine"),
	}
}

// Decide runs exactly one decision round for instanceID's current execution:
// replay the committed history into fn, run it to its next suspension
// point, and commit whatever the round produced. This is spec.md §4.2's
// replay-and-decide loop in its entirety.
func (rt *Runtime) Decide(instanceID string) error {
	wi, err := rt.store.GetWorkflowInstance(instanceID)
	if err != nil {
		return fmt.Errorf("get workflow instance %s: %w", instanceID, err)
	}
	if wi == nil || wi.Status != types.WorkflowRunning {
		return nil
	}

	fn, ok := rt.registry.Lookup(wi.Name)
	if !ok {
		return fmt.Errorf("fatal: no workflow registered under name %q", wi.Name)
	}

	events, err := rt.store.ReadHistory(instanceID, wi.CurrentExecutionID)
	if err != nil {
		return fmt.Errorf("read history %s/%d: %w", instanceID, wi.CurrentExecutionID, err)
	}

	var seedInput json.RawMessage
	for _, e := range events {
		if e.Kind == history.KindOrchestrationStarted {
			seedInput = e.Input
			break
		}
	}

	logger := log.WithOrchestration(instanceID, wi.CurrentExecutionID)
	timer := metrics.NewTimer()

	octx := newOrchestrationContext(instanceID, events, time.Now().UTC())
	outcome := octx.run(fn, seedInput)

	timer.ObserveDurationVec(metrics.OrchestrationReplayDuration, wi.Name)

	switch outcome.kind {
	case outcomeSuspended:
		if len(octx.pending) == 0 {
			// Nothing new was scheduled and nothing resolved: there is no
			// progress to make until more history shows up externally.
			return nil
		}
		stamped := stampTimestamps(octx.pending, time.Now().UTC())
		if err := rt.store.AppendEvents(instanceID, wi.CurrentExecutionID, stamped); err != nil {
			return fmt.Errorf("append events %s/%d: %w", instanceID, wi.CurrentExecutionID, err)
		}
		return nil

	case outcomeCompleted:
		final := append(octx.pending, history.Event{
			Kind:   history.KindOrchestrationCompleted,
			Output: outcome.output,
		})
		if err := rt.store.AppendEvents(instanceID, wi.CurrentExecutionID, stampTimestamps(final, time.Now().UTC())); err != nil {
			return fmt.Errorf("append completion %s/%d: %w", instanceID, wi.CurrentExecutionID, err)
		}
		metrics.OrchestrationsCompletedTotal.WithLabelValues(wi.Name, "completed").Inc()
		logger.Info().Msg("orchestration completed")
		return nil

	case outcomeFailed:
		final := append(octx.pending, history.Event{
			Kind:  history.KindOrchestrationFailed,
			Error: outcome.err.Error(),
		})
		if err := rt.store.AppendEvents(instanceID, wi.CurrentExecutionID, stampTimestamps(final, time.Now().UTC())); err != nil {
			return fmt.Errorf("append failure %s/%d: %w", instanceID, wi.CurrentExecutionID, err)
		}
		metrics.OrchestrationsCompletedTotal.WithLabelValues(wi.Name, "failed").Inc()
		logger.Warn().Err(outcome.err).Msg("orchestration failed")
		return nil

	case outcomeContinueAsNew:
		closing := append(octx.pending, history.Event{Kind: history.KindContinuedAsNew})
		if err := rt.store.AppendEvents(instanceID, wi.CurrentExecutionID, stampTimestamps(closing, time.Now().UTC())); err != nil {
			return fmt.Errorf("append continue-as-new close %s/%d: %w", instanceID, wi.CurrentExecutionID, err)
		}
		next := wi.CurrentExecutionID + 1
		if err := rt.store.ContinueAsNew(instanceID, next, outcome.continueInput); err != nil {
			return fmt.Errorf("continue as new %s -> %d: %w", instanceID, next, err)
		}
		metrics.ContinueAsNewTotal.WithLabelValues(wi.Name).Inc()
		logger.Info().Int("next_execution_id", next).Msg("continued as new")
		return nil
	}
	return nil
}

func stampTimestamps(events []history.Event, now time.Time) []history.Event {
	out := make([]history.Event, len(events))
	for i, e := range events {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		out[i] = e
	}
	return out
}

// Dispatcher is the ticker-driven loop that finds Running instances needing
// a decision round, arbitrates via the instance lease, and resolves
// sub-orchestration results by watching for child completion — grounded on
// the teacher's reconciler.Reconciler ticker shape.
type Dispatcher struct {
	store     history.Store
	runtime   *Runtime
	ownerID   string
	leaseTTL  time.Duration
	pollEvery time.Duration
	logger    zerolog.Logger
	mu        sync.Mutex
	stopCh    chan struct{}
}

// NewDispatcher builds a Dispatcher that identifies itself as ownerID when
// acquiring instance leases.
func NewDispatcher(store history.Store, runtime *Runtime, ownerID string) *Dispatcher {
	return &Dispatcher{
		store:     store,
		runtime:   runtime,
		ownerID:   ownerID,
		leaseTTL:  30 * time.Second,
		pollEvery: 2 * time.Second,
		logger:    log.WithComponent("dispatcher"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the dispatch loop in a background goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop ends the dispatch loop.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	d.logger.Info().Msg("dispatcher started")
	for {
		select {
		case <-ticker.C:
			d.tick()
		case <-d.stopCh:
			d.logger.Info().Msg("dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	instanceIDs, err := d.store.ListInstances()
	if err != nil {
		d.logger.Error().Err(err).Msg("list instances failed")
		return
	}

	for _, id := range instanceIDs {
		acquired, err := d.store.AcquireInstanceLease(id, d.ownerID, d.leaseTTL)
		if err != nil {
			d.logger.Error().Err(err).Str("instance_id", id).Msg("acquire instance lease failed")
			continue
		}
		if !acquired {
			continue
		}

		if err := d.resolveSubOrchestrations(id); err != nil {
			d.logger.Error().Err(err).Str("instance_id", id).Msg("resolve sub-orchestrations failed")
		}
		if err := d.resolveTimers(id); err != nil {
			d.logger.Error().Err(err).Str("instance_id", id).Msg("resolve timers failed")
		}
		if err := d.runtime.Decide(id); err != nil {
			d.logger.Error().Err(err).Str("instance_id", id).Msg("decision round failed")
		}

		if err := d.store.ReleaseInstanceLease(id, d.ownerID); err != nil {
			d.logger.Error().Err(err).Str("instance_id", id).Msg("release instance lease failed")
		}
	}

	if instanceLeasesReaped, activityLeasesReaped, err := d.store.ReapExpiredLeases(); err != nil {
		d.logger.Error().Err(err).Msg("reap expired leases failed")
	} else if instanceLeasesReaped > 0 || activityLeasesReaped > 0 {
		d.logger.Info().
			Int("instance_leases_reaped", instanceLeasesReaped).
			Int("activity_leases_reaped", activityLeasesReaped).
			Msg("reaped expired leases")
	}
}

// resolveSubOrchestrations scans instanceID's current execution for
// SubOrchestrationScheduled events with no matching Completed/Failed yet,
// and appends one once the child instance has reached a terminal status.
// The parent only ever held the child's instance id (spec.md §9), so this
// out-of-band pass is the only place completion crosses back to it.
func (d *Dispatcher) resolveSubOrchestrations(instanceID string) error {
	wi, err := d.store.GetWorkflowInstance(instanceID)
	if err != nil || wi == nil || wi.Status != types.WorkflowRunning {
		return err
	}

	events, err := d.store.ReadHistory(instanceID, wi.CurrentExecutionID)
	if err != nil {
		return err
	}

	resolved := map[int]bool{}
	pending := map[int]history.Event{}
	for _, e := range events {
		switch e.Kind {
		case history.KindSubOrchestrationScheduled:
			pending[e.Seq] = e
		case history.KindSubOrchestrationCompleted, history.KindSubOrchestrationFailed:
			resolved[e.Seq] = true
		}
	}

	var toAppend []history.Event
	for seq, sched := range pending {
		if resolved[seq] {
			continue
		}
		child, err := d.store.GetWorkflowInstance(sched.ChildInstanceID)
		if err != nil {
			return err
		}
		if child == nil {
			// First time this sub-orchestration is observed: spawn the
			// child instance so a future tick can decide it. Its own
			// SubOrchestrationCompleted/Failed is appended to the parent
			// only once the child, in turn, reaches a terminal status.
			if _, err := d.store.CreateInstance(sched.ChildInstanceID, sched.Name, 1, sched.Input); err != nil {
				return fmt.Errorf("spawn child instance %s: %w", sched.ChildInstanceID, err)
			}
			continue
		}
		switch child.Status {
		case types.WorkflowCompleted:
			toAppend = append(toAppend, history.Event{
				Kind:   history.KindSubOrchestrationCompleted,
				Seq:    seq,
				Output: json.RawMessage(child.Output),
			})
		case types.WorkflowFailed:
			toAppend = append(toAppend, history.Event{
				Kind:  history.KindSubOrchestrationFailed,
				Seq:   seq,
				Error: child.FailureDetails,
			})
		}
	}

	if len(toAppend) == 0 {
		return nil
	}
	return d.store.AppendEvents(instanceID, wi.CurrentExecutionID, stampTimestamps(toAppend, time.Now().UTC()))
}

// resolveTimers scans instanceID's current execution for TimerCreated
// events with no matching TimerFired yet whose FireAt has already passed,
// and appends the firing event. This is the only place a durable timer
// ever resolves: CreateTimer itself only records when the timer should
// fire (spec.md §4.2), it never observes the wall clock.
func (d *Dispatcher) resolveTimers(instanceID string) error {
	wi, err := d.store.GetWorkflowInstance(instanceID)
	if err != nil || wi == nil || wi.Status != types.WorkflowRunning {
		return err
	}

	events, err := d.store.ReadHistory(instanceID, wi.CurrentExecutionID)
	if err != nil {
		return err
	}

	fired := map[int]bool{}
	var created []history.Event
	for _, e := range events {
		switch e.Kind {
		case history.KindTimerCreated:
			created = append(created, e)
		case history.KindTimerFired:
			fired[e.Seq] = true
		}
	}

	now := time.Now().UTC()
	var toAppend []history.Event
	for _, timer := range created {
		if fired[timer.Seq] || now.Before(timer.FireAt) {
			continue
		}
		toAppend = append(toAppend, history.Event{
			Kind: history.KindTimerFired,
			Seq:  timer.Seq,
		})
	}

	if len(toAppend) == 0 {
		return nil
	}
	return d.store.AppendEvents(instanceID, wi.CurrentExecutionID, stampTimestamps(toAppend, now))
}
