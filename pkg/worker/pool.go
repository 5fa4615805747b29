// Package worker implements the Activity Worker: the pool that claims
// leased ActivityScheduled records from the Event-History Store, invokes
// the matching function out of the Activity Catalog, and appends the
// Completed or Failed event the Orchestration Runtime is waiting to
// replay against.
//
// Activities execute at least once. A claim is a time-bounded lease, not
// a commit — a worker that dies mid-invocation simply lets the lease
// expire, and the Dispatcher's reaper makes the same record claimable
// again for another worker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/affandar/toygres/pkg/activities"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/log"
	"github.com/affandar/toygres/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const defaultLeaseTimeout = 5 * time.Minute

// Config configures a Pool.
type Config struct {
	OwnerID      string
	Size         int           // max concurrently in-flight activities, default 20
	PollEvery    time.Duration // default 1s
	LeaseTimeout time.Duration // default 5m
}

// Pool is a fixed-capacity worker pool polling for claimable activities.
type Pool struct {
	store    history.Store
	registry *activities.Registry
	cfg      Config
	sem      *semaphore.Weighted
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewPool builds a Pool over store, dispatching claimed work to registry.
func NewPool(store history.Store, registry *activities.Registry, cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 20
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Second
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	return &Pool{
		store:    store,
		registry: registry,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Size)),
		logger:   log.WithComponent("worker"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *Pool) Start() {
	go p.run()
}

// Stop ends the polling loop. In-flight invocations are allowed to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
}

func (p *Pool) run() {
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	p.logger.Info().Int("size", p.cfg.Size).Msg("activity worker pool started")
	for {
		select {
		case <-ticker.C:
			p.poll()
		case <-p.stopCh:
			p.logger.Info().Msg("activity worker pool stopped")
			return
		}
	}
}

func (p *Pool) poll() {
	available := p.sem.TryAcquire(1)
	if !available {
		// Pool is fully saturated; back off until next tick.
		return
	}
	p.sem.Release(1)

	items, err := p.store.ListClaimableActivities(p.cfg.Size)
	if err != nil {
		p.logger.Error().Err(err).Msg("list claimable activities failed")
		return
	}

	for _, item := range items {
		if !p.sem.TryAcquire(1) {
			break
		}
		claimed, err := p.store.ClaimActivity(item, p.cfg.OwnerID, p.cfg.LeaseTimeout)
		if err != nil {
			p.logger.Error().Err(err).Str("instance_id", item.InstanceID).Str("activity", item.Name).Msg("claim activity failed")
			p.sem.Release(1)
			continue
		}
		if !claimed {
			p.sem.Release(1)
			continue
		}

		go func(item history.ActivityWorkItem) {
			defer p.sem.Release(1)
			p.invoke(item)
		}(item)
	}
}

func (p *Pool) invoke(item history.ActivityWorkItem) {
	logger := log.WithActivity(item.Name, fmt.Sprintf("%s/%d/%d", item.InstanceID, item.ExecutionID, item.Seq))
	metrics.ActivitiesScheduledTotal.WithLabelValues(item.Name).Inc()
	timer := metrics.NewTimer()

	fn, ok := p.registry.Lookup(item.Name)
	if !ok {
		p.fail(item, fmt.Errorf("fatal: no activity registered under name %q", item.Name))
		timer.ObserveDurationVec(metrics.ActivityDuration, item.Name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LeaseTimeout)
	defer cancel()

	output, err := fn(ctx, item.Input)
	if err != nil {
		logger.Warn().Err(err).Msg("activity failed")
		p.fail(item, err)
		timer.ObserveDurationVec(metrics.ActivityDuration, item.Name)
		return
	}

	logger.Debug().Msg("activity completed")
	p.complete(item, output)
	timer.ObserveDurationVec(metrics.ActivityDuration, item.Name)
}

func (p *Pool) complete(item history.ActivityWorkItem, output []byte) {
	event := history.Event{
		Seq:    item.Seq,
		Kind:   history.KindActivityCompleted,
		Output: output,
	}
	if err := p.store.AppendEvents(item.InstanceID, item.ExecutionID, []history.Event{event}); err != nil {
		p.logger.Error().Err(err).Str("instance_id", item.InstanceID).Msg("append activity completion failed")
		return
	}
	metrics.ActivitiesCompletedTotal.WithLabelValues(item.Name, "completed").Inc()
}

func (p *Pool) fail(item history.ActivityWorkItem, cause error) {
	event := history.Event{
		Seq:   item.Seq,
		Kind:  history.KindActivityFailed,
		Error: cause.Error(),
	}
	if err := p.store.AppendEvents(item.InstanceID, item.ExecutionID, []history.Event{event}); err != nil {
		p.logger.Error().Err(err).Str("instance_id", item.InstanceID).Msg("append activity failure failed")
		return
	}
	metrics.ActivitiesCompletedTotal.WithLabelValues(item.Name, "failed").Inc()
}
