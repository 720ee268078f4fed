// Package scheduler registers cron triggers per feed and serializes every
// pass — scheduled, manually submitted, or admin-triggered — through a
// single global worker, following the same context-cancellation and
// signal-driven shutdown shape as the teacher's worker loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"vodcast/internal/coordinator"
	"vodcast/internal/metrics"
	"vodcast/internal/store"
)

// pendingTask tracks a feed ID's single outstanding dedup slot: at most
// one task per feed is ever queued for dispatch at a time, regardless of
// how many triggers arrive while it waits.
type pendingTask struct {
	done chan struct{}
}

// FeedScheduler owns the cron engine, the capacity-1 semaphore, and the
// per-feed task dedup registry. One instance is process-wide.
type FeedScheduler struct {
	coordinator *coordinator.Coordinator
	store       store.Store
	cron        *cron.Cron
	sem         chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingTask

	log     *slog.Logger
	metrics *metrics.Metrics
}

// SetMetrics attaches a metrics sink; optional, nil disables recording.
func (sch *FeedScheduler) SetMetrics(m *metrics.Metrics) { sch.metrics = m }

// New constructs a FeedScheduler. Nothing runs until Start is called.
func New(c *coordinator.Coordinator, s store.Store, log *slog.Logger) *FeedScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &FeedScheduler{
		coordinator: c,
		store:       s,
		cron:        cron.New(),
		sem:         make(chan struct{}, 1),
		pending:     make(map[string]*pendingTask),
		log:         log,
	}
}

// Start lists the enabled feeds in the store, registers a cron trigger for
// every one that is not manual, and starts the cron engine.
// Feeds whose schedule is the literal "manual" are never registered; they
// only ever run via Submit.
func (sch *FeedScheduler) Start(ctx context.Context) error {
	feeds, err := sch.store.ListEnabledFeeds(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list enabled feeds: %w", err)
	}

	for _, feed := range feeds {
		if feed.IsManual() {
			continue
		}
		feedID := feed.ID
		if _, err := sch.cron.AddFunc(feed.Schedule, func() { sch.Submit(feedID) }); err != nil {
			return fmt.Errorf("scheduler: register feed %s schedule %q: %w", feedID, feed.Schedule, err)
		}
	}

	sch.cron.Start()
	return nil
}

// Stop drains the cron engine, waiting for any in-flight invocation of
// AddFunc's callback to return (not for the background task it may have
// just dispatched, which runs independently of the cron trigger).
func (sch *FeedScheduler) Stop(ctx context.Context) {
	stopCtx := sch.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// Submit schedules a background pass for feedID, deduplicated: if a task
// for this feed is already pending (queued but hasn't yet acquired the
// semaphore), this call is a no-op. The dedup slot clears the instant the
// task acquires the semaphore, not when the pass finishes, so a trigger
// arriving mid-run schedules a fresh follow-up that runs right after.
func (sch *FeedScheduler) Submit(feedID string) {
	sch.mu.Lock()
	if _, busy := sch.pending[feedID]; busy {
		sch.mu.Unlock()
		sch.log.Debug("pass already pending, skipping", "feed_id", feedID)
		return
	}
	task := &pendingTask{done: make(chan struct{})}
	sch.pending[feedID] = task
	sch.mu.Unlock()

	go sch.run(feedID, task)
}

// SubmitAndWait is Submit's synchronous counterpart: it returns only once
// the pass it triggered (or the one already pending for this feed) has
// completed.
func (sch *FeedScheduler) SubmitAndWait(ctx context.Context, feedID string) {
	sch.mu.Lock()
	task, busy := sch.pending[feedID]
	if !busy {
		task = &pendingTask{done: make(chan struct{})}
		sch.pending[feedID] = task
		sch.mu.Unlock()
		go sch.run(feedID, task)
	} else {
		sch.mu.Unlock()
	}

	select {
	case <-task.done:
	case <-ctx.Done():
	}
}

func (sch *FeedScheduler) run(feedID string, task *pendingTask) {
	defer close(task.done)

	sch.sem <- struct{}{}
	sch.mu.Lock()
	if sch.pending[feedID] == task {
		delete(sch.pending, feedID)
	}
	sch.mu.Unlock()
	if sch.metrics != nil {
		sch.metrics.PassStarted()
	}
	defer func() {
		<-sch.sem
		if sch.metrics != nil {
			sch.metrics.PassFinished()
		}
	}()

	ctx := context.Background()
	if err := sch.coordinator.ProcessFeed(ctx, feedID); err != nil {
		sch.log.Error("feed pass failed", "feed_id", feedID, "error", err)
	}
}
