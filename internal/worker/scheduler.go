// Package worker runs the background loops: the scheduler that fires
// newsletters whose scheduled time has arrived.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/distlock"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/service/dispatch"
)

const (
	// DefaultPollInterval is how often the scheduler checks for due sends.
	DefaultPollInterval = 30 * time.Second

	// claimTTL bounds how long one scheduler instance can hold the claim
	// lock; a crashed instance frees the schedule within this window.
	claimTTL = 2 * time.Minute

	// dueBatchLimit caps how many newsletters one poll picks up.
	dueBatchLimit = 50
)

// ScheduleStore lists newsletters whose scheduled_at has arrived.
type ScheduleStore interface {
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Newsletter, error)
}

// Dispatcher is the slice of the dispatch pipeline the scheduler drives.
// Scheduled sends never propagate errors; failures live in logs only.
type Dispatcher interface {
	DispatchScheduled(ctx context.Context, req dispatch.Request) *domain.DispatchResult
}

// Scheduler polls for due newsletters and hands them to the dispatcher.
// A distributed lock around each poll keeps multiple instances from
// double-sending the same newsletter.
type Scheduler struct {
	store      ScheduleStore
	dispatcher Dispatcher
	newLock    func() distlock.Lock

	workerID     string
	pollInterval time.Duration
	now          func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. lockFactory builds the claim lock; it is
// called once per poll so each attempt gets a fresh owner token.
func NewScheduler(store ScheduleStore, dispatcher Dispatcher, lockFactory func() distlock.Lock, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	host, _ := os.Hostname()
	return &Scheduler{
		store:        store,
		dispatcher:   dispatcher,
		newLock:      lockFactory,
		workerID:     fmt.Sprintf("scheduler-%s-%d", host, time.Now().UnixNano()%10000),
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// Start begins the polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	logger.Info("scheduler starting", "worker_id", s.workerID, "poll_interval", s.pollInterval.String())

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop halts polling and waits for an in-flight poll to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped", "worker_id", s.workerID)
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll(s.ctx)
		}
	}
}

// poll claims the schedule and dispatches everything due. Every per-
// newsletter failure is swallowed into logs so one bad send never stalls
// the rest of the schedule.
func (s *Scheduler) poll(ctx context.Context) {
	lock := s.newLock()
	got, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("scheduler lock acquire failed", "error", err.Error())
		return
	}
	if !got {
		return // another instance holds the schedule
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("scheduler lock release failed", "error", err.Error())
		}
	}()

	due, err := s.store.DueScheduled(ctx, s.now(), dueBatchLimit)
	if err != nil {
		logger.Error("list due newsletters failed", "error", err.Error())
		return
	}

	for _, n := range due {
		if ctx.Err() != nil {
			return
		}
		result := s.dispatcher.DispatchScheduled(ctx, dispatch.Request{
			AccountID:    n.AccountID,
			NewsletterID: n.ID,
		})
		if result != nil {
			logger.Info("scheduled newsletter dispatched",
				"newsletter_id", n.ID,
				"sent", result.SentCount,
				"failed", len(result.FailedAddresses))
		}
	}
}
