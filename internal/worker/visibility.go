package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/filter"
	"github.com/grus-gras/internal/metrics"
)

// MatchLister reads the current matches
type MatchLister interface {
	List(ctx context.Context) ([]domain.Match, error)
}

// Notifier pushes a refresh hint to connected clients
type Notifier interface {
	BroadcastMatchesChanged(event domain.MatchEvent)
}

// VisibilityWorker periodically finds matches that dropped out of the
// visible window since the previous run and tells clients to reload. Nothing
// is deleted; old matches only stop being listed.
type VisibilityWorker struct {
	matches   MatchLister
	notifier  Notifier
	config    *config.WorkerConfig
	location  *time.Location
	metrics   *metrics.Metrics
	logger    *slog.Logger
	scheduler gocron.Scheduler
	now       func() time.Time

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// NewVisibilityWorker creates a new visibility worker
func NewVisibilityWorker(
	matches MatchLister,
	notifier Notifier,
	cfg *config.WorkerConfig,
	loc *time.Location,
	m *metrics.Metrics,
	logger *slog.Logger,
) *VisibilityWorker {
	return &VisibilityWorker{
		matches:  matches,
		notifier: notifier,
		config:   cfg,
		location: loc,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the check every configured interval
func (w *VisibilityWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(w.location))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(w.config.Interval),
		gocron.NewTask(func() { w.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("match-visibility"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("scheduling visibility job: %w", err)
	}

	w.lastRun = w.now()
	w.scheduler = sched
	w.running = true
	sched.Start()

	w.logger.Info("visibility worker started", "interval", w.config.Interval)
	return nil
}

// Stop shuts the scheduler down and waits for a running check to finish
func (w *VisibilityWorker) Stop() error {
	w.mu.Lock()
	sched := w.scheduler
	w.scheduler = nil
	w.running = false
	w.mu.Unlock()

	if sched == nil {
		return nil
	}
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	w.logger.Info("visibility worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently scheduled
func (w *VisibilityWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single check and returns the matches that aged out
func (w *VisibilityWorker) RunOnce(ctx context.Context) []domain.Match {
	now := w.now().In(w.location)

	w.mu.Lock()
	prev := w.lastRun
	w.mu.Unlock()

	matches, err := w.matches.List(ctx)
	if err != nil {
		w.logger.Error("failed to list matches for visibility check", "error", err)
		return nil
	}

	w.mu.Lock()
	w.lastRun = now
	w.mu.Unlock()

	if prev.IsZero() {
		return nil
	}

	aged := AgedOut(matches, prev.In(w.location), now)
	if len(aged) == 0 {
		return nil
	}

	w.metrics.RecordAgedOut(len(aged))
	for _, m := range aged {
		event := domain.NewMatchEvent(domain.MatchEventAgedOut, m, "", "")
		event.Timestamp = now
		w.notifier.BroadcastMatchesChanged(event)
	}
	w.logger.Info("matches left the visible window", "count", len(aged))
	return aged
}

// AgedOut returns the matches that were visible at prev but no longer are at
// now. Times are read in now's location.
func AgedOut(matches []domain.Match, prev, now time.Time) []domain.Match {
	if !now.After(prev) {
		return nil
	}
	prevCutoff := prev.Add(-filter.GracePeriod)
	nowCutoff := now.Add(-filter.GracePeriod)

	var aged []domain.Match
	for _, m := range matches {
		start, ok := filter.StartTime(m, now.Location())
		if !ok {
			continue
		}
		if !start.Before(prevCutoff) && start.Before(nowCutoff) {
			aged = append(aged, m)
		}
	}
	return aged
}
