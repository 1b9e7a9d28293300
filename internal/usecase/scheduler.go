package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// Slot is a daily local trigger time for one priority tier.
type Slot struct {
	Hour     int
	Minute   int
	Priority int
}

// DefaultSlots spreads the three tiers across the day.
var DefaultSlots = []Slot{
	{Hour: 9, Minute: 0, Priority: domain.PriorityHigh},
	{Hour: 14, Minute: 0, Priority: domain.PriorityMedium},
	{Hour: 19, Minute: 0, Priority: domain.PriorityLow},
}

// DefaultRetention is how long executed jobs are kept.
const DefaultRetention = 24 * time.Hour

// Job is one scheduled curation of a single tier.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	RunAt      time.Time `json:"run_at"`
	Priority   int       `json:"priority"`
	Executed   bool      `json:"executed"`
	ExecutedAt time.Time `json:"executed_at,omitempty"`
}

// Runner executes one scheduled curation.
type Runner interface {
	CurateNow(ctx context.Context, req Request, progress ProgressFunc) (Summary, error)
}

// SchedulerDeps wires the cron-like driver with the curation use case.
type SchedulerDeps struct {
	Driver    ports.Scheduler
	Runner    Runner
	Sources   ports.SourceRepository
	Logger    *slog.Logger
	Slots     []Slot
	Location  *time.Location
	Retention time.Duration
}

// Scheduler decides when curations run automatically. Jobs live in memory.
type Scheduler struct {
	driver    ports.Scheduler
	runner    Runner
	sources   ports.SourceRepository
	logger    *slog.Logger
	slots     []Slot
	loc       *time.Location
	retention time.Duration

	mu     sync.Mutex
	jobs   []Job
	cancel context.CancelFunc
}

// NewScheduler returns a scheduler with the default slots unless overridden.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		driver:    deps.Driver,
		runner:    deps.Runner,
		sources:   deps.Sources,
		logger:    deps.Logger,
		slots:     deps.Slots,
		loc:       deps.Location,
		retention: deps.Retention,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if len(s.slots) == 0 {
		s.slots = DefaultSlots
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	return s
}

// ScheduleUser (re)computes the user's pending jobs: one per slot, today if the
// slot time is still ahead of now, otherwise tomorrow.
func (s *Scheduler) ScheduleUser(userID string, now time.Time) []Job {
	local := now.In(s.loc)

	created := make([]Job, 0, len(s.slots))
	for _, slot := range s.slots {
		runAt := time.Date(local.Year(), local.Month(), local.Day(), slot.Hour, slot.Minute, 0, 0, s.loc)
		if !runAt.After(local) {
			runAt = runAt.AddDate(0, 0, 1)
		}
		created = append(created, Job{
			ID:       uuid.NewString(),
			UserID:   userID,
			RunAt:    runAt,
			Priority: slot.Priority,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if job.UserID == userID && !job.Executed {
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = append(kept, created...)

	s.logger.Debug("user scheduled", "user_id", userID, "jobs", len(created))
	return created
}

// Jobs returns a snapshot ordered by run time.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]Job(nil), s.jobs...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].RunAt.Before(out[j].RunAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Tick syncs the scheduled users with the source store, then runs every due
// job once. A job is marked executed whether its run succeeds or fails and is
// never retried; the same tier is queued again for the next day. Executed jobs
// older than the retention window are pruned.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.syncUsers(ctx, now)
	due := s.claimDue(now)

	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		logger := s.logger.With("user_id", job.UserID, "job_id", job.ID, "priority", job.Priority)
		logger.Info("scheduled curation started")

		summary, err := s.runner.CurateNow(ctx, Request{UserID: job.UserID, Priority: job.Priority}, nil)
		if err != nil {
			logger.Error("scheduled curation failed", "error", err)
			continue
		}
		logger.Info("scheduled curation finished", "saved", summary.Saved, "failed_sources", summary.Failed)
	}
	return len(due)
}

// syncUsers schedules users that gained active sources since the last tick and
// drops the pending jobs of users that no longer have any.
func (s *Scheduler) syncUsers(ctx context.Context, now time.Time) {
	if s.sources == nil {
		return
	}
	users, err := s.sources.UsersWithActiveSources(ctx)
	if err != nil {
		s.logger.Warn("refresh scheduled users failed", "error", err)
		return
	}
	active := make(map[string]bool, len(users))
	for _, userID := range users {
		active[userID] = true
	}

	s.mu.Lock()
	pending := make(map[string]bool)
	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if !job.Executed {
			if !active[job.UserID] {
				continue
			}
			pending[job.UserID] = true
		}
		kept = append(kept, job)
	}
	s.jobs = kept
	s.mu.Unlock()

	for _, userID := range users {
		if !pending[userID] {
			s.ScheduleUser(userID, now)
		}
	}
}

func (s *Scheduler) claimDue(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	for i := range s.jobs {
		job := &s.jobs[i]
		if job.Executed || job.RunAt.After(now) {
			continue
		}
		job.Executed = true
		job.ExecutedAt = now
		due = append(due, *job)
	}

	for _, job := range due {
		s.jobs = append(s.jobs, Job{
			ID:       uuid.NewString(),
			UserID:   job.UserID,
			RunAt:    nextRun(job.RunAt, now),
			Priority: job.Priority,
		})
	}

	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if job.Executed && now.Sub(job.ExecutedAt) > s.retention {
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = kept

	return due
}

// nextRun advances runAt by whole days until it is after now.
func nextRun(runAt, now time.Time) time.Time {
	next := runAt.AddDate(0, 0, 1)
	for !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start schedules every user with active sources and starts the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil {
		return nil
	}

	if s.sources != nil {
		users, err := s.sources.UsersWithActiveSources(ctx)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		now := time.Now()
		for _, userID := range users {
			s.ScheduleUser(userID, now)
		}
		s.logger.Info("scheduler started", "users", len(users))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	job := func(trigger time.Time) {
		s.Tick(runCtx, trigger)
	}

	if err := s.driver.Start(runCtx, job); err != nil {
		cancel()
		return fmt.Errorf("start driver: %w", err)
	}
	return nil
}

// Stop cancels in-flight runs and tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	return s.driver.Stop(ctx)
}
