package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/storage"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []Request
	err   error
}

func (r *recordingRunner) CurateNow(_ context.Context, req Request, _ ProgressFunc) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return Summary{Saved: 1}, r.err
}

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func TestScheduleUserPlacesSlots(t *testing.T) {
	t.Parallel()

	s := NewScheduler(SchedulerDeps{Runner: &recordingRunner{}, Logger: testLogger})
	jobs := s.ScheduleUser("u1", at(10, 0))

	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	want := map[int]time.Time{
		domain.PriorityHigh:   time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		domain.PriorityMedium: at(14, 0),
		domain.PriorityLow:    at(19, 0),
	}
	for _, job := range jobs {
		if !job.RunAt.Equal(want[job.Priority]) {
			t.Fatalf("tier %d scheduled at %v, want %v", job.Priority, job.RunAt, want[job.Priority])
		}
		if job.ID == "" || job.UserID != "u1" || job.Executed {
			t.Fatalf("unexpected job: %+v", job)
		}
	}

	s.ScheduleUser("u1", at(10, 0))
	if got := len(s.Jobs()); got != 3 {
		t.Fatalf("rescheduling should replace pending jobs, got %d", got)
	}
}

func TestScheduleUserUsesLocalTime(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+2", 2*60*60)
	s := NewScheduler(SchedulerDeps{Runner: &recordingRunner{}, Logger: testLogger, Location: zone})

	jobs := s.ScheduleUser("u1", at(6, 30))
	for _, job := range jobs {
		if job.Priority == domain.PriorityHigh && !job.RunAt.Equal(at(7, 0)) {
			t.Fatalf("09:00 local is 07:00 UTC, got %v", job.RunAt.UTC())
		}
	}
}

func TestTickRunsDueJobsOnce(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{err: errors.New("upstream down")}
	s := NewScheduler(SchedulerDeps{Runner: runner, Logger: testLogger})
	s.ScheduleUser("u1", at(8, 0))

	if n := s.Tick(context.Background(), at(8, 55)); n != 0 {
		t.Fatalf("nothing is due yet, ran %d", n)
	}
	if n := s.Tick(context.Background(), at(9, 2)); n != 1 {
		t.Fatalf("expected the 09:00 job to run, ran %d", n)
	}
	if n := s.Tick(context.Background(), at(9, 7)); n != 0 {
		t.Fatalf("a failed job must not be retried, ran %d", n)
	}

	if len(runner.calls) != 1 || runner.calls[0].Priority != domain.PriorityHigh || runner.calls[0].UserID != "u1" {
		t.Fatalf("unexpected runner calls: %+v", runner.calls)
	}

	var executed, requeued int
	for _, job := range s.Jobs() {
		if job.Executed {
			executed++
		}
		if !job.Executed && job.Priority == domain.PriorityHigh {
			requeued++
			if !job.RunAt.Equal(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)) {
				t.Fatalf("tier 1 should be requeued for tomorrow, got %v", job.RunAt)
			}
		}
	}
	if executed != 1 || requeued != 1 {
		t.Fatalf("expected 1 executed and 1 requeued job, got %d/%d", executed, requeued)
	}
}

func TestTickPrunesExecutedJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(SchedulerDeps{Runner: &recordingRunner{}, Logger: testLogger})
	s.ScheduleUser("u1", at(8, 0))
	s.Tick(context.Background(), at(20, 0))

	executed := 0
	for _, job := range s.Jobs() {
		if job.Executed {
			executed++
		}
	}
	if executed != 3 {
		t.Fatalf("expected all 3 slots executed, got %d", executed)
	}

	s.Tick(context.Background(), at(20, 0).Add(25*time.Hour))
	for _, job := range s.Jobs() {
		if job.Executed && job.ExecutedAt.Equal(at(20, 0)) {
			t.Fatalf("executed jobs older than the retention window should be pruned: %+v", job)
		}
	}
}

func TestSchedulerStartSchedulesActiveUsers(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	_ = repo.SaveSource(ctx, domain.Source{ID: "a", UserID: "u1", Kind: domain.SourceKindSocial, Handle: "a", Priority: 1, Active: true})
	_ = repo.SaveSource(ctx, domain.Source{ID: "b", UserID: "u2", Kind: domain.SourceKindSocial, Handle: "b", Priority: 1, Active: true})
	_ = repo.SaveSource(ctx, domain.Source{ID: "c", UserID: "u3", Kind: domain.SourceKindSocial, Handle: "c", Priority: 1, Active: false})

	driver := &manualDriver{}
	runner := &recordingRunner{}
	s := NewScheduler(SchedulerDeps{Driver: driver, Runner: runner, Sources: repo, Logger: testLogger})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(s.Jobs()); got != 6 {
		t.Fatalf("expected 3 jobs for each of 2 users, got %d", got)
	}
	if driver.job == nil {
		t.Fatal("driver should receive the tick job")
	}

	driver.job(time.Now().Add(48 * time.Hour))
	if len(runner.calls) != 6 {
		t.Fatalf("a late tick runs every due job, got %d", len(runner.calls))
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !driver.stopped {
		t.Fatal("driver should be stopped")
	}
}

func TestTickFollowsSourceChanges(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	u1 := domain.Source{ID: "a", UserID: "u1", Kind: domain.SourceKindSocial, Handle: "a", Priority: 1, Active: true}
	if err := repo.SaveSource(ctx, u1); err != nil {
		t.Fatalf("save: %v", err)
	}

	s := NewScheduler(SchedulerDeps{Runner: &recordingRunner{}, Sources: repo, Logger: testLogger})

	s.Tick(ctx, at(8, 0))
	if got := len(s.Jobs()); got != 3 {
		t.Fatalf("expected u1 to be scheduled on the first tick, got %d jobs", got)
	}

	if err := repo.SaveSource(ctx, domain.Source{ID: "b", UserID: "u2", Kind: domain.SourceKindFeed, FeedURL: "http://x/rss", Priority: 2, Active: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Tick(ctx, at(8, 5))
	perUser := map[string]int{}
	for _, job := range s.Jobs() {
		perUser[job.UserID]++
	}
	if perUser["u1"] != 3 || perUser["u2"] != 3 {
		t.Fatalf("a user added after start should be scheduled once, got %v", perUser)
	}

	u1.Active = false
	if err := repo.SaveSource(ctx, u1); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Tick(ctx, at(8, 10))
	for _, job := range s.Jobs() {
		if job.UserID == "u1" && !job.Executed {
			t.Fatalf("pending jobs of a user without active sources should be dropped: %+v", job)
		}
	}
}
