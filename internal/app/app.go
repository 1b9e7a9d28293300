package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"FeedCurator/internal/api"
	"FeedCurator/internal/config"
	"FeedCurator/internal/infrastructure/feedclient"
	"FeedCurator/internal/infrastructure/scheduler"
	"FeedCurator/internal/infrastructure/storage"
	"FeedCurator/internal/infrastructure/twitter"
	"FeedCurator/internal/logging"
	"FeedCurator/internal/normalize"
	"FeedCurator/internal/ports"
	"FeedCurator/internal/ratelimit"
	"FeedCurator/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type repository interface {
	ports.SourceRepository
	ports.ContentRepository
	ports.UsageStore
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	repo      repository
	service   *usecase.CurationService
	scheduler *usecase.Scheduler
	server    *http.Server
	closers   []func() error
}

// New opens the configured storage and builds every component. SQL schemas
// are migrated before New returns.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.repo = repo

	usage, err := a.openUsageStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	ledger := ratelimit.NewLedger(usage, baseLogger.With("component", "ledger"),
		ratelimit.WithLimits(cfg.Ledger.DailyLimits))

	if cfg.Twitter.BearerToken == "" {
		baseLogger.Warn("twitter bearer token is not set; social sources will fail")
	}

	curator := usecase.NewCurator(usecase.CuratorDeps{
		Sources: repo,
		Feeds: feedclient.New(
			feedclient.WithTimeout(cfg.Feeds.Timeout),
			feedclient.WithUserAgent(cfg.Feeds.UserAgent),
		),
		Social:     twitter.NewClient(cfg.Twitter.BearerToken, twitter.WithBaseURL(cfg.Twitter.BaseURL)),
		Ledger:     ledger,
		Normalizer: normalize.New(),
		Sleeper:    scheduler.TimerSleeper{},
		Logger:     baseLogger.With("component", "curator"),
		Config: usecase.CuratorConfig{
			FeedItemLimit:  cfg.Curation.FeedItemLimit,
			FeedPause:      cfg.Curation.FeedPause,
			SocialPause:    cfg.Curation.SocialPause,
			RateLimitWait:  cfg.Curation.RateLimitWait,
			MaxRetries:     cfg.Curation.MaxRetries,
			PostsPerSource: cfg.Curation.PostsPerSource,
			RunTimeout:     cfg.Curation.RunTimeout,
		},
	})
	a.service = usecase.NewCurationService(curator, repo, baseLogger.With("component", "service"))

	slots, err := schedulerSlots(cfg.Scheduler.Slots)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:    scheduler.NewTickScheduler(cfg.Scheduler.TickInterval),
		Runner:    a.service,
		Sources:   repo,
		Logger:    baseLogger.With("component", "scheduler"),
		Slots:     slots,
		Location:  cfg.Scheduler.Location(),
		Retention: cfg.Scheduler.Retention,
	})

	handler := api.NewHandler(a.service, baseLogger.With("component", "api"))
	a.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *Application) openRepository(ctx context.Context) (repository, error) {
	switch a.cfg.Database.Driver {
	case "", config.DriverMemory:
		return storage.NewMemoryRepository(), nil
	case config.DriverPostgres, config.DriverSQLite:
		repo, err := storage.OpenSQL(a.cfg.Database.Driver, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
}

func (a *Application) openUsageStore(ctx context.Context) (ports.UsageStore, error) {
	if a.cfg.Ledger.Backend != config.LedgerBackendRedis {
		return a.repo, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Redis.Addr, err)
	}
	return storage.NewRedisUsageStore(client, ""), nil
}

func schedulerSlots(cfgSlots []config.SlotConfig) ([]usecase.Slot, error) {
	slots := make([]usecase.Slot, 0, len(cfgSlots))
	for _, s := range cfgSlots {
		hour, minute, err := s.Clock()
		if err != nil {
			return nil, err
		}
		slots = append(slots, usecase.Slot{Hour: hour, Minute: minute, Priority: s.Priority})
	}
	return slots, nil
}

// Service exposes the curation use cases to the CLI.
func (a *Application) Service() *usecase.CurationService {
	return a.service
}

// Sources exposes source registration to the CLI.
func (a *Application) Sources() ports.SourceRepository {
	return a.repo
}

// Run starts the scheduler and HTTP API and blocks until ctx is cancelled or
// the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop failed", "error", err)
	}
	return runErr
}

// Close releases storage connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
