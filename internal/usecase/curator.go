package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"FeedCurator/internal/budget"
	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// State is a step of a curation run.
type State string

const (
	StateIdle           State = "idle"
	StateLoadingSources State = "loading_sources"
	StateFeedPhase      State = "feed_phase"
	StateSocialPhase    State = "social_phase"
	StateAggregating    State = "aggregating"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// ProgressFunc receives human-readable status lines as a run advances.
type ProgressFunc func(message string)

// CuratorConfig holds the pacing and volume limits of a run.
type CuratorConfig struct {
	FeedItemLimit  int
	FeedPause      time.Duration
	SocialPause    time.Duration
	RateLimitWait  time.Duration
	MaxRetries     int
	PostsPerSource int
	// RunTimeout bounds a whole run when positive.
	RunTimeout time.Duration
}

// DefaultCuratorConfig returns the production pacing.
func DefaultCuratorConfig() CuratorConfig {
	return CuratorConfig{
		FeedItemLimit:  10,
		FeedPause:      time.Second,
		SocialPause:    60 * time.Second,
		RateLimitWait:  15 * time.Minute,
		MaxRetries:     2,
		PostsPerSource: 1,
	}
}

// CuratorDeps wires all driven adapters into the orchestrator.
type CuratorDeps struct {
	Sources    ports.SourceRepository
	Feeds      ports.FeedFetcher
	Social     ports.SocialFetcher
	Ledger     ports.QuotaLedger
	Normalizer ports.ContentNormalizer
	Sleeper    ports.Sleeper
	Logger     *slog.Logger
	Config     CuratorConfig
}

// Request selects whose sources to curate. Priority restricts the run to one
// tier when set.
type Request struct {
	UserID   string
	Priority int
}

// Result is the outcome of a run. Per-source failures never abort a run and
// only show up in Failures and Progress.
type Result struct {
	Items    []domain.ContentItem
	Progress []string
	Failures []*domain.SourceFetchError
	State    State
	// SocialSkipped is set when the daily quota denied the social phase.
	SocialSkipped *domain.RateLimitExceededError
	Cancelled     bool
}

// Curator fetches, normalizes and aggregates content across a user's sources.
type Curator struct {
	sources    ports.SourceRepository
	feeds      ports.FeedFetcher
	social     ports.SocialFetcher
	ledger     ports.QuotaLedger
	normalizer ports.ContentNormalizer
	sleeper    ports.Sleeper
	logger     *slog.Logger
	cfg        CuratorConfig
}

// NewCurator constructs the orchestration component.
func NewCurator(deps CuratorDeps) *Curator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	defaults := DefaultCuratorConfig()
	if cfg.FeedItemLimit <= 0 {
		cfg.FeedItemLimit = defaults.FeedItemLimit
	}
	if cfg.PostsPerSource <= 0 {
		cfg.PostsPerSource = defaults.PostsPerSource
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Curator{
		sources:    deps.Sources,
		feeds:      deps.Feeds,
		social:     deps.Social,
		ledger:     deps.Ledger,
		normalizer: deps.Normalizer,
		sleeper:    deps.Sleeper,
		logger:     logger,
		cfg:        cfg,
	}
}

// run carries the mutable state of one curation.
type run struct {
	userID   string
	logger   *slog.Logger
	progress ProgressFunc
	result   Result
}

func (r *run) enter(state State) {
	r.result.State = state
	r.logger.Debug("curation state", "state", string(state))
}

func (r *run) emit(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.result.Progress = append(r.result.Progress, msg)
	if r.progress != nil {
		r.progress(msg)
	}
}

func (r *run) sourceFailed(src domain.Source, err error) {
	r.result.Failures = append(r.result.Failures, &domain.SourceFetchError{SourceID: src.ID, Cause: err})
	r.logger.Warn("source fetch failed", "source_id", src.ID, "source", src.Name(), "error", err)
	r.emit("Failed to fetch %s: %v", src.Name(), err)
}

// Curate runs one curation for req.UserID. Only a missing source list or a
// failure to load sources is returned as an error; a cancelled context ends
// the run early with the items collected so far.
func (c *Curator) Curate(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	r := &run{
		userID:   req.UserID,
		logger:   c.logger.With("user_id", req.UserID),
		progress: progress,
		result:   Result{State: StateIdle, Items: []domain.ContentItem{}},
	}

	r.enter(StateLoadingSources)
	r.emit("Loading sources")
	sources, err := c.sources.ActiveSources(ctx, req.UserID)
	if err != nil {
		r.enter(StateFailed)
		r.emit("Curation failed: could not load sources")
		return r.result, fmt.Errorf("load sources for %s: %w", req.UserID, err)
	}

	var feeds, social []domain.Source
	for _, src := range sources {
		if req.Priority > 0 && src.Tier() != req.Priority {
			continue
		}
		if err := src.Validate(); err != nil {
			r.sourceFailed(src, err)
			continue
		}
		switch src.Kind {
		case domain.SourceKindFeed:
			feeds = append(feeds, src)
		case domain.SourceKindSocial:
			social = append(social, src)
		}
	}

	if len(feeds)+len(social) == 0 {
		r.enter(StateFailed)
		r.emit("No active sources to curate")
		return r.result, fmt.Errorf("curate %s: %w", req.UserID, domain.ErrNoActiveSources)
	}
	r.emit("Found %d sources (%d feeds, %d social accounts)", len(feeds)+len(social), len(feeds), len(social))

	var feedItems, socialItems []domain.ContentItem
	if len(feeds) > 0 {
		r.enter(StateFeedPhase)
		feedItems = c.feedPhase(ctx, r, feeds)
	}
	if len(social) > 0 && ctx.Err() == nil {
		r.enter(StateSocialPhase)
		socialItems = c.socialPhase(ctx, r, social)
	}

	r.enter(StateAggregating)
	r.result.Items = append(r.result.Items, feedItems...)
	r.result.Items = append(r.result.Items, socialItems...)

	if err := ctx.Err(); err != nil {
		r.result.Cancelled = true
		r.emit("Curation stopped early (%v): returning %d items collected so far", err, len(r.result.Items))
	}

	r.enter(StateDone)
	r.emit("Curation complete: %d items, %d failed sources", len(r.result.Items), len(r.result.Failures))
	r.logger.Info("curation finished",
		"items", len(r.result.Items),
		"failures", len(r.result.Failures),
		"cancelled", r.result.Cancelled,
	)
	return r.result, nil
}

func (c *Curator) feedPhase(ctx context.Context, r *run, feeds []domain.Source) []domain.ContentItem {
	var items []domain.ContentItem
	for i, src := range feeds {
		if ctx.Err() != nil {
			break
		}
		r.emit("Fetching feed %s (%d/%d)", src.Name(), i+1, len(feeds))

		feed, err := c.feeds.FetchFeed(ctx, src.FeedURL)
		switch {
		case err != nil && ctx.Err() != nil:
			return items
		case err != nil:
			r.sourceFailed(src, err)
		default:
			entries := feed.Items
			if len(entries) > c.cfg.FeedItemLimit {
				entries = entries[:c.cfg.FeedItemLimit]
			}
			for _, entry := range entries {
				items = append(items, c.normalizer.FeedItem(entry, src))
			}
			r.emit("Fetched %d items from %s", len(entries), src.Name())
		}

		if i < len(feeds)-1 {
			if err := c.sleeper.Sleep(ctx, c.cfg.FeedPause); err != nil {
				break
			}
		}
	}
	r.emit("Feed phase complete: %d items", len(items))
	return items
}

func (c *Curator) socialPhase(ctx context.Context, r *run, social []domain.Source) []domain.ContentItem {
	decision, err := c.ledger.CanCall(ctx, r.userID, domain.PlatformTwitter)
	if err != nil {
		r.logger.Error("quota check failed", "error", err)
		r.emit("Skipping social accounts: quota check failed")
		return nil
	}
	if !decision.Allowed {
		r.result.SocialSkipped = &domain.RateLimitExceededError{Reason: decision.Reason}
		r.logger.Info("social phase skipped", "reason", decision.Reason)
		r.emit("Skipping social accounts: %s", decision.Reason)
		return nil
	}

	sort.SliceStable(social, func(i, j int) bool { return social[i].Tier() < social[j].Tier() })

	remaining, err := c.ledger.Remaining(ctx, r.userID, domain.PlatformTwitter)
	if err != nil {
		r.logger.Error("quota lookup failed", "error", err)
		r.emit("Skipping social accounts: quota lookup failed")
		return nil
	}

	allocation := budget.Allocate(social, remaining)
	var targets []domain.Source
	for _, src := range social {
		if allocation[src.ID] > 0 {
			targets = append(targets, src)
			continue
		}
		r.emit("Skipping %s: no calls left in today's budget", src.Name())
	}
	r.emit("Social budget: %d calls remaining, %d accounts scheduled", remaining, len(targets))

	var items []domain.ContentItem
	for i, src := range targets {
		if ctx.Err() != nil {
			break
		}
		r.emit("Fetching %s (%d/%d)", src.Name(), i+1, len(targets))

		maxPosts := min(allocation[src.ID], c.cfg.PostsPerSource)
		posts, err := c.fetchWithRetry(ctx, r, src, maxPosts)
		switch {
		case err != nil && ctx.Err() != nil:
			return items
		case err != nil:
			r.sourceFailed(src, err)
		default:
			c.ledger.RecordCall(ctx, r.userID, domain.PlatformTwitter)
			for _, post := range posts {
				items = append(items, c.normalizer.SocialPost(post, src.ID, src.Handle))
			}
			r.emit("Fetched %d posts from %s", len(posts), src.Name())
		}

		if i < len(targets)-1 {
			r.emit("Waiting %s before the next account", c.cfg.SocialPause)
			if err := c.sleeper.Sleep(ctx, c.cfg.SocialPause); err != nil {
				break
			}
		}
	}
	r.emit("Social phase complete: %d items", len(items))
	return items
}

// fetchWithRetry retries only upstream rate limiting, waiting RateLimitWait before each retry.
func (c *Curator) fetchWithRetry(ctx context.Context, r *run, src domain.Source, maxPosts int) ([]domain.SocialPost, error) {
	for attempt := 0; ; attempt++ {
		posts, err := c.social.FetchRecentPosts(ctx, src.Handle, maxPosts)
		if err == nil {
			return posts, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) || attempt >= c.cfg.MaxRetries {
			return nil, err
		}

		r.logger.Info("rate limited, backing off", "source_id", src.ID, "attempt", attempt+1, "wait", c.cfg.RateLimitWait)
		r.emit("Rate limited on %s, waiting %s before retry %d/%d", src.Name(), c.cfg.RateLimitWait, attempt+1, c.cfg.MaxRetries)
		if err := c.sleeper.Sleep(ctx, c.cfg.RateLimitWait); err != nil {
			return nil, err
		}
	}
}
