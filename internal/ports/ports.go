package ports

import (
	"context"
	"time"

	"FeedCurator/internal/domain"
)

// SourceRepository reads user subscriptions. Curation never writes sources.
type SourceRepository interface {
	ActiveSources(ctx context.Context, userID string) ([]domain.Source, error)
	UsersWithActiveSources(ctx context.Context) ([]string, error)
	SaveSource(ctx context.Context, source domain.Source) error
}

// ContentRepository persists curated items keyed by (source, platform id).
type ContentRepository interface {
	// UpsertContent reports whether the item was newly inserted.
	UpsertContent(ctx context.Context, item domain.ContentItem) (bool, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error)
}

// UsageStore keeps per (user, platform, day) call counters.
type UsageStore interface {
	Usage(ctx context.Context, userID, platform, date string) (int, error)
	Increment(ctx context.Context, userID, platform, date string) error
}

// FeedFetcher downloads and parses a feed URL.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (domain.Feed, error)
}

// SocialFetcher pulls the latest posts of a handle from a social platform.
type SocialFetcher interface {
	FetchRecentPosts(ctx context.Context, handle string, maxCount int) ([]domain.SocialPost, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// QuotaLedger gates calls to rate-limited platforms.
type QuotaLedger interface {
	CanCall(ctx context.Context, userID, platform string) (domain.QuotaDecision, error)
	Remaining(ctx context.Context, userID, platform string) (int, error)
	RecordCall(ctx context.Context, userID, platform string)
}

// ContentNormalizer maps fetched payloads into content items.
type ContentNormalizer interface {
	SocialPost(post domain.SocialPost, sourceID, handle string) domain.ContentItem
	FeedItem(entry domain.FeedItem, source domain.Source) domain.ContentItem
}
