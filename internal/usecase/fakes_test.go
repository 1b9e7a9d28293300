package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/storage"
	"FeedCurator/internal/normalize"
	"FeedCurator/internal/ratelimit"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testNow    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fakeFeeds struct {
	feeds map[string]domain.Feed
	errs  map[string]error
	calls []string
}

func (f *fakeFeeds) FetchFeed(_ context.Context, url string) (domain.Feed, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return domain.Feed{}, err
	}
	return f.feeds[url], nil
}

type socialCall struct {
	handle   string
	maxCount int
}

type fakeSocial struct {
	posts map[string][]domain.SocialPost
	// errs are returned in order for a handle before posts are served.
	errs  map[string][]error
	calls []socialCall
}

func (f *fakeSocial) FetchRecentPosts(_ context.Context, handle string, maxCount int) ([]domain.SocialPost, error) {
	f.calls = append(f.calls, socialCall{handle: handle, maxCount: maxCount})
	if queue := f.errs[handle]; len(queue) > 0 {
		f.errs[handle] = queue[1:]
		return nil, queue[0]
	}
	posts := f.posts[handle]
	if len(posts) > maxCount {
		posts = posts[:maxCount]
	}
	return posts, nil
}

type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	// cancelAfter cancels the run once this many sleeps happened when set.
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	s.mu.Unlock()

	if s.cancel != nil && n >= s.cancelAfter {
		s.cancel()
	}
	return ctx.Err()
}

func (s *fakeSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.sleeps {
		if got == d {
			n++
		}
	}
	return n
}

type harness struct {
	repo    *storage.MemoryRepository
	feeds   *fakeFeeds
	social  *fakeSocial
	sleeper *fakeSleeper
	ledger  *ratelimit.Ledger
	curator *Curator
}

func newHarness() *harness {
	h := &harness{
		repo:    storage.NewMemoryRepository(),
		feeds:   &fakeFeeds{feeds: map[string]domain.Feed{}, errs: map[string]error{}},
		social:  &fakeSocial{posts: map[string][]domain.SocialPost{}, errs: map[string][]error{}},
		sleeper: &fakeSleeper{},
	}
	clock := func() time.Time { return testNow }
	h.ledger = ratelimit.NewLedger(h.repo, testLogger, ratelimit.WithClock(clock))
	h.curator = NewCurator(CuratorDeps{
		Sources:    h.repo,
		Feeds:      h.feeds,
		Social:     h.social,
		Ledger:     h.ledger,
		Normalizer: normalize.New(normalize.WithClock(clock), normalize.WithJitter(func() float64 { return 0 })),
		Sleeper:    h.sleeper,
		Logger:     testLogger,
		Config:     DefaultCuratorConfig(),
	})
	return h
}

func (h *harness) addFeed(id, userID, url string, priority int, items int) {
	_ = h.repo.SaveSource(context.Background(), domain.Source{
		ID: id, UserID: userID, Kind: domain.SourceKindFeed, Handle: id, FeedURL: url, Priority: priority, Active: true,
	})
	feed := domain.Feed{Title: id}
	for i := 0; i < items; i++ {
		feed.Items = append(feed.Items, domain.FeedItem{
			Title:       id + " story",
			GUID:        id + "-" + string(rune('a'+i)),
			Link:        url + "/" + string(rune('a'+i)),
			PublishedAt: "2024-05-01T09:00:00Z",
		})
	}
	h.feeds.feeds[url] = feed
}

func (h *harness) addSocial(id, userID, handle string, priority int) {
	_ = h.repo.SaveSource(context.Background(), domain.Source{
		ID: id, UserID: userID, Kind: domain.SourceKindSocial, Handle: handle, Priority: priority, Active: true,
	})
	h.social.posts[handle] = []domain.SocialPost{
		{ID: handle + "-1", Text: "post by " + handle, CreatedAt: "2024-05-01T08:00:00Z"},
		{ID: handle + "-2", Text: "older post by " + handle, CreatedAt: "2024-05-01T07:00:00Z"},
	}
}

func (h *harness) usage(userID string) int {
	used, _ := h.repo.Usage(context.Background(), userID, domain.PlatformTwitter, domain.UsageDate(testNow))
	return used
}
