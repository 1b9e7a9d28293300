package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"FeedCurator/internal/domain"
)

type scriptedContent struct {
	err       error
	lastLimit int
}

func (s *scriptedContent) UpsertContent(context.Context, domain.ContentItem) (bool, error) {
	return false, s.err
}

func (s *scriptedContent) ListForUser(_ context.Context, _ string, limit int) ([]domain.ContentItem, error) {
	s.lastLimit = limit
	return []domain.ContentItem{}, nil
}

func TestCurateNowCountsNewItems(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.addFeed("f1", "u1", "https://a.example.com/rss", 1, 3)
	svc := NewCurationService(h.curator, h.repo, testLogger)

	first, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Saved != 3 || first.Updated != 0 || first.Fetched != 3 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Saved != 0 || second.Updated != 3 {
		t.Fatalf("re-curating the same items should update, got %+v", second)
	}

	feed, err := svc.Feed(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 3 {
		t.Fatalf("expected 3 stored items, got %d", len(feed))
	}
}

func TestCurateNowTreatsDuplicatesAsSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.addFeed("f1", "u1", "https://a.example.com/rss", 1, 2)
	content := &scriptedContent{err: errors.New(`pq: duplicate key value violates unique constraint "content_items_pkey"`)}
	svc := NewCurationService(h.curator, content, testLogger)

	summary, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("duplicates must not surface as errors: %v", err)
	}
	if summary.Updated != 2 || summary.Saved != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestCurateNowReportsPersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.addFeed("f1", "u1", "https://a.example.com/rss", 1, 2)
	svc := NewCurationService(h.curator, &scriptedContent{err: errors.New("disk full")}, testLogger)

	_, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected a single aggregated error, got %v", err)
	}
}

func TestCurateNowWithoutSources(t *testing.T) {
	t.Parallel()

	h := newHarness()
	svc := NewCurationService(h.curator, h.repo, testLogger)

	_, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if !errors.Is(err, domain.ErrNoActiveSources) {
		t.Fatalf("expected ErrNoActiveSources, got %v", err)
	}
}

func TestFeedClampsLimit(t *testing.T) {
	t.Parallel()

	content := &scriptedContent{}
	svc := NewCurationService(newHarness().curator, content, testLogger)

	cases := map[int]int{0: DefaultFeedLimit, -5: DefaultFeedLimit, 20: 20, 1000: MaxFeedLimit}
	for in, want := range cases {
		if _, err := svc.Feed(context.Background(), "u1", in); err != nil {
			t.Fatalf("feed: %v", err)
		}
		if content.lastLimit != want {
			t.Fatalf("limit %d: expected %d, got %d", in, want, content.lastLimit)
		}
	}
}

func TestCurateNowReportsQuotaDenial(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.addFeed("f1", "u1", "https://a.example.com/rss", 1, 1)
	h.addSocial("s1", "u1", "first", 1)
	for i := 0; i < 3; i++ {
		_ = h.repo.Increment(context.Background(), "u1", domain.PlatformTwitter, domain.UsageDate(testNow))
	}
	svc := NewCurationService(h.curator, h.repo, testLogger)

	summary, err := svc.CurateNow(context.Background(), Request{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(summary.SocialNote, "rate limit exceeded: ") || !strings.Contains(summary.SocialNote, "3/3") {
		t.Fatalf("unexpected social note: %q", summary.SocialNote)
	}
	if summary.Saved != 1 {
		t.Fatalf("feed items should still be saved, got %+v", summary)
	}
}
