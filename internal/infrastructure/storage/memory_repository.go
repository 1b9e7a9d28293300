package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// MemoryRepository keeps sources, content and usage in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
	content map[string]domain.ContentItem
	usage   map[string]int
}

var (
	_ ports.SourceRepository  = (*MemoryRepository)(nil)
	_ ports.ContentRepository = (*MemoryRepository)(nil)
	_ ports.UsageStore        = (*MemoryRepository)(nil)
)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sources: make(map[string]domain.Source),
		content: make(map[string]domain.ContentItem),
		usage:   make(map[string]int),
	}
}

// SaveSource inserts or replaces a source by ID.
func (r *MemoryRepository) SaveSource(_ context.Context, source domain.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if source.UpdatedAt.IsZero() {
		source.UpdatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.ID] = source
	return nil
}

// ActiveSources returns the user's active sources ordered by priority then ID.
func (r *MemoryRepository) ActiveSources(_ context.Context, userID string) ([]domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Source, 0)
	for _, src := range r.sources {
		if src.UserID == userID && src.Active {
			out = append(out, src)
		}
	}
	sortSources(out)
	return out, nil
}

// UsersWithActiveSources lists every user owning at least one active source.
func (r *MemoryRepository) UsersWithActiveSources(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, src := range r.sources {
		if !src.Active {
			continue
		}
		if _, ok := seen[src.UserID]; ok {
			continue
		}
		seen[src.UserID] = struct{}{}
		users = append(users, src.UserID)
	}
	sort.Strings(users)
	return users, nil
}

// UpsertContent stores item under its (source, platform id) key.
func (r *MemoryRepository) UpsertContent(_ context.Context, item domain.ContentItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := item.Key()
	existing, found := r.content[key]
	if found {
		item.ID = existing.ID
	}
	item.MediaURLs = append([]string(nil), item.MediaURLs...)
	r.content[key] = item
	return !found, nil
}

// ListForUser returns the user's ranked feed.
func (r *MemoryRepository) ListForUser(_ context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ContentItem, 0)
	for _, item := range r.content {
		src, ok := r.sources[item.SourceID]
		if !ok || src.UserID != userID {
			continue
		}
		out = append(out, item)
	}
	RankContent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Usage returns the call counter for the given day.
func (r *MemoryRepository) Usage(_ context.Context, userID, platform, date string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usage[usageKey(userID, platform, date)], nil
}

// Increment adds one call to the given day.
func (r *MemoryRepository) Increment(_ context.Context, userID, platform, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[usageKey(userID, platform, date)]++
	return nil
}

// RankContent orders items breaking first, then by engagement and recency.
func RankContent(items []domain.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsBreaking != b.IsBreaking {
			return a.IsBreaking
		}
		if a.Engagement != b.Engagement {
			return a.Engagement > b.Engagement
		}
		if !a.PostedAt.Equal(b.PostedAt) {
			return a.PostedAt.After(b.PostedAt)
		}
		return a.Key() < b.Key()
	})
}

func sortSources(sources []domain.Source) {
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Tier() != sources[j].Tier() {
			return sources[i].Tier() < sources[j].Tier()
		}
		return sources[i].ID < sources[j].ID
	})
}

func usageKey(userID, platform, date string) string {
	return "usage:" + userID + ":" + platform + ":" + date
}
