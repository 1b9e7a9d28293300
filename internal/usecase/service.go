package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// DefaultFeedLimit and MaxFeedLimit bound ranked feed reads.
const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 200
)

// Summary is what a manual or scheduled trigger reports back.
type Summary struct {
	Saved      int      `json:"saved"`
	Updated    int      `json:"updated"`
	Fetched    int      `json:"fetched"`
	Failed     int      `json:"failed_sources"`
	Cancelled  bool     `json:"cancelled"`
	Progress   []string `json:"progress"`
	SocialNote string   `json:"social_note,omitempty"`
}

// CurationService runs the curator and persists its output.
type CurationService struct {
	curator *Curator
	content ports.ContentRepository
	logger  *slog.Logger
}

// NewCurationService wires the curator to content storage.
func NewCurationService(curator *Curator, content ports.ContentRepository, logger *slog.Logger) *CurationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CurationService{curator: curator, content: content, logger: logger}
}

// CurateNow runs a curation and upserts every item by (source, platform id).
// Saved counts new items; re-curated items count as Updated. Duplicate-key
// errors from storage are treated as updates.
func (s *CurationService) CurateNow(ctx context.Context, req Request, progress ProgressFunc) (Summary, error) {
	result, err := s.curator.Curate(ctx, req, progress)
	summary := Summary{
		Fetched:   len(result.Items),
		Failed:    len(result.Failures),
		Cancelled: result.Cancelled,
		Progress:  result.Progress,
	}
	if result.SocialSkipped != nil {
		summary.SocialNote = result.SocialSkipped.Error()
	}
	if err != nil {
		return summary, fmt.Errorf("curation failed: %w", err)
	}

	var firstErr error
	persistFailures := 0
	for _, item := range result.Items {
		inserted, err := s.content.UpsertContent(ctx, item)
		switch {
		case err == nil && inserted:
			summary.Saved++
		case err == nil, domain.IsDuplicate(err):
			summary.Updated++
		default:
			persistFailures++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("save content failed", "user_id", req.UserID, "key", item.Key(), "error", err)
		}
	}

	s.logger.Info("curation saved",
		"user_id", req.UserID,
		"saved", summary.Saved,
		"updated", summary.Updated,
		"persist_failures", persistFailures,
	)

	if persistFailures > 0 && summary.Saved+summary.Updated == 0 {
		return summary, fmt.Errorf("failed to save %d items: %w", persistFailures, firstErr)
	}
	return summary, nil
}

// Feed returns the ranked content of a user. limit is clamped to
// [1, MaxFeedLimit] and defaults to DefaultFeedLimit.
func (s *CurationService) Feed(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	switch {
	case limit <= 0:
		limit = DefaultFeedLimit
	case limit > MaxFeedLimit:
		limit = MaxFeedLimit
	}

	items, err := s.content.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed for %s: %w", userID, err)
	}
	return items, nil
}
