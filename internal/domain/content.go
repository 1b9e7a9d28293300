package domain

import "time"

// Category is the coarse classification of a content item.
type Category string

const (
	CategoryBreaking Category = "breaking"
	CategoryTransfer Category = "transfer"
	CategoryTeam     Category = "team"
	CategoryGeneral  Category = "general"
)

// ContentItem is the platform-agnostic record produced by curation.
// (SourceID, PlatformID) is the dedup key.
type ContentItem struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	PlatformID   string    `json:"platform_id"`
	Text         string    `json:"text"`
	Summary      string    `json:"summary,omitempty"`
	AuthorHandle string    `json:"author_handle"`
	PostedAt     time.Time `json:"posted_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	Engagement   int       `json:"engagement"`
	IsBreaking   bool      `json:"is_breaking"`
	Category     Category  `json:"category"`
	MediaURLs    []string  `json:"media_urls"`
	ExternalURL  string    `json:"external_url"`
	OriginalURL  string    `json:"original_url,omitempty"`
}

// Key returns the natural dedup key.
func (c ContentItem) Key() string {
	return c.SourceID + "/" + c.PlatformID
}
