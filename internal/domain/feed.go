package domain

import "time"

// Feed is the channel-level metadata of an RSS or Atom document and its entries.
type Feed struct {
	Title       string
	Description string
	Link        string
	Atom        bool
	Items       []FeedItem
}

// FeedItem is one cleaned entry. PublishedAt is RFC 3339 when the source date
// could be parsed, otherwise the cleaned raw value.
type FeedItem struct {
	Title       string
	Description string
	Link        string
	PublishedAt string
	GUID        string
	Author      string
}

// PostMetrics are the public engagement counters of a social post.
type PostMetrics struct {
	Likes    int
	Retweets int
	Replies  int
	Quotes   int
}

// Total sums all engagement counters.
func (m PostMetrics) Total() int {
	return m.Likes + m.Retweets + m.Replies + m.Quotes
}

// SocialPost is a raw post as returned by a social fetch client.
type SocialPost struct {
	ID        string
	Text      string
	AuthorID  string
	CreatedAt string
	Metrics   PostMetrics
	MediaURLs []string
	Links     []string
}

// Created parses CreatedAt; the zero time is returned when it is missing or malformed.
func (p SocialPost) Created() time.Time {
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
