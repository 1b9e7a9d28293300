// Package normalize maps raw social posts and feed items into domain.ContentItem.
package normalize

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/parser"
	"FeedCurator/internal/ports"
)

// MaxJitter bounds the random component added to synthetic feed engagement.
const MaxJitter = 20

var itemNamespace = uuid.MustParse("6f1c3c8e-2d1b-4f57-9a43-8f0f64f3b0a1")

// categoryBase is the synthetic engagement of a feed item before scaling.
var categoryBase = map[domain.Category]float64{
	domain.CategoryBreaking: 200,
	domain.CategoryTransfer: 150,
	domain.CategoryTeam:     50,
	domain.CategoryGeneral:  50,
}

// PublisherMultiplier scales feed engagement for a publisher matched by
// substring of the feed URL.
type PublisherMultiplier struct {
	Match  string
	Factor float64
}

// DefaultPublisherMultipliers are checked in order; the first match wins.
var DefaultPublisherMultipliers = []PublisherMultiplier{
	{Match: "bbc.co.uk", Factor: 1.5},
	{Match: "skysports.com", Factor: 1.3},
}

// Normalizer converts fetched payloads. It is safe for concurrent use.
type Normalizer struct {
	now         func() time.Time
	jitter      func() float64
	multipliers []PublisherMultiplier
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithClock overrides time.Now for fetched-at stamps and date fallbacks.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithJitter overrides the engagement jitter source. It must return values in [0, MaxJitter).
func WithJitter(jitter func() float64) Option {
	return func(n *Normalizer) {
		if jitter != nil {
			n.jitter = jitter
		}
	}
}

// WithPublisherMultipliers replaces DefaultPublisherMultipliers.
func WithPublisherMultipliers(m []PublisherMultiplier) Option {
	return func(n *Normalizer) {
		n.multipliers = m
	}
}

// New builds a Normalizer with a seeded jitter source.
func New(opts ...Option) *Normalizer {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	n := &Normalizer{
		now: time.Now,
		jitter: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return rng.Float64() * MaxJitter
		},
		multipliers: DefaultPublisherMultipliers,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SocialPost maps a post of handle into a content item owned by sourceID.
func (n *Normalizer) SocialPost(post domain.SocialPost, sourceID, handle string) domain.ContentItem {
	engagement := post.Metrics.Total()
	category := Classify(post.Text, engagement)

	posted := post.Created()
	if posted.IsZero() {
		posted = n.now()
	}

	item := domain.ContentItem{
		ID:           ItemID(sourceID, post.ID),
		SourceID:     sourceID,
		PlatformID:   post.ID,
		Text:         post.Text,
		AuthorHandle: handle,
		PostedAt:     posted.UTC(),
		FetchedAt:    n.now().UTC(),
		Engagement:   engagement,
		IsBreaking:   category == domain.CategoryBreaking,
		Category:     category,
		MediaURLs:    append([]string{}, post.MediaURLs...),
		ExternalURL:  PostURL(handle, post.ID),
	}
	if len(post.Links) > 0 {
		item.OriginalURL = post.Links[0]
	}
	return item
}

// FeedItem maps a parsed feed entry into a content item owned by source.
func (n *Normalizer) FeedItem(entry domain.FeedItem, source domain.Source) domain.ContentItem {
	summary, media := extractHTML(entry.Description)

	category := Classify(entry.Title+" "+summary, -1)

	posted, ok := parser.ParseDate(entry.PublishedAt)
	if !ok {
		posted = n.now()
	}

	text := entry.Title
	if text == "" {
		text = summary
	}

	author := entry.Author
	if author == "" {
		author = source.Name()
	}

	return domain.ContentItem{
		ID:           ItemID(source.ID, entry.GUID),
		SourceID:     source.ID,
		PlatformID:   entry.GUID,
		Text:         text,
		Summary:      summary,
		AuthorHandle: author,
		PostedAt:     posted.UTC(),
		FetchedAt:    n.now().UTC(),
		Engagement:   n.feedEngagement(category, source.FeedURL),
		IsBreaking:   category == domain.CategoryBreaking,
		Category:     category,
		MediaURLs:    media,
		ExternalURL:  entry.Link,
		OriginalURL:  entry.Link,
	}
}

// feedEngagement approximates reach for feeds that publish no counters.
func (n *Normalizer) feedEngagement(category domain.Category, feedURL string) int {
	base := categoryBase[category]
	factor := 1.0
	lower := strings.ToLower(feedURL)
	for _, m := range n.multipliers {
		if strings.Contains(lower, m.Match) {
			factor = m.Factor
			break
		}
	}
	return int(math.Floor(base*factor + n.jitter()))
}

// ItemID derives a stable identifier from the dedup key.
func ItemID(sourceID, platformID string) string {
	return uuid.NewSHA1(itemNamespace, []byte(sourceID+"/"+platformID)).String()
}

// PostURL is the canonical web address of a post.
func PostURL(handle, postID string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", url.PathEscape(handle), url.PathEscape(postID))
}

// extractHTML returns the visible text of fragment and the src of its images.
// Fragments that are not HTML come back as-is.
func extractHTML(fragment string) (string, []string) {
	media := []string{}
	if !strings.Contains(fragment, "<") {
		return fragment, media
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment, media
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			media = append(media, strings.TrimSpace(src))
		}
	})

	return strings.Join(strings.Fields(doc.Text()), " "), media
}

var _ ports.ContentNormalizer = (*Normalizer)(nil)
