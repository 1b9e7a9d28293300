// Package parser extracts channel metadata and entries from RSS 2.0, RSS 1.0 and
// Atom documents using tolerant pattern matching.
package parser

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"FeedCurator/internal/domain"
)

// MaxItems bounds how many entries a single parse returns.
const MaxItems = 20

var (
	rssRoot  = regexp.MustCompile(`(?i)<(?:rss|rdf:RDF|channel)[\s>]`)
	atomRoot = regexp.MustCompile(`(?i)<feed[\s>]`)

	rssItem   = regexp.MustCompile(`(?is)<item(?:\s[^>]*)?>(.*?)</item\s*>`)
	atomEntry = regexp.MustCompile(`(?is)<entry(?:\s[^>]*)?>(.*?)</entry\s*>`)
	itemStart = regexp.MustCompile(`(?i)<item[\s>]`)
	entryOpen = regexp.MustCompile(`(?i)<entry[\s>]`)

	linkElement = regexp.MustCompile(`(?is)<link\b([^>]*)>`)
	attrRel     = regexp.MustCompile(`(?i)\brel\s*=\s*["']([^"']*)["']`)
	attrHref    = regexp.MustCompile(`(?i)\bhref\s*=\s*["']([^"']*)["']`)
	atomAuthor  = regexp.MustCompile(`(?is)<author(?:\s[^>]*)?>(.*?)</author\s*>`)

	xmlEncoding = regexp.MustCompile(`(?i)^(?:\x{FEFF})?\s*<\?xml[^>]*\bencoding\s*=\s*["']([^"']+)["']`)

	cdata      = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	whitespace = regexp.MustCompile(`\s+`)

	entities = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"&#160;", " ",
	)

	tags = map[string]*regexp.Regexp{}
)

func init() {
	for _, name := range []string{
		"title", "description", "link", "pubDate", "guid", "author",
		"dc:creator", "dc:date", "content:encoded",
		"subtitle", "summary", "content", "published", "updated", "id", "name",
	} {
		n := regexp.QuoteMeta(name)
		tags[name] = regexp.MustCompile(`(?is)<` + n + `(?:\s[^>]*)?>(.*?)</` + n + `\s*>`)
	}
}

// Parse detects the dialect of raw and extracts channel metadata and up to
// MaxItems entries. Entries with neither title nor description are dropped.
// A document without an RSS/Atom root, or one that cannot be tokenised, yields
// a *domain.ParseError.
func Parse(raw string) (domain.Feed, error) {
	raw = sanitize(toUTF8(raw))

	hasRSS := rssRoot.MatchString(raw)
	hasAtom := atomRoot.MatchString(raw)
	if !hasRSS && !hasAtom {
		return domain.Feed{}, &domain.ParseError{Reason: "no rss or atom root element"}
	}
	if err := checkWellFormed(raw); err != nil {
		return domain.Feed{}, &domain.ParseError{Reason: "malformed xml", Err: err}
	}

	if hasAtom && !hasRSS {
		return parseAtom(raw), nil
	}
	return parseRSS(raw), nil
}

// toUTF8 transcodes documents whose XML declaration names a non-UTF-8
// encoding. Unknown labels leave the input untouched.
func toUTF8(raw string) string {
	m := xmlEncoding.FindStringSubmatch(raw[:min(len(raw), 256)])
	if m == nil {
		return raw
	}
	label := strings.ToLower(strings.TrimSpace(m[1]))
	if label == "utf-8" || label == "utf8" {
		return raw
	}
	r, err := charset.NewReaderLabel(label, strings.NewReader(raw))
	if err != nil {
		return raw
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return raw
	}
	return string(decoded)
}

// sanitize drops C0 control characters other than tab, newline and carriage
// return, and replaces invalid UTF-8 sequences.
func sanitize(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "\uFFFD")
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, raw)
}

// checkWellFormed walks the token stream leniently: unknown entities and
// mismatched end tags are tolerated, truncated or garbled markup is not.
func checkWellFormed(raw string) error {
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	// the document is already UTF-8 after toUTF8
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func parseRSS(raw string) domain.Feed {
	header := raw
	if loc := itemStart.FindStringIndex(raw); loc != nil {
		header = raw[:loc[0]]
	}

	feed := domain.Feed{
		Title:       firstTag(header, "title"),
		Description: firstTag(header, "description"),
		Link:        firstTag(header, "link"),
	}

	var items []domain.FeedItem
	for _, m := range rssItem.FindAllStringSubmatch(raw, -1) {
		block := m[1]
		items = append(items, domain.FeedItem{
			Title:       firstTag(block, "title"),
			Description: firstTag(block, "description", "content:encoded"),
			Link:        firstTag(block, "link"),
			PublishedAt: normalizeDate(firstTag(block, "pubDate", "dc:date")),
			GUID:        firstTag(block, "guid"),
			Author:      firstTag(block, "author", "dc:creator"),
		})
	}
	feed.Items = finalize(items)
	return feed
}

func parseAtom(raw string) domain.Feed {
	header := raw
	if loc := entryOpen.FindStringIndex(raw); loc != nil {
		header = raw[:loc[0]]
	}

	feed := domain.Feed{
		Title:       firstTag(header, "title"),
		Description: firstTag(header, "subtitle"),
		Link:        atomLink(header),
		Atom:        true,
	}

	var items []domain.FeedItem
	for _, m := range atomEntry.FindAllStringSubmatch(raw, -1) {
		block := m[1]
		author := ""
		if a := atomAuthor.FindStringSubmatch(block); a != nil {
			author = firstTag(a[1], "name")
			if author == "" {
				author = clean(a[1])
			}
		}
		items = append(items, domain.FeedItem{
			Title:       firstTag(block, "title"),
			Description: firstTag(block, "summary", "content"),
			Link:        atomLink(block),
			PublishedAt: normalizeDate(firstTag(block, "published", "updated")),
			GUID:        firstTag(block, "id"),
			Author:      author,
		})
	}
	feed.Items = finalize(items)
	return feed
}

// finalize drops noise, fills GUID fallbacks and applies MaxItems.
func finalize(items []domain.FeedItem) []domain.FeedItem {
	out := make([]domain.FeedItem, 0, len(items))
	seen := make(map[string]int)
	for _, it := range items {
		if it.Title == "" && it.Description == "" {
			continue
		}
		if it.GUID == "" {
			it.GUID = it.Link
		}
		if it.GUID == "" {
			it.GUID = syntheticGUID(it, seen)
		}
		out = append(out, it)
		if len(out) == MaxItems {
			break
		}
	}
	return out
}

func syntheticGUID(it domain.FeedItem, seen map[string]int) string {
	sum := sha1.Sum([]byte(it.Title + "\x00" + it.Description + "\x00" + it.PublishedAt))
	id := "generated-" + hex.EncodeToString(sum[:8])
	seen[id]++
	if n := seen[id]; n > 1 {
		id += "-" + strconv.Itoa(n)
	}
	return id
}

// atomLink prefers rel="alternate" (or no rel) over self/enclosure links.
func atomLink(block string) string {
	fallback := ""
	for _, m := range linkElement.FindAllStringSubmatch(block, -1) {
		href := attrHref.FindStringSubmatch(m[1])
		if href == nil {
			continue
		}
		value := clean(href[1])
		rel := attrRel.FindStringSubmatch(m[1])
		if rel == nil || strings.EqualFold(rel[1], "alternate") {
			return value
		}
		if fallback == "" {
			fallback = value
		}
	}
	return fallback
}

func firstTag(block string, names ...string) string {
	for _, name := range names {
		re, ok := tags[name]
		if !ok {
			continue
		}
		if m := re.FindStringSubmatch(block); m != nil {
			if v := clean(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

// clean unwraps CDATA, decodes the common entities and collapses whitespace.
func clean(s string) string {
	s = cdata.ReplaceAllString(s, "$1")
	s = entities.Replace(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate tries the date formats seen in RSS and Atom feeds.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func normalizeDate(value string) string {
	if t, ok := ParseDate(value); ok {
		return t.Format(time.RFC3339)
	}
	return value
}
