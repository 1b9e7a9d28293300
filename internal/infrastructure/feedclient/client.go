package feedclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/infrastructure/parser"
)

const (
	// DefaultTimeout is the client-side deadline for one feed request.
	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "FeedCurator/1.0 (+https://github.com/feedcurator)"
	acceptFeeds      = "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.1"
	maxBodyBytes     = 5 << 20
)

var xmlMarkers = []string{"<?xml", "<rss", "<feed", "<rdf"}

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent overrides the identifying User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// Client downloads RSS/Atom documents. It never retries.
type Client struct {
	httpClient HTTPClient
	timeout    time.Duration
	userAgent  string
}

// New builds a feed client with a 10 second deadline per request.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url and returns the raw document. Failures are reported as
// domain.ErrTimeout, domain.ErrNetwork, *domain.UpstreamError or domain.ErrNotXML.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptFeeds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.UpstreamError{Service: "feed " + url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classify(ctx, err)
	}

	if !looksLikeXML(body) {
		return "", fmt.Errorf("%s: %w", url, domain.ErrNotXML)
	}
	return string(body), nil
}

// FetchFeed downloads and parses url.
func (c *Client) FetchFeed(ctx context.Context, url string) (domain.Feed, error) {
	raw, err := c.Fetch(ctx, url)
	if err != nil {
		return domain.Feed{}, err
	}
	return parser.Parse(raw)
}

func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
}

func looksLikeXML(body []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return false
	}
	head := strings.ToLower(string(trimmed[:min(len(trimmed), 16)]))
	for _, marker := range xmlMarkers {
		if strings.HasPrefix(head, marker) {
			return true
		}
	}
	return false
}
