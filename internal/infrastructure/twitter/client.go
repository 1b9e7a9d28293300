package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"FeedCurator/internal/domain"
)

const (
	defaultBaseURL = "https://api.twitter.com"
	minResults     = 5
	maxResults     = 100
)

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// Client is a bearer-token Twitter API v2 client.
type Client struct {
	bearerToken string
	baseURL     string
	httpClient  HTTPClient
}

// NewClient creates a client authenticated with an app bearer token.
func NewClient(bearerToken string, opts ...ClientOption) *Client {
	c := &Client{
		bearerToken: bearerToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRecentPosts resolves handle and returns at most maxCount of its latest posts.
// Errors match domain.ErrNotFound, domain.ErrRateLimited, domain.ErrNetwork or
// *domain.UpstreamError.
func (c *Client) FetchRecentPosts(ctx context.Context, handle string, maxCount int) ([]domain.SocialPost, error) {
	user, err := c.LookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}
	return c.UserPosts(ctx, user.ID, maxCount)
}

// LookupUser resolves a handle to its numeric id.
func (c *Client) LookupUser(ctx context.Context, handle string) (User, error) {
	endpoint := fmt.Sprintf("%s/2/users/by/username/%s", c.baseURL, url.PathEscape(handle))

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return User{}, fmt.Errorf("user @%s: %w", handle, err)
		}
		return User{}, err
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return User{}, fmt.Errorf("failed to parse user response: %w", err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return User{}, fmt.Errorf("user @%s: %w", handle, domain.ErrNotFound)
	}

	return User{ID: resp.Data.ID, Username: resp.Data.Username, Name: resp.Data.Name}, nil
}

// UserPosts reads the timeline of a resolved user id.
func (c *Client) UserPosts(ctx context.Context, userID string, maxCount int) ([]domain.SocialPost, error) {
	if maxCount <= 0 {
		return []domain.SocialPost{}, nil
	}

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(clamp(maxCount, minResults, maxResults)))
	query.Set("tweet.fields", "created_at,public_metrics,entities,attachments,author_id")
	query.Set("expansions", "attachments.media_keys")
	query.Set("media.fields", "url,preview_image_url,type")
	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", c.baseURL, url.PathEscape(userID), query.Encode())

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp tweetsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse tweets response: %w", err)
	}

	media := make(map[string]string, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		if m.URL != "" {
			media[m.MediaKey] = m.URL
		} else if m.PreviewImageURL != "" {
			media[m.MediaKey] = m.PreviewImageURL
		}
	}

	posts := make([]domain.SocialPost, 0, min(len(resp.Data), maxCount))
	for _, tw := range resp.Data {
		if len(posts) == maxCount {
			break
		}
		post := domain.SocialPost{
			ID:        tw.ID,
			Text:      tw.Text,
			AuthorID:  tw.AuthorID,
			CreatedAt: tw.CreatedAt,
			Metrics:   domain.PostMetrics(tw.PublicMetrics),
		}
		for _, key := range tw.Attachments.MediaKeys {
			if u, ok := media[key]; ok {
				post.MediaURLs = append(post.MediaURLs, u)
			}
		}
		for _, u := range tw.Entities.URLs {
			if u.ExpandedURL != "" {
				post.Links = append(post.Links, u.ExpandedURL)
			}
		}
		posts = append(posts, post)
	}

	return posts, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleAPIError(resp.StatusCode)
	}

	return body, nil
}

func handleAPIError(statusCode int) error {
	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("twitter API: %w", domain.ErrRateLimited)
	case http.StatusNotFound:
		return fmt.Errorf("twitter API: %w", domain.ErrNotFound)
	default:
		return &domain.UpstreamError{Service: "twitter API", StatusCode: statusCode}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
