package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/metrics"
)

// DefaultBaseURL is the Instagram Graph API host.
const DefaultBaseURL = "https://graph.instagram.com"

// mediaFields are the fields requested for each media object.
const mediaFields = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp"

// ErrNotConfigured is returned when no access token is set.
var ErrNotConfigured = errors.New("instagram access token not configured")

// Post is one media object from the account's feed.
type Post struct {
	ID           string `json:"id"`
	Caption      string `json:"caption,omitempty"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Permalink    string `json:"permalink"`
	Timestamp    string `json:"timestamp"`
	Category     string `json:"category"`
}

// mediaResponse is the envelope of GET /me/media.
type mediaResponse struct {
	Data []Post `json:"data"`
}

// graphError is the error body returned by the Graph API.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client fetches recent posts from the Instagram Graph API.
type Client struct {
	rest  *resty.Client
	token string
}

// Option configures a Client.
type Option func(*resty.Client)

// WithRetry overrides the retry policy.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewClient creates a Graph API client. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL, accessToken string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}

	return &Client{rest: rc, token: accessToken}
}

// Configured reports whether an access token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// RecentMedia returns the account's recent posts, each categorized by its
// caption.
func (c *Client) RecentMedia(ctx context.Context) ([]Post, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       mediaFields,
			"access_token": c.token,
		}).
		SetResult(&mediaResponse{}).
		SetError(&graphError{}).
		Get("/me/media")
	if err != nil {
		metrics.InstagramRequests.WithLabelValues(metrics.StatusError).Inc()
		return nil, fmt.Errorf("failed to fetch media: %w", redact(err))
	}

	if resp.IsError() {
		metrics.InstagramRequests.WithLabelValues(metrics.StatusError).Inc()
		if gErr, ok := resp.Error().(*graphError); ok && gErr.Error.Message != "" {
			return nil, fmt.Errorf("instagram API returned %d: %s", resp.StatusCode(), gErr.Error.Message)
		}
		return nil, fmt.Errorf("instagram API returned %d", resp.StatusCode())
	}

	metrics.InstagramRequests.WithLabelValues(metrics.StatusOK).Inc()

	media, _ := resp.Result().(*mediaResponse)
	posts := []Post{}
	if media == nil {
		return posts, nil
	}
	for _, post := range media.Data {
		post.Category = events.Categorize(post.Caption)
		posts = append(posts, post)
	}

	return posts, nil
}

// FilterByCategory returns the posts in category. An empty category
// returns every post.
func FilterByCategory(posts []Post, category string) []Post {
	if category == "" {
		return posts
	}

	filtered := []Post{}
	for _, post := range posts {
		if post.Category == category {
			filtered = append(filtered, post)
		}
	}
	return filtered
}

// redact drops the request URL, which carries the access token, from
// transport errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s /me/media: %w", uerr.Op, uerr.Err)
	}
	return err
}
