// Package mastodon talks to a Mastodon-compatible instance: the REST
// timeline API for paginated fetches and the streaming API for live
// delivery.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tagmirror/internal/domain"
)

// pageLimit is the page size requested from the tag timeline endpoint; 40 is
// the maximum Mastodon allows.
const pageLimit = 40

// Client is a minimal Mastodon REST API client covering the endpoints the
// aggregation engine needs.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client for the instance at baseURL
// (e.g. https://mastodon.social).
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTagTimeline fetches one page of the hashtag timeline, newest-first. If
// minID is non-empty only statuses newer than it are returned; an empty page
// means there is nothing newer.
func (c *Client) GetTagTimeline(ctx context.Context, tag string, minID string) ([]*domain.Status, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", pageLimit))
	if minID != "" {
		query.Set("min_id", minID)
	}

	endpoint := fmt.Sprintf("%s/api/v1/timelines/tag/%s?%s",
		c.baseURL, url.PathEscape(tag), query.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tag timeline %s: %w", tag, err)
	}

	// Decode each element separately so the full document survives as the
	// status's raw payload.
	var docs []json.RawMessage
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("tag timeline %s: decode page: %w", tag, err)
	}

	statuses := make([]*domain.Status, 0, len(docs))
	for _, doc := range docs {
		status, err := domain.DecodeStatus(doc)
		if err != nil {
			return nil, fmt.Errorf("tag timeline %s: %w", tag, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// GetStatus fetches a single status by ID. Returns domain.ErrStatusNotFound
// when the status no longer exists upstream.
func (c *Client) GetStatus(ctx context.Context, id string) (*domain.Status, error) {
	endpoint := fmt.Sprintf("%s/api/v1/statuses/%s", c.baseURL, url.PathEscape(id))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", id, err)
	}
	return domain.DecodeStatus(body)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrStatusNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
