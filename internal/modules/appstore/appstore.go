// Package appstore wraps the upstream store-listing providers. Search
// responses are fronted by a per-provider prefix query cache; details
// and review calls always go upstream.
package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/appsight/core/internal/pkg/fault"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Listing is one search hit from an upstream provider.
type Listing struct {
	AppID     string  `json:"app_id"`
	Title     string  `json:"title"`
	Developer string  `json:"developer"`
	Icon      string  `json:"icon"`
	Score     float64 `json:"score"`
	URL       string  `json:"url"`
}

// Details is the full listing page for one app.
type Details struct {
	Listing
	Description string           `json:"description"`
	Reviews     int              `json:"reviews"`
	Histogram   map[string]int64 `json:"histogram"`
}

// Review is one user review.
type Review struct {
	ID     string  `json:"id"`
	Author string  `json:"author"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
	Date   string  `json:"date"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("appstore upstream error %d: %s", e.StatusCode, e.Body)
}

// Client talks to one upstream provider endpoint.
type Client struct {
	name     string
	endpoint string
	apiKey   string
}

func NewClient(name, endpoint, apiKey string) *Client {
	return &Client{name: name, endpoint: endpoint, apiKey: apiKey}
}

// Name identifies the provider, e.g. "google-play".
func (c *Client) Name() string { return c.name }

func (c *Client) Search(ctx context.Context, term string) ([]Listing, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", fault.ErrInvalidInput)
	}
	data, err := c.do(ctx, "GET", "/search?term="+url.QueryEscape(term), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []Listing `json:"results"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return resp.Results, nil
}

func (c *Client) Details(ctx context.Context, appID string) (*Details, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: empty app id", fault.ErrInvalidInput)
	}
	data, err := c.do(ctx, "GET", "/apps/"+url.PathEscape(appID), nil)
	if err != nil {
		return nil, err
	}
	var details Details
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("parse details response: %w", err)
	}
	return &details, nil
}

func (c *Client) Reviews(ctx context.Context, appID string, limit int) ([]Review, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: empty app id", fault.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}
	data, err := c.do(ctx, "GET", fmt.Sprintf("/apps/%s/reviews?limit=%d", url.PathEscape(appID), limit), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Reviews []Review `json:"reviews"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse reviews response: %w", err)
	}
	return resp.Reviews, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
