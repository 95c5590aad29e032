// Package search wraps the external listings provider.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/retry"
)

// Config holds listings-provider client settings.
type Config struct {
	BaseURL    string
	APIKey     string // Optional for self-hosted providers
	Timeout    time.Duration
	MaxRetries int
}

// Request describes one listings search.
type Request struct {
	Query            string
	Location         string
	PostedWithinDays int
}

// Response carries the provider's candidates plus its related-search
// suggestions, which feed the query healer's untried-searches signal.
type Response struct {
	Candidates      []models.Candidate
	RelatedSearches []string
}

// Client issues searches against the listings provider with bounded retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// NewClient creates a listings-provider client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		retryCfg:   retryCfg,
		logger:     logger.Named("search"),
	}, nil
}

// Search issues one listings query. Transient provider failures are retried
// with backoff; permanent failures (auth, quota, bad request) and retry
// exhaustion surface the error to the caller immediately.
func (c *Client) Search(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	start := time.Now()

	resp, err := retry.DoIfRetryableWithResult(ctx, c.retryCfg, func() (*Response, error) {
		return c.doSearch(ctx, req)
	})
	if err != nil {
		c.logger.Error("search failed",
			zap.String("query", req.Query),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("search completed",
		zap.String("query", req.Query),
		zap.Int("candidates", len(resp.Candidates)),
		zap.Int("related_searches", len(resp.RelatedSearches)),
		zap.Duration("elapsed", time.Since(start)))

	return resp, nil
}

// wireResult is the provider's candidate shape on the wire.
type wireResult struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	URL          string `json:"url"`
	Snippet      string `json:"snippet"`
	PostedDate   string `json:"posted_date,omitempty"`
}

// wireResponse is the provider's response envelope.
type wireResponse struct {
	Results         []wireResult `json:"results"`
	RelatedSearches []string     `json:"related_searches"`
}

func (c *Client) doSearch(ctx context.Context, req *Request) (*Response, error) {
	params := url.Values{}
	params.Set("q", req.Query)
	if req.Location != "" {
		params.Set("location", req.Location)
	}
	if req.PostedWithinDays > 0 {
		params.Set("posted_within_days", strconv.Itoa(req.PostedWithinDays))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("search provider returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	resp := &Response{RelatedSearches: wire.RelatedSearches}
	for _, r := range wire.Results {
		candidate := models.Candidate{
			Title:        r.Title,
			Organization: r.Organization,
			URL:          r.URL,
			Snippet:      r.Snippet,
		}
		if posted := parsePostedDate(r.PostedDate); posted != nil {
			candidate.PostedDate = posted
		}
		resp.Candidates = append(resp.Candidates, candidate)
	}

	return resp, nil
}

// parsePostedDate tolerates both date-only and RFC3339 provider timestamps.
func parsePostedDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
