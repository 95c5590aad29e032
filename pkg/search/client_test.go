package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(&Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		MaxRetries: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	// Shrink backoff so retry tests stay fast.
	client.retryCfg.InitialDelay = time.Millisecond
	client.retryCfg.MaxDelay = 2 * time.Millisecond
	return client
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "site reliability engineer", r.URL.Query().Get("q"))
		assert.Equal(t, "Berlin", r.URL.Query().Get("location"))
		assert.Equal(t, "14", r.URL.Query().Get("posted_within_days"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"title":        "SRE",
					"organization": "Acme",
					"url":          "https://example.com/jobs/1",
					"snippet":      "On-call rotation.",
					"posted_date":  "2026-08-15",
				},
				{
					"title": "Platform Engineer",
					"url":   "https://example.com/jobs/2",
				},
			},
			"related_searches": []string{"devops engineer", "platform engineer"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	resp, err := client.Search(context.Background(), &Request{
		Query:            "site reliability engineer",
		Location:         "Berlin",
		PostedWithinDays: 14,
	})
	require.NoError(t, err)

	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, "SRE", resp.Candidates[0].Title)
	assert.Equal(t, "Acme", resp.Candidates[0].Organization)
	require.NotNil(t, resp.Candidates[0].PostedDate)
	assert.Equal(t, 15, resp.Candidates[0].PostedDate.Day())
	assert.Nil(t, resp.Candidates[1].PostedDate)
	assert.Equal(t, []string{"devops engineer", "platform engineer"}, resp.RelatedSearches)
}

func TestClient_Search_EmptyQuery(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")

	_, err := client.Search(context.Background(), &Request{Query: "   "})
	require.Error(t, err)
}

func TestClient_Search_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	resp, err := client.Search(context.Background(), &Request{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Search_SurfacesProviderError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Search(context.Background(), &Request{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "quota exceeded")

	// A permanent provider error spends no retry budget.
	assert.Equal(t, int32(1), calls.Load())
}

func TestParsePostedDate(t *testing.T) {
	assert.Nil(t, parsePostedDate(""))
	assert.Nil(t, parsePostedDate("yesterday"))

	dateOnly := parsePostedDate("2026-08-01")
	require.NotNil(t, dateOnly)
	assert.Equal(t, time.August, dateOnly.Month())

	rfc := parsePostedDate("2026-08-01T10:30:00Z")
	require.NotNil(t, rfc)
	assert.Equal(t, 10, rfc.Hour())
}
