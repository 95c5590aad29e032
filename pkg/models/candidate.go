package models

import (
	"net/url"
	"strings"
	"time"
)

// Candidate is a raw listing returned by the search provider.
type Candidate struct {
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	URL          string     `json:"url"`
	Snippet      string     `json:"snippet"`
	PostedDate   *time.Time `json:"posted_date,omitempty"`
}

// DedupKey returns the canonical URL used as the uniqueness boundary for
// proposals.
func (c *Candidate) DedupKey() string {
	return CanonicalURL(c.URL)
}

// Tracking query parameters stripped during URL canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
}

// CanonicalURL normalizes a candidate URL for dedup comparison: lowercase
// scheme and host, www. prefix and trailing slash stripped, tracking query
// parameters removed, fragment dropped. Unparseable input falls back to a
// trimmed lowercase of the raw string so it still dedups exact repeats.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if trackingParams[strings.ToLower(param)] {
				q.Del(param)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}
