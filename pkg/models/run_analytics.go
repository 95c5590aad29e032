package models

// QueryPerformance ranks an executed query by its conversion rate.
type QueryPerformance struct {
	Query          string  `json:"query"`
	Runs           int     `json:"runs"`
	Prospects      int     `json:"prospects"`
	Proposals      int     `json:"proposals"`
	ConversionRate float64 `json:"conversion_rate"`
}

// RunAnalytics is a derived view over the last N run logs for a config.
// It is computed on demand and never persisted.
type RunAnalytics struct {
	RunsAnalyzed int `json:"runs_analyzed"`

	// ConsecutiveZeroRuns counts completed runs since the last run that
	// produced at least one proposal.
	ConsecutiveZeroRuns int `json:"consecutive_zero_runs"`

	// AverageDuplicateRate is the mean duplicate rate over the window.
	AverageDuplicateRate float64 `json:"average_duplicate_rate"`

	// MarketExhausted is set when the duplicate rate has exceeded the
	// configured threshold across the configured number of recent runs.
	// It distinguishes "query is bad" from "market is saturated".
	MarketExhausted bool `json:"market_exhausted"`

	BestQueries  []QueryPerformance `json:"best_queries,omitempty"`
	WorstQueries []QueryPerformance `json:"worst_queries,omitempty"`

	// UntriedRelatedSearches are provider-suggested searches never yet
	// executed by this config.
	UntriedRelatedSearches []string `json:"untried_related_searches,omitempty"`

	// SuccessKeywords / FailureKeywords are terms over-represented in
	// approved vs rejected candidate titles. Coarse correlation, not
	// causation.
	SuccessKeywords []string `json:"success_keywords,omitempty"`
	FailureKeywords []string `json:"failure_keywords,omitempty"`

	// RecentQueries lists executed query strings, most recent first.
	RecentQueries []string `json:"recent_queries,omitempty"`
}
