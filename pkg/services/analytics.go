package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

const (
	// rankedQueryLimit caps the best/worst query lists fed to the healer.
	rankedQueryLimit = 3
	// keywordLimit caps each keyword list.
	keywordLimit = 8
	// recentQueryLimit caps the recent-queries list.
	recentQueryLimit = 10
	// titleSampleLimit bounds how many proposal titles feed keyword extraction.
	titleSampleLimit = 100
)

// AnalyticsOptions tunes the derived run-history view.
type AnalyticsOptions struct {
	WindowSize              int
	ExhaustionDuplicateRate float64
	ExhaustionRunCount      int
}

// AnalyticsService computes a derived view over a config's recent run logs.
// Nothing here is persisted; the healer asks for a fresh view per run.
type AnalyticsService struct {
	runLogRepo   repositories.RunLogRepository
	proposalRepo repositories.ProposalRepository
	opts         AnalyticsOptions
	logger       *zap.Logger
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(runLogRepo repositories.RunLogRepository, proposalRepo repositories.ProposalRepository, opts AnalyticsOptions, logger *zap.Logger) *AnalyticsService {
	if opts.WindowSize <= 0 {
		opts.WindowSize = 20
	}
	if opts.ExhaustionDuplicateRate <= 0 {
		opts.ExhaustionDuplicateRate = 0.8
	}
	if opts.ExhaustionRunCount <= 0 {
		opts.ExhaustionRunCount = 3
	}

	return &AnalyticsService{
		runLogRepo:   runLogRepo,
		proposalRepo: proposalRepo,
		opts:         opts,
		logger:       logger.Named("analytics"),
	}
}

// Compute derives run analytics for a config from its recent run logs.
func (s *AnalyticsService) Compute(ctx context.Context, configID uuid.UUID) (*models.RunAnalytics, error) {
	runs, err := s.runLogRepo.ListRecent(ctx, configID, s.opts.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}

	analytics := &models.RunAnalytics{RunsAnalyzed: len(runs)}
	if len(runs) == 0 {
		return analytics, nil
	}

	// Only finished runs carry signal. Runs arrive most recent first.
	var completed []*models.RunLog
	for _, run := range runs {
		if run.Status == models.RunStatusCompleted {
			completed = append(completed, run)
		}
	}

	analytics.ConsecutiveZeroRuns = zeroRunStreak(completed)
	analytics.AverageDuplicateRate = averageDuplicateRate(completed)
	analytics.MarketExhausted = s.marketExhausted(completed)
	analytics.BestQueries, analytics.WorstQueries = rankQueries(completed)
	analytics.UntriedRelatedSearches = untriedRelatedSearches(runs)
	analytics.RecentQueries = recentQueries(runs)

	if err := s.attachKeywords(ctx, analytics); err != nil {
		// Keyword signal is advisory; losing it should not fail analytics.
		s.logger.Warn("keyword extraction failed", zap.Error(err))
	}

	return analytics, nil
}

// zeroRunStreak counts completed runs since the last one that produced a
// proposal.
func zeroRunStreak(completed []*models.RunLog) int {
	streak := 0
	for _, run := range completed {
		if run.ProposalsCreated > 0 {
			break
		}
		streak++
	}
	return streak
}

// averageDuplicateRate is the mean duplicate rate over runs that actually
// saw prospects.
func averageDuplicateRate(completed []*models.RunLog) float64 {
	sum, n := 0.0, 0
	for _, run := range completed {
		if run.ProspectsFound == 0 {
			continue
		}
		sum += run.DuplicateRate()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// marketExhausted is raised when the configured number of most-recent
// prospect-bearing runs all exceed the duplicate-rate threshold. A high
// duplicate rate with results means the query works but the market is
// already mined; that calls for a pivot, not a tweak.
func (s *AnalyticsService) marketExhausted(completed []*models.RunLog) bool {
	checked := 0
	for _, run := range completed {
		if run.ProspectsFound == 0 {
			continue
		}
		if run.DuplicateRate() < s.opts.ExhaustionDuplicateRate {
			return false
		}
		checked++
		if checked == s.opts.ExhaustionRunCount {
			return true
		}
	}
	return false
}

// rankQueries aggregates per-query totals and returns the top and bottom
// performers by conversion rate.
func rankQueries(completed []*models.RunLog) (best, worst []models.QueryPerformance) {
	byQuery := make(map[string]*models.QueryPerformance)
	for _, run := range completed {
		if run.ExecutedQuery == "" || run.ProspectsFound == 0 {
			continue
		}
		perf, ok := byQuery[run.ExecutedQuery]
		if !ok {
			perf = &models.QueryPerformance{Query: run.ExecutedQuery}
			byQuery[run.ExecutedQuery] = perf
		}
		perf.Runs++
		perf.Prospects += run.ProspectsFound
		perf.Proposals += run.ProposalsCreated
	}

	ranked := make([]models.QueryPerformance, 0, len(byQuery))
	for _, perf := range byQuery {
		perf.ConversionRate = float64(perf.Proposals) / float64(perf.Prospects)
		ranked = append(ranked, *perf)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ConversionRate != ranked[j].ConversionRate {
			return ranked[i].ConversionRate > ranked[j].ConversionRate
		}
		return ranked[i].Query < ranked[j].Query
	})

	n := len(ranked)
	bestN := min(rankedQueryLimit, n)
	best = append(best, ranked[:bestN]...)

	// Worst list only makes sense once there is contrast.
	if n > bestN {
		worstN := min(rankedQueryLimit, n-bestN)
		worst = append(worst, ranked[n-worstN:]...)
	}

	return best, worst
}

// untriedRelatedSearches collects provider suggestions never executed.
func untriedRelatedSearches(runs []*models.RunLog) []string {
	executed := make(map[string]bool)
	for _, run := range runs {
		executed[strings.ToLower(strings.TrimSpace(run.ExecutedQuery))] = true
	}

	seen := make(map[string]bool)
	var untried []string
	for _, run := range runs {
		for _, suggestion := range run.RelatedSearches {
			key := strings.ToLower(strings.TrimSpace(suggestion))
			if key == "" || executed[key] || seen[key] {
				continue
			}
			seen[key] = true
			untried = append(untried, suggestion)
		}
	}
	return untried
}

// recentQueries returns distinct executed queries, most recent first.
func recentQueries(runs []*models.RunLog) []string {
	seen := make(map[string]bool)
	var queries []string
	for _, run := range runs {
		if run.ExecutedQuery == "" || seen[run.ExecutedQuery] {
			continue
		}
		seen[run.ExecutedQuery] = true
		queries = append(queries, run.ExecutedQuery)
		if len(queries) == recentQueryLimit {
			break
		}
	}
	return queries
}

// attachKeywords derives the terms over-represented in approved versus
// rejected proposal titles.
func (s *AnalyticsService) attachKeywords(ctx context.Context, analytics *models.RunAnalytics) error {
	approved, err := s.proposalRepo.ListTitlesByStatus(ctx, models.ProposalStatusApproved, titleSampleLimit)
	if err != nil {
		return err
	}
	rejected, err := s.proposalRepo.ListTitlesByStatus(ctx, models.ProposalStatusRejected, titleSampleLimit)
	if err != nil {
		return err
	}

	approvedFreq := termFrequencies(approved)
	rejectedFreq := termFrequencies(rejected)

	analytics.SuccessKeywords = dominantTerms(approvedFreq, rejectedFreq)
	analytics.FailureKeywords = dominantTerms(rejectedFreq, approvedFreq)
	return nil
}

var stopTerms = map[string]bool{
	"a": true, "an": true, "and": true, "at": true, "for": true,
	"in": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true,
}

// termFrequencies counts lowercase terms across titles, skipping stop
// words and short tokens.
func termFrequencies(titles []string) map[string]int {
	freq := make(map[string]int)
	for _, title := range titles {
		for _, term := range strings.Fields(strings.ToLower(title)) {
			term = strings.Trim(term, ".,;:!?()[]\"'")
			if len(term) < 3 || stopTerms[term] {
				continue
			}
			freq[term]++
		}
	}
	return freq
}

// dominantTerms returns terms that appear at least twice in the primary
// set and strictly more often than in the contrast set.
func dominantTerms(primary, contrast map[string]int) []string {
	var terms []string
	for term, count := range primary {
		if count >= 2 && count > contrast[term] {
			terms = append(terms, term)
		}
	}

	sort.Slice(terms, func(i, j int) bool {
		if primary[terms[i]] != primary[terms[j]] {
			return primary[terms[i]] > primary[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > keywordLimit {
		terms = terms[:keywordLimit]
	}
	return terms
}
