package prompts

import (
	"fmt"
	"strings"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// Pressure tier boundaries, keyed by consecutive zero-proposal runs.
const (
	PressureTierMildMin     = 3
	PressureTierDrasticMin  = 6
	PressureTierCriticalMin = 10
)

// CriticalPivotMarker appears in the prompt at the highest pressure tier.
// Tests assert on it, and it keeps the escalation auditable in run logs.
const CriticalPivotMarker = "CRITICAL PIVOT"

// QueryHealingSystemPrompt instructs the model to draft one replacement
// search query as plain text.
const QueryHealingSystemPrompt = `You are a search strategist for an automated lead-sourcing engine.
The current search query has stopped producing usable leads.
Draft ONE replacement query string.

Respond with ONLY the replacement query text on a single line.
No quotes, no explanation, no markdown.`

// BuildQueryHealingPrompt embeds the current query, the user's criteria and
// the run analytics, then escalates the instruction strength with the
// consecutive-zero-run streak.
func BuildQueryHealingPrompt(currentQuery, criteria string, analytics *models.RunAnalytics) string {
	var prompt strings.Builder

	prompt.WriteString("## Current Query\n\n")
	prompt.WriteString(currentQuery)
	prompt.WriteString("\n\n## Qualification Criteria\n\n")
	prompt.WriteString(strings.TrimSpace(criteria))

	prompt.WriteString("\n\n## Run History\n\n")
	prompt.WriteString(fmt.Sprintf("Consecutive runs with zero proposals: %d\n", analytics.ConsecutiveZeroRuns))
	prompt.WriteString(fmt.Sprintf("Average duplicate rate: %.0f%%\n", analytics.AverageDuplicateRate*100))
	if analytics.MarketExhausted {
		prompt.WriteString("Market exhaustion detected: nearly every result is already known.\n")
	}

	if len(analytics.BestQueries) > 0 {
		prompt.WriteString("\nBest performing past queries (proposals per prospect):\n")
		for _, q := range analytics.BestQueries {
			prompt.WriteString(fmt.Sprintf("- %q (%.0f%%)\n", q.Query, q.ConversionRate*100))
		}
	}
	if len(analytics.WorstQueries) > 0 {
		prompt.WriteString("\nWorst performing past queries:\n")
		for _, q := range analytics.WorstQueries {
			prompt.WriteString(fmt.Sprintf("- %q (%.0f%%)\n", q.Query, q.ConversionRate*100))
		}
	}
	if len(analytics.UntriedRelatedSearches) > 0 {
		prompt.WriteString("\nRelated searches suggested by the provider but never tried:\n")
		for _, s := range analytics.UntriedRelatedSearches {
			prompt.WriteString(fmt.Sprintf("- %s\n", s))
		}
	}
	if len(analytics.SuccessKeywords) > 0 {
		prompt.WriteString(fmt.Sprintf("\nTerms common in approved candidates: %s\n",
			strings.Join(analytics.SuccessKeywords, ", ")))
	}
	if len(analytics.FailureKeywords) > 0 {
		prompt.WriteString(fmt.Sprintf("Terms common in rejected candidates: %s\n",
			strings.Join(analytics.FailureKeywords, ", ")))
	}

	prompt.WriteString("\n## Instruction\n\n")
	prompt.WriteString(pressureInstruction(analytics))

	return prompt.String()
}

// pressureInstruction escalates by consecutive-zero-run tier.
func pressureInstruction(analytics *models.RunAnalytics) string {
	streak := analytics.ConsecutiveZeroRuns

	switch {
	case streak >= PressureTierCriticalMin:
		var b strings.Builder
		b.WriteString(CriticalPivotMarker + " required: the current approach has failed ")
		b.WriteString(fmt.Sprintf("%d times in a row. Abandon the current query family entirely ", streak))
		b.WriteString("and propose a query from a different angle on the criteria.")
		if analytics.MarketExhausted {
			b.WriteString(" The duplicate rate indicates this market is exhausted; if no genuinely new angle exists, respond with the single word PAUSE to recommend suspending this automation.")
		}
		return b.String()

	case streak >= PressureTierDrasticMin:
		var b strings.Builder
		b.WriteString("A drastic pivot is required. Do NOT produce a minor variation. ")
		b.WriteString("Avoid all of these recently tried queries and close variants of them:\n")
		for _, q := range analytics.RecentQueries {
			b.WriteString(fmt.Sprintf("- %s\n", q))
		}
		return b.String()

	default:
		return "Produce a query with meaningfully different terms from the current one while still matching the criteria."
	}
}
