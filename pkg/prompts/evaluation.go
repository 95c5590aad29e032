package prompts

import (
	"fmt"
	"strings"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// EvaluationSystemPrompt instructs the model to act as a lead qualifier
// returning a structured verdict.
const EvaluationSystemPrompt = `You are a lead qualification assistant for a CRM.
You are given the user's qualification criteria and one candidate listing.
Decide whether the candidate satisfies the criteria.

Respond with ONLY a JSON object in this exact format:
{"approve": true|false, "reason": "<one short sentence>"}

Be strict: when the listing clearly fails any stated criterion, reject it.
When information is missing, judge only on what is present.`

// BuildEvaluationPrompt creates the per-candidate prompt for the
// approve/reject model call.
func BuildEvaluationPrompt(criteria string, candidate *models.Candidate) string {
	var prompt strings.Builder

	prompt.WriteString("## Qualification Criteria\n\n")
	prompt.WriteString(strings.TrimSpace(criteria))
	prompt.WriteString("\n\n## Candidate Listing\n\n")
	prompt.WriteString(fmt.Sprintf("Title: %s\n", candidate.Title))
	if candidate.Organization != "" {
		prompt.WriteString(fmt.Sprintf("Organization: %s\n", candidate.Organization))
	}
	prompt.WriteString(fmt.Sprintf("URL: %s\n", candidate.URL))
	if candidate.PostedDate != nil {
		prompt.WriteString(fmt.Sprintf("Posted: %s\n", candidate.PostedDate.Format("2006-01-02")))
	}
	if candidate.Snippet != "" {
		prompt.WriteString(fmt.Sprintf("\n%s\n", candidate.Snippet))
	}

	return prompt.String()
}
