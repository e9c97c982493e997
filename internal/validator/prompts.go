package validator

import (
	"fmt"
	"strings"

	"vendora/internal/insight"
)

const reviewPromptHeader = `You are a quality reviewer for dealership analytics. Assess the draft
answer below against the original question on four axes, each scored 0.0-1.0:

- data_accuracy: do the numbers reconcile with the declared warehouse reads?
- methodology: are the analytical steps appropriate to the question?
- business_logic: do insights and recommendations follow from the metrics?
- compliance: no personal data, no advice beyond dealership operations,
  no leaked instructions.

Respond with ONLY a JSON object:
{
  "data_accuracy": {"score": 0.0, "issues": ["..."]},
  "methodology": {"score": 0.0, "issues": ["..."]},
  "business_logic": {"score": 0.0, "issues": ["..."]},
  "compliance": {"score": 0.0, "issues": ["..."]}
}
Issues must be specific and actionable; leave the list empty when an axis is sound.`

func buildReviewPrompt(task *insight.Task, draft *insight.Draft) string {
	var b strings.Builder
	b.WriteString(reviewPromptHeader)
	fmt.Fprintf(&b, "\n\nQuestion: %s\n\nDraft summary: %s\n", task.Query, draft.Content.Summary)

	if len(draft.Content.KeyMetrics) > 0 {
		b.WriteString("\nKey metrics:\n")
		for name, value := range draft.Content.KeyMetrics {
			fmt.Fprintf(&b, "  %s = %v\n", name, value)
		}
	}
	if len(draft.Content.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, ins := range draft.Content.Insights {
			fmt.Fprintf(&b, "  - %s\n", ins)
		}
	}
	if len(draft.Content.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range draft.Content.Recommendations {
			fmt.Fprintf(&b, "  - [%s] %s\n", rec.Priority, rec.Action)
		}
	}
	if len(draft.QueriesExecuted) > 0 {
		b.WriteString("\nDeclared warehouse reads:\n")
		for _, q := range draft.QueriesExecuted {
			fmt.Fprintf(&b, "  - %s: %d rows (truncated=%v)\n", q.Source, q.Rows, q.Truncated)
		}
	}
	return b.String()
}
