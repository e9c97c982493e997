package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// classifyPrompt yields a small JSON object of intent signals. Complexity is
// NOT decided by the model; the rule table in complexityFor owns that.
const classifyPrompt = `You are the intake router for a dealership analytics system.
Classify the user's question and respond with ONLY a JSON object:

{
  "signals": ["..."],
  "data_sources": ["..."]
}

signals: every applicable tag from this closed list:
  lookup, single_metric, aggregation, listing, comparison, ranking, trend,
  forecast, predict, anomaly, strategic, critical
data_sources: every applicable subject area from this closed list:
  sales, inventory, service, leads, finance

Question: %s%s`

func buildClassifyPrompt(query string, context map[string]any) string {
	var hints string
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("\nCaller hints:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, context[k])
		}
		hints = b.String()
	}
	return fmt.Sprintf(classifyPrompt, query, hints)
}
