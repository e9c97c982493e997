package dispatch

import (
	"strings"

	"vendora/internal/insight"
)

// suggestVisualization derives a rendering hint from the draft. The rules
// are a fixed table so formatting stays a pure function:
//
//	forecast language        -> line
//	ranking / top-N language -> bar
//	share-of-total metrics   -> pie
//	otherwise, metrics exist -> table
//	no metrics               -> none
func suggestVisualization(task *insight.Task, draft *insight.Draft) *insight.Visualization {
	query := strings.ToLower(task.Query)
	summary := strings.ToLower(draft.Content.Summary)

	if strings.Contains(query, "forecast") || strings.Contains(query, "predict") ||
		strings.Contains(summary, "forecast") {
		return &insight.Visualization{Type: insight.VizLine, Config: map[string]any{
			"x": "period", "y": "value",
		}}
	}

	if strings.Contains(query, "top ") || strings.Contains(query, "rank") ||
		strings.Contains(query, "best") || strings.Contains(query, "worst") {
		return &insight.Visualization{Type: insight.VizBar, Config: map[string]any{
			"orientation": "horizontal",
		}}
	}

	for name := range draft.Content.KeyMetrics {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "share") || strings.Contains(lower, "percent") ||
			strings.Contains(lower, "pct") {
			return &insight.Visualization{Type: insight.VizPie, Config: map[string]any{}}
		}
	}

	if len(draft.Content.KeyMetrics) > 0 {
		return &insight.Visualization{Type: insight.VizTable, Config: map[string]any{}}
	}
	return nil
}
