package validator

import (
	"math"
	"regexp"
	"strings"

	"vendora/internal/insight"
)

// Cross-checks compute deterministic per-axis score ceilings directly from
// the draft. The model cannot score an axis above its cap, so structural
// defects (empty content, undeclared sources, leaked PII) always gate.

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// instructionEchoes are fragments that indicate the model leaked its framing
// into caller-visible content.
var instructionEchoes = []string{
	"as an ai", "language model", "system prompt", "respond with only",
	"json object", "you are a",
}

func crossChecks(task *insight.Task, draft *insight.Draft) (insight.AxisScores, map[string][]string) {
	caps := insight.AxisScores{DataAccuracy: 1, Methodology: 1, BusinessLogic: 1, Compliance: 1}
	issues := make(map[string][]string)

	checkDataAccuracy(draft, &caps, issues)
	checkMethodology(task, draft, &caps, issues)
	checkBusinessLogic(draft, &caps, issues)
	checkCompliance(draft, &caps, issues)

	return caps, issues
}

func checkDataAccuracy(draft *insight.Draft, caps *insight.AxisScores, issues map[string][]string) {
	if draft.Content.Empty() {
		caps.DataAccuracy = 0
		issues["data_accuracy"] = append(issues["data_accuracy"], "draft carries no content")
		return
	}
	if len(draft.QueriesExecuted) == 0 {
		caps.DataAccuracy = 0.4
		issues["data_accuracy"] = append(issues["data_accuracy"], "no warehouse reads are declared; metrics cannot be reconciled")
	}
	for name, value := range draft.Content.KeyMetrics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			caps.DataAccuracy = minf(caps.DataAccuracy, 0.3)
			issues["data_accuracy"] = append(issues["data_accuracy"], "metric "+name+" is not a finite number")
		}
	}
	truncated := false
	empty := true
	for _, q := range draft.QueriesExecuted {
		if q.Truncated {
			truncated = true
		}
		if q.Rows > 0 {
			empty = false
		}
	}
	if truncated {
		caps.DataAccuracy = minf(caps.DataAccuracy, 0.9)
	}
	if empty && len(draft.QueriesExecuted) > 0 && len(draft.Content.KeyMetrics) > 0 {
		caps.DataAccuracy = minf(caps.DataAccuracy, 0.4)
		issues["data_accuracy"] = append(issues["data_accuracy"], "metrics are reported but every declared read returned zero rows")
	}
}

// methodWords are the method-class vocabulary a forecast must state.
var methodWords = []string{"trend", "seasonal", "average", "regression", "extrapolat", "moving"}

// horizonWords satisfy the stated-horizon requirement.
var horizonWords = []string{"quarter", "month", "week", "year", "horizon", "q1", "q2", "q3", "q4"}

func checkMethodology(task *insight.Task, draft *insight.Draft, caps *insight.AxisScores, issues map[string][]string) {
	query := strings.ToLower(task.Query)
	text := strings.ToLower(draft.Content.Summary + " " + strings.Join(draft.Content.Insights, " "))

	if strings.Contains(query, "forecast") || strings.Contains(query, "predict") {
		if !containsAny(text, horizonWords) {
			caps.Methodology = minf(caps.Methodology, 0.5)
			issues["methodology"] = append(issues["methodology"], "state the forecast horizon")
		}
		if !containsAny(text, methodWords) {
			caps.Methodology = minf(caps.Methodology, 0.5)
			issues["methodology"] = append(issues["methodology"], "state the forecast method class")
		}
	}
	if strings.Contains(query, "compare") || strings.Contains(query, " vs ") || strings.Contains(query, "versus") {
		if !containsAny(text, []string{"period", "window", "same", "prior", "year-over", "month-over"}) {
			caps.Methodology = minf(caps.Methodology, 0.6)
			issues["methodology"] = append(issues["methodology"], "name the comparable time windows used")
		}
	}
	if strings.Contains(query, "top ") || strings.Contains(query, "rank") || strings.Contains(query, "best") {
		if !containsAny(text, []string{"by ", "ordered", "ranked"}) {
			caps.Methodology = minf(caps.Methodology, 0.6)
			issues["methodology"] = append(issues["methodology"], "state the ordering key for the ranking")
		}
	}
}

func checkBusinessLogic(draft *insight.Draft, caps *insight.AxisScores, issues map[string][]string) {
	if len(draft.Content.Recommendations) > 0 && len(draft.Content.KeyMetrics) == 0 && len(draft.Content.Insights) == 0 {
		caps.BusinessLogic = minf(caps.BusinessLogic, 0.5)
		issues["business_logic"] = append(issues["business_logic"], "recommendations have no supporting metrics or insights")
	}
	for _, rec := range draft.Content.Recommendations {
		switch strings.ToLower(rec.Priority) {
		case "high", "medium", "low", "critical":
		default:
			caps.BusinessLogic = minf(caps.BusinessLogic, 0.8)
		}
	}
}

func checkCompliance(draft *insight.Draft, caps *insight.AxisScores, issues map[string][]string) {
	text := draft.Content.Summary + " " + strings.Join(draft.Content.Insights, " ")
	for _, rec := range draft.Content.Recommendations {
		text += " " + rec.Action
	}

	if emailRe.MatchString(text) || phoneRe.MatchString(text) || ssnRe.MatchString(text) {
		caps.Compliance = 0.2
		issues["compliance"] = append(issues["compliance"], "personally identifying fields leak into the content")
	}
	lower := strings.ToLower(text)
	for _, echo := range instructionEchoes {
		if strings.Contains(lower, echo) {
			caps.Compliance = minf(caps.Compliance, 0.5)
			issues["compliance"] = append(issues["compliance"], "model-instruction text echoes into the content")
			break
		}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
