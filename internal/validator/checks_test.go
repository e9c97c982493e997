package validator

import (
	"math"
	"testing"

	"vendora/internal/insight"
)

func TestCrossChecksEmptyDraft(t *testing.T) {
	caps, issues := crossChecks(validatingTask(insight.ComplexityStandard, 0), &insight.Draft{})
	if caps.DataAccuracy != 0 {
		t.Fatalf("empty draft data_accuracy cap = %f, want 0", caps.DataAccuracy)
	}
	if len(issues["data_accuracy"]) == 0 {
		t.Fatal("no issue recorded for empty draft")
	}
}

func TestCrossChecksUndeclaredReads(t *testing.T) {
	draft := goodDraft()
	draft.QueriesExecuted = nil
	caps, _ := crossChecks(validatingTask(insight.ComplexityStandard, 0), draft)
	if caps.DataAccuracy > 0.4 {
		t.Fatalf("undeclared reads cap = %f, want <= 0.4", caps.DataAccuracy)
	}
}

func TestCrossChecksNonFiniteMetric(t *testing.T) {
	draft := goodDraft()
	draft.Content.KeyMetrics["broken"] = math.NaN()
	caps, _ := crossChecks(validatingTask(insight.ComplexityStandard, 0), draft)
	if caps.DataAccuracy > 0.3 {
		t.Fatalf("NaN metric cap = %f, want <= 0.3", caps.DataAccuracy)
	}
}

func TestCrossChecksForecastRequirements(t *testing.T) {
	task := validatingTask(insight.ComplexityComplex, 0)
	task.Query = "forecast next quarter revenue"

	draft := goodDraft()
	draft.Content.Summary = "Revenue will go up."
	draft.Content.Insights = nil
	caps, issues := crossChecks(task, draft)
	if caps.Methodology > 0.5 {
		t.Fatalf("forecast without horizon/method cap = %f, want <= 0.5", caps.Methodology)
	}
	if len(issues["methodology"]) != 2 {
		t.Fatalf("issues = %v, want horizon and method class", issues["methodology"])
	}

	draft.Content.Summary = "Forecast for next quarter using trend extrapolation: revenue up 4%."
	caps, _ = crossChecks(task, draft)
	if caps.Methodology != 1 {
		t.Fatalf("satisfied forecast cap = %f, want 1", caps.Methodology)
	}
}

func TestCrossChecksPIILeak(t *testing.T) {
	draft := goodDraft()
	draft.Content.Insights = append(draft.Content.Insights, "Contact buyer at jane.doe@example.com")
	caps, issues := crossChecks(validatingTask(insight.ComplexityStandard, 0), draft)
	if caps.Compliance > 0.2 {
		t.Fatalf("PII leak compliance cap = %f, want <= 0.2", caps.Compliance)
	}
	if len(issues["compliance"]) == 0 {
		t.Fatal("no compliance issue recorded")
	}
}

func TestCrossChecksInstructionEcho(t *testing.T) {
	draft := goodDraft()
	draft.Content.Summary = "As an AI language model, sales look fine."
	caps, _ := crossChecks(validatingTask(insight.ComplexityStandard, 0), draft)
	if caps.Compliance > 0.5 {
		t.Fatalf("instruction echo compliance cap = %f, want <= 0.5", caps.Compliance)
	}
}

func TestCrossChecksUnsupportedRecommendations(t *testing.T) {
	draft := &insight.Draft{
		Content: insight.DraftContent{
			Summary: "Do things.",
			Recommendations: []insight.Recommendation{
				{Priority: "high", Action: "Buy more trucks."},
			},
		},
		QueriesExecuted: []insight.QueryExecution{{Source: "sales", Rows: 3}},
	}
	caps, _ := crossChecks(validatingTask(insight.ComplexityStandard, 0), draft)
	if caps.BusinessLogic > 0.5 {
		t.Fatalf("unsupported recommendations cap = %f, want <= 0.5", caps.BusinessLogic)
	}
}
