package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/model"
)

func init() {
	logging.InitializeNop()
}

type cannedCompleter struct {
	response string
	err      error
}

func (c *cannedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func newValidator(response string, err error, maxRevisions int) *Validator {
	client := model.NewClient(&cannedCompleter{response: response, err: err}, model.Options{
		CallTimeout: time.Second,
		MaxAttempts: 1,
	})
	return New(client, Options{
		Thresholds: map[insight.Complexity]float64{
			insight.ComplexitySimple:   0.80,
			insight.ComplexityStandard: 0.85,
			insight.ComplexityComplex:  0.90,
			insight.ComplexityCritical: 0.95,
		},
		MinAxisScore: 0.60,
		MaxRevisions: maxRevisions,
	})
}

func review(da, m, bl, c float64) string {
	return fmt.Sprintf(`{
	  "data_accuracy": {"score": %v, "issues": []},
	  "methodology": {"score": %v, "issues": []},
	  "business_logic": {"score": %v, "issues": []},
	  "compliance": {"score": %v, "issues": []}
	}`, da, m, bl, c)
}

func goodDraft() *insight.Draft {
	return &insight.Draft{
		Author: insight.SpecialistStandard,
		Content: insight.DraftContent{
			Summary:    "Top three models ranked by units sold.",
			KeyMetrics: map[string]float64{"total_units": 42},
			Insights:   []string{"Sedan X leads, ordered by units."},
			Recommendations: []insight.Recommendation{
				{Priority: "medium", Action: "Stock more Sedan X."},
			},
		},
		QueriesExecuted: []insight.QueryExecution{
			{Source: "sales", Template: "SELECT ...", Rows: 12},
		},
		SelfConfidence: 0.9,
	}
}

func validatingTask(c insight.Complexity, revisionsUsed int) *insight.Task {
	return &insight.Task{
		ID:            "t1",
		Query:         "top three selling models last quarter",
		Complexity:    c,
		RevisionsUsed: revisionsUsed,
		Status:        insight.StatusValidating,
	}
}

func TestValidateApproves(t *testing.T) {
	v := newValidator(review(0.9, 0.9, 0.85, 0.9), nil, 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityStandard, 0), goodDraft())

	require.Equal(t, insight.DecisionApprove, verdict.Decision)
	require.GreaterOrEqual(t, verdict.Quality, 0.85)
	require.Empty(t, verdict.Feedback)
}

func TestValidateRevisesBelowThreshold(t *testing.T) {
	v := newValidator(review(0.8, 0.7, 0.7, 0.9), nil, 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityStandard, 0), goodDraft())

	require.Equal(t, insight.DecisionRevise, verdict.Decision)
	require.NotEmpty(t, verdict.Feedback)
}

func TestValidateMinAxisGate(t *testing.T) {
	// Aggregate clears the threshold, but one axis sits under the floor.
	v := newValidator(review(1, 1, 1, 0.5), nil, 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexitySimple, 0), goodDraft())

	require.GreaterOrEqual(t, verdict.Quality, 0.80)
	require.Equal(t, insight.DecisionRevise, verdict.Decision)

	found := false
	for _, fb := range verdict.Feedback {
		if strings.Contains(fb, "compliance") {
			found = true
		}
	}
	require.True(t, found, "feedback names the failing axis: %v", verdict.Feedback)
}

func TestValidateRejectsAtRevisionCap(t *testing.T) {
	v := newValidator(review(0.5, 0.5, 0.5, 0.5), nil, 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityCritical, 2), goodDraft())
	require.Equal(t, insight.DecisionReject, verdict.Decision)
}

func TestValidateZeroRevisionBudgetRejectsImmediately(t *testing.T) {
	v := newValidator(review(0.5, 0.5, 0.5, 0.5), nil, 0)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityStandard, 0), goodDraft())
	require.Equal(t, insight.DecisionReject, verdict.Decision)
}

func TestValidateThresholdPerComplexity(t *testing.T) {
	// 0.92 aggregate: approvable for complex, not for critical.
	resp := review(0.92, 0.92, 0.92, 0.92)

	v := newValidator(resp, nil, 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityComplex, 0), goodDraft())
	require.Equal(t, insight.DecisionApprove, verdict.Decision)

	verdict = v.Validate(context.Background(), validatingTask(insight.ComplexityCritical, 0), goodDraft())
	require.Equal(t, insight.DecisionRevise, verdict.Decision)
}

func TestValidateModelDownFallsBackToCrossChecks(t *testing.T) {
	v := newValidator("", errors.New("connection refused"), 2)
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityStandard, 0), goodDraft())

	// Neutral review scores cannot clear the standard threshold, so the
	// decision degrades to revise rather than a crash or a false approve.
	require.Equal(t, insight.DecisionRevise, verdict.Decision)
}

func TestValidateCapsModelScores(t *testing.T) {
	// The model says everything is perfect, but the draft is empty.
	v := newValidator(review(1, 1, 1, 1), nil, 2)
	empty := &insight.Draft{Author: insight.SpecialistStandard}
	verdict := v.Validate(context.Background(), validatingTask(insight.ComplexityStandard, 0), empty)

	require.Equal(t, insight.DecisionRevise, verdict.Decision)
	require.Zero(t, verdict.Scores.DataAccuracy)
}
