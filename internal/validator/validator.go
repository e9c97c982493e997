// Package validator implements tier 3 of the pipeline: the four-axis quality
// gate. The model is consulted as an analytical aid, but score assembly is
// deterministic code: model scores are capped by cross-checks computed
// directly from the draft, then aggregated with fixed weights.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/model"
)

// Options tunes the gate.
type Options struct {
	Thresholds   map[insight.Complexity]float64
	MinAxisScore float64
	MaxRevisions int
}

// Verdict is the validator's decision for one draft.
type Verdict struct {
	Decision insight.Decision
	Scores   insight.AxisScores
	Quality  float64
	Feedback []string
}

// Validator scores drafts and gates approval.
type Validator struct {
	modelClient *model.Client
	opts        Options
}

// New creates the tier-3 validator.
func New(modelClient *model.Client, opts Options) *Validator {
	return &Validator{modelClient: modelClient, opts: opts}
}

// axisAssessment is the per-axis shape the review prompt yields.
type axisAssessment struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

type reviewPayload struct {
	DataAccuracy  axisAssessment `json:"data_accuracy"`
	Methodology   axisAssessment `json:"methodology"`
	BusinessLogic axisAssessment `json:"business_logic"`
	Compliance    axisAssessment `json:"compliance"`
}

// Validate scores the draft on the four axes and decides approve, revise, or
// reject. Reject is only issued once the revision budget is spent.
func (v *Validator) Validate(ctx context.Context, task *insight.Task, draft *insight.Draft) Verdict {
	caps, capIssues := crossChecks(task, draft)

	review, reviewIssues := v.modelReview(ctx, task, draft)

	scores := insight.AxisScores{
		DataAccuracy:  capped(review.DataAccuracy.Score, caps.DataAccuracy),
		Methodology:   capped(review.Methodology.Score, caps.Methodology),
		BusinessLogic: capped(review.BusinessLogic.Score, caps.BusinessLogic),
		Compliance:    capped(review.Compliance.Score, caps.Compliance),
	}
	quality := scores.Aggregate()
	threshold := v.threshold(task.Complexity)

	approvable := quality >= threshold && scores.Min() >= v.opts.MinAxisScore

	verdict := Verdict{Scores: scores, Quality: quality}
	switch {
	case approvable:
		verdict.Decision = insight.DecisionApprove
	case task.RevisionsUsed >= v.opts.MaxRevisions:
		verdict.Decision = insight.DecisionReject
	default:
		verdict.Decision = insight.DecisionRevise
	}

	if !approvable {
		verdict.Feedback = v.buildFeedback(scores, threshold, capIssues, reviewIssues)
	}

	logging.Validator("task %s: %s (quality=%.2f threshold=%.2f axes=%.2f/%.2f/%.2f/%.2f)",
		task.ID, verdict.Decision, quality, threshold,
		scores.DataAccuracy, scores.Methodology, scores.BusinessLogic, scores.Compliance)
	return verdict
}

// modelReview asks the model for per-axis assessments. When the model is
// unavailable the review degrades to a neutral score per axis, leaving the
// deterministic cross-checks in charge.
func (v *Validator) modelReview(ctx context.Context, task *insight.Task, draft *insight.Draft) (reviewPayload, map[string][]string) {
	issues := make(map[string][]string)

	raw, err := v.modelClient.Generate(ctx, buildReviewPrompt(task, draft), true)
	if err != nil {
		logging.Get(logging.CategoryValidator).Warnf("task %s: model review unavailable, scoring on cross-checks only: %v", task.ID, err)
		return neutralReview(), issues
	}

	var payload reviewPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logging.Get(logging.CategoryValidator).Warnf("task %s: unparseable review, scoring on cross-checks only", task.ID)
		return neutralReview(), issues
	}

	for axis, a := range map[string]axisAssessment{
		"data_accuracy":  payload.DataAccuracy,
		"methodology":    payload.Methodology,
		"business_logic": payload.BusinessLogic,
		"compliance":     payload.Compliance,
	} {
		if len(a.Issues) > 0 {
			issues[axis] = a.Issues
		}
	}
	return payload, issues
}

// neutralReview neither boosts nor sinks an axis; cross-check caps decide.
func neutralReview() reviewPayload {
	neutral := axisAssessment{Score: 0.75}
	return reviewPayload{
		DataAccuracy:  neutral,
		Methodology:   neutral,
		BusinessLogic: neutral,
		Compliance:    neutral,
	}
}

func (v *Validator) threshold(c insight.Complexity) float64 {
	if t, ok := v.opts.Thresholds[c]; ok {
		return t
	}
	return v.opts.Thresholds[insight.ComplexityStandard]
}

func capped(score, cap float64) float64 {
	if score > cap {
		score = cap
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// axisRemediation suggests the concrete fix for a weak axis.
var axisRemediation = map[string]string{
	"data_accuracy":  "cite the data source for each metric and keep values within the ranges read",
	"methodology":    "state the analysis method, forecast horizon, and comparison windows explicitly",
	"business_logic": "tie every recommendation to a supporting metric or insight",
	"compliance":     "remove personal data and keep advice within dealership operations",
}

// buildFeedback enumerates each weak axis with a remediation, then appends
// the specific issues the cross-checks and the model surfaced.
func (v *Validator) buildFeedback(scores insight.AxisScores, threshold float64, capIssues, reviewIssues map[string][]string) []string {
	perAxis := map[string]float64{
		"data_accuracy":  scores.DataAccuracy,
		"methodology":    scores.Methodology,
		"business_logic": scores.BusinessLogic,
		"compliance":     scores.Compliance,
	}

	axes := make([]string, 0, len(perAxis))
	for axis := range perAxis {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	var feedback []string
	for _, axis := range axes {
		score := perAxis[axis]
		if score >= threshold && score >= v.opts.MinAxisScore {
			continue
		}
		feedback = append(feedback, fmt.Sprintf("%s scored %.2f: %s", axis, score, axisRemediation[axis]))
		for _, issue := range capIssues[axis] {
			feedback = append(feedback, issue)
		}
		for _, issue := range reviewIssues[axis] {
			feedback = append(feedback, issue)
		}
	}
	if len(feedback) == 0 {
		feedback = append(feedback, fmt.Sprintf("aggregate quality %.2f below the %.2f threshold; strengthen the weakest axes", scores.Aggregate(), threshold))
	}
	return dedupe(feedback)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		key := strings.TrimSpace(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
