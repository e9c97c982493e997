// Package dispatch implements tier 1 of the pipeline: intent classification,
// specialist routing, and final response formatting.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/model"
)

// Classification is the dispatcher's routing decision for a task.
type Classification struct {
	Complexity  insight.Complexity
	DataSources []string
	Specialist  insight.SpecialistKind

	// Malformed is set when the model's output could not be used and the
	// standard defaults were applied instead.
	Malformed bool
}

// intentSignals is the small JSON object the classification prompt yields.
type intentSignals struct {
	Signals     []string `json:"signals"`
	DataSources []string `json:"data_sources"`
}

// Dispatcher routes tasks and formats approved drafts.
type Dispatcher struct {
	modelClient *model.Client
}

// New creates a dispatcher on top of the model façade.
func New(modelClient *model.Client) *Dispatcher {
	return &Dispatcher{modelClient: modelClient}
}

// Classify asks the model for intent signals and applies the rule table to
// assign complexity and a specialist. A malformed classification defaults to
// standard with a warning; classification_failed is surfaced only once the
// model façade's retries are exhausted.
func (d *Dispatcher) Classify(ctx context.Context, task *insight.Task) (Classification, error) {
	prompt := buildClassifyPrompt(task.Query, task.Context)

	raw, err := d.modelClient.Generate(ctx, prompt, true)
	if err != nil {
		if insight.KindOf(err) == insight.KindModelMalformed {
			logging.Get(logging.CategoryDispatch).Warnf("task %s: malformed classification, defaulting to standard", task.ID)
			return defaultClassification(), nil
		}
		return Classification{}, insight.WrapError(insight.KindClassificationFailed, err,
			"classification failed for task %s", task.ID)
	}

	var signals intentSignals
	if err := json.Unmarshal([]byte(raw), &signals); err != nil {
		logging.Get(logging.CategoryDispatch).Warnf("task %s: unparseable classification, defaulting to standard", task.ID)
		return defaultClassification(), nil
	}

	complexity := complexityFor(signals.Signals)
	cls := Classification{
		Complexity:  complexity,
		DataSources: normaliseSources(signals.DataSources),
		Specialist:  specialistFor(complexity),
	}
	logging.DispatchDebug("task %s classified %s -> %s specialist (sources=%v)",
		task.ID, cls.Complexity, cls.Specialist, cls.DataSources)
	return cls, nil
}

func defaultClassification() Classification {
	return Classification{
		Complexity:  insight.ComplexityStandard,
		DataSources: []string{"sales"},
		Specialist:  insight.SpecialistStandard,
		Malformed:   true,
	}
}

// complexityFor maps model signals onto the fixed rule table. The mapping is
// deterministic code, not model output.
func complexityFor(signals []string) insight.Complexity {
	set := make(map[string]bool, len(signals))
	for _, s := range signals {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}

	switch {
	case set["strategic"] || set["critical"]:
		return insight.ComplexityCritical
	case set["forecast"] || set["predict"] || set["prediction"] || set["anomaly"]:
		return insight.ComplexityComplex
	case set["aggregation"] || set["listing"] || set["comparison"] || set["ranking"] || set["trend"]:
		return insight.ComplexityStandard
	case set["lookup"] || set["single_metric"]:
		return insight.ComplexitySimple
	default:
		return insight.ComplexityStandard
	}
}

func specialistFor(c insight.Complexity) insight.SpecialistKind {
	if c == insight.ComplexityComplex || c == insight.ComplexityCritical {
		return insight.SpecialistSenior
	}
	return insight.SpecialistStandard
}

// knownSources is the closed set of warehouse subject areas.
var knownSources = map[string]bool{
	"sales":     true,
	"inventory": true,
	"service":   true,
	"leads":     true,
	"finance":   true,
}

func normaliseSources(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if knownSources[s] && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []string{"sales"}
	}
	sort.Strings(out)
	return out
}

// Format produces the caller-visible response for an approved draft. It is a
// pure function of its inputs: calling it twice yields equal responses.
func (d *Dispatcher) Format(task *insight.Task, draft *insight.Draft) (*insight.Response, error) {
	if draft == nil || draft.QualityScore == nil {
		return nil, errors.New("format requires a validated draft")
	}

	resp := &insight.Response{
		Summary:         draft.Content.Summary,
		Detailed:        draft.Content,
		ConfidenceLevel: insight.ConfidenceFor(*draft.QualityScore),
		Visualization:   suggestVisualization(task, draft),
		Metadata: insight.Metadata{
			TaskID:           task.ID,
			Complexity:       task.Complexity,
			ProcessingTimeMs: task.UpdatedAt.Sub(task.CreatedAt).Milliseconds(),
			RevisionsUsed:    task.RevisionsUsed,
		},
	}
	return resp.Clone(), nil
}
