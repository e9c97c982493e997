// Package specialist implements tier 2 of the pipeline: the Standard and
// Senior analysts that read the warehouse, prompt the model, and produce
// drafts. Both variants share one drafting procedure and differ in their
// query templates and prompt framing.
package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/model"
	"vendora/internal/warehouse"
)

// Specialist drafts an insight for a task, optionally revising against
// validator feedback.
type Specialist interface {
	Kind() insight.SpecialistKind
	Draft(ctx context.Context, task *insight.Task, feedback []string) (*insight.Draft, error)
}

// Options tunes drafting behaviour.
type Options struct {
	// MaxRowsInPrompt bounds how many raw rows per source reach the model;
	// anything beyond is summarised as aggregates.
	MaxRowsInPrompt int
}

// variant captures what distinguishes the two specialist kinds.
type variant struct {
	kind      insight.SpecialistKind
	templates map[string]sourceTemplate
	prompt    func(query, data string, feedback []string) string
}

// drafter is the shared drafting procedure parameterised by a variant.
type drafter struct {
	modelClient *model.Client
	wh          warehouse.Runner
	opts        Options
	v           variant
}

func (d *drafter) Kind() insight.SpecialistKind { return d.v.kind }

// sourceRead is the outcome of one warehouse read during drafting.
type sourceRead struct {
	source   string
	template string
	result   *warehouse.ResultSet
	err      error
}

// Draft runs the variant's procedure:
//
//  1. plan parameterised reads from the task's data sources
//  2. execute them concurrently through the warehouse façade
//  3. prompt the model with the rows (bounded, excess summarised)
//  4. parse the JSON draft and score self-confidence
//
// If every read fails the draft comes back empty with a partial_data error
// alongside it, leaving the reject decision to the validator. Model failure
// after façade retries produces no draft and a specialist_failed error.
func (d *drafter) Draft(ctx context.Context, task *insight.Task, feedback []string) (*insight.Draft, error) {
	reads := d.executeReads(ctx, task)

	var (
		available []sourceRead
		missing   int
		truncated bool
	)
	for _, r := range reads {
		if r.err != nil {
			missing++
			logging.Get(logging.CategorySpecialist).Warnf("task %s: read of %s failed: %v", task.ID, r.source, r.err)
			continue
		}
		if r.result.Truncated {
			truncated = true
		}
		available = append(available, r)
	}

	if len(available) == 0 {
		// Nothing to analyse. Emit an empty draft and let the validator
		// reject it on data accuracy.
		empty := &insight.Draft{Author: d.v.kind, SelfConfidence: 0}
		return empty, insight.NewError(insight.KindPartialData,
			"all %d warehouse reads failed for task %s", len(reads), task.ID)
	}

	data := d.renderData(available)
	prompt := d.v.prompt(task.Query, data, feedback)

	res, err := d.modelClient.GenerateWithInfo(ctx, prompt, true)
	if err != nil {
		return nil, insight.WrapError(insight.KindSpecialistFailed, err,
			"%s specialist produced no draft for task %s", d.v.kind, task.ID)
	}

	content, changes, err := parseDraftPayload(res.Text)
	if err != nil {
		return nil, insight.WrapError(insight.KindSpecialistFailed, err,
			"%s specialist returned an unusable draft for task %s", d.v.kind, task.ID)
	}

	draft := &insight.Draft{
		Author:  d.v.kind,
		Content: content,
		Changes: changes,
	}
	for _, r := range available {
		draft.QueriesExecuted = append(draft.QueriesExecuted, insight.QueryExecution{
			Source:    r.source,
			Template:  r.template,
			Rows:      len(r.result.Rows),
			Truncated: r.result.Truncated,
		})
	}
	draft.SelfConfidence = selfConfidence(missing, truncated, res.Attempts > 1)

	// A revision must reference every issue it was asked to fix, either in
	// updated content or in the changes record.
	if len(feedback) > 0 {
		ensureChanges(draft, feedback)
	}

	logging.SpecialistDebug("task %s: %s draft ready (confidence=%.2f, sources=%d/%d)",
		task.ID, d.v.kind, draft.SelfConfidence, len(available), len(reads))

	var partial error
	if missing > 0 {
		partial = insight.NewError(insight.KindPartialData,
			"%d of %d warehouse reads failed for task %s", missing, len(reads), task.ID)
	}
	return draft, partial
}

// executeReads fans the per-source reads out concurrently. Individual
// failures are captured per read, never aborting the group.
func (d *drafter) executeReads(ctx context.Context, task *insight.Task) []sourceRead {
	sources := task.DataSources
	if len(sources) == 0 {
		sources = []string{"sales"}
	}

	reads := make([]sourceRead, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		tmpl, ok := d.v.templates[source]
		if !ok {
			reads[i] = sourceRead{source: source, err: fmt.Errorf("no template for source %q", source)}
			continue
		}
		i, source, tmpl := i, source, tmpl
		g.Go(func() error {
			res, err := d.wh.Run(gctx, tmpl.sql, map[string]any{"tenant_id": task.TenantID}, tmpl.rowLimit)
			reads[i] = sourceRead{source: source, template: tmpl.sql, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return reads
}

// renderData formats row sets for the prompt, keeping at most
// MaxRowsInPrompt rows per source and summarising the remainder.
func (d *drafter) renderData(reads []sourceRead) string {
	var b strings.Builder
	for _, r := range reads {
		fmt.Fprintf(&b, "### %s (%d rows", r.source, len(r.result.Rows))
		if r.result.Truncated {
			b.WriteString(", truncated")
		}
		b.WriteString(")\n")
		b.WriteString(strings.Join(r.result.Columns, " | "))
		b.WriteByte('\n')

		limit := d.opts.MaxRowsInPrompt
		if limit <= 0 {
			limit = 200
		}
		for i, row := range r.result.Rows {
			if i >= limit {
				b.WriteString(summariseOverflow(r.result, limit))
				break
			}
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = fmt.Sprint(v)
			}
			b.WriteString(strings.Join(cells, " | "))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// summariseOverflow renders rows beyond the prompt budget as per-column
// aggregates instead of raw data.
func summariseOverflow(res *warehouse.ResultSet, from int) string {
	rest := res.Rows[from:]
	var b strings.Builder
	fmt.Fprintf(&b, "... %d further rows summarised: ", len(rest))
	for col := range res.Columns {
		min, max, sum, n := 0.0, 0.0, 0.0, 0
		for _, row := range rest {
			f, ok := toFloat(row[col])
			if !ok {
				continue
			}
			if n == 0 || f < min {
				min = f
			}
			if n == 0 || f > max {
				max = f
			}
			sum += f
			n++
		}
		if n > 0 {
			fmt.Fprintf(&b, "%s[min=%.2f max=%.2f mean=%.2f] ", res.Columns[col], min, max, sum/float64(n))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// selfConfidence scores the draft from drafting conditions: start at 0.9,
// minus 0.2 per missing source, 0.1 for any truncation, 0.15 if the model
// needed a retry.
func selfConfidence(missingSources int, truncated, retried bool) float64 {
	score := 0.9
	score -= 0.2 * float64(missingSources)
	if truncated {
		score -= 0.1
	}
	if retried {
		score -= 0.15
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ensureChanges guarantees every feedback issue is referenced by the draft,
// recording an explicit entry for anything the model left implicit.
func ensureChanges(draft *insight.Draft, feedback []string) {
	if draft.Changes == nil {
		draft.Changes = make(map[string]string, len(feedback))
	}
	for _, issue := range feedback {
		if _, ok := draft.Changes[issue]; ok {
			continue
		}
		if referencedInContent(draft.Content, issue) {
			draft.Changes[issue] = "addressed in updated content"
			continue
		}
		draft.Changes[issue] = "not explicitly addressed"
	}
}

// referencedInContent looks for significant words of the issue in the
// updated content.
func referencedInContent(content insight.DraftContent, issue string) bool {
	haystack := strings.ToLower(content.Summary + " " + strings.Join(content.Insights, " "))
	for _, word := range strings.Fields(strings.ToLower(issue)) {
		if len(word) < 5 {
			continue
		}
		if strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}

// parseDraftPayload decodes the model's JSON draft, coercing metric values
// to scalars and splitting out the revision changes record.
func parseDraftPayload(raw string) (insight.DraftContent, map[string]string, error) {
	var payload struct {
		Summary         string                   `json:"summary"`
		KeyMetrics      map[string]any           `json:"key_metrics"`
		Insights        []string                 `json:"insights"`
		Recommendations []insight.Recommendation `json:"recommendations"`
		Changes         map[string]string        `json:"changes"`
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return insight.DraftContent{}, nil, fmt.Errorf("draft payload is not valid JSON: %w", err)
	}

	content := insight.DraftContent{
		Summary:         strings.TrimSpace(payload.Summary),
		Insights:        payload.Insights,
		Recommendations: payload.Recommendations,
	}
	if len(payload.KeyMetrics) > 0 {
		content.KeyMetrics = make(map[string]float64, len(payload.KeyMetrics))
		for k, v := range payload.KeyMetrics {
			if f, ok := toFloat(v); ok {
				content.KeyMetrics[k] = f
			}
		}
	}
	if content.Empty() {
		return insight.DraftContent{}, nil, fmt.Errorf("draft payload carries no content")
	}
	return content, payload.Changes, nil
}
