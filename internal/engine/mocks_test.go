package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"vendora/internal/cache"
	"vendora/internal/config"
	"vendora/internal/dispatch"
	"vendora/internal/logging"
	"vendora/internal/model"
	"vendora/internal/specialist"
	"vendora/internal/taskstore"
	"vendora/internal/validator"
	"vendora/internal/warehouse"
)

func init() {
	logging.InitializeNop()
}

// scriptedModel answers the three prompt shapes the pipeline issues. The
// prompts carry distinctive role headers, so routing on content is stable.
type scriptedModel struct {
	mu sync.Mutex

	classifyResponse string
	draftResponses   []string // consumed in order; last one repeats
	reviewResponses  []string // consumed in order; last one repeats

	classifyCalls int
	draftCalls    int
	reviewCalls   int
}

func (s *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(prompt, "intake router"):
		s.classifyCalls++
		return s.classifyResponse, nil
	case strings.Contains(prompt, "quality reviewer"):
		s.reviewCalls++
		return pick(s.reviewResponses, s.reviewCalls), nil
	default:
		s.draftCalls++
		return pick(s.draftResponses, s.draftCalls), nil
	}
}

func pick(responses []string, call int) string {
	if len(responses) == 0 {
		return ""
	}
	if call > len(responses) {
		return responses[len(responses)-1]
	}
	return responses[call-1]
}

func (s *scriptedModel) counts() (classify, draft, review int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifyCalls, s.draftCalls, s.reviewCalls
}

// stubWarehouse serves one canned result for every read, optionally blocking
// until the caller's deadline to exercise cancellation.
type stubWarehouse struct {
	mu        sync.Mutex
	block     bool
	cancelled int
	calls     int
}

func (s *stubWarehouse) Run(ctx context.Context, template string, params map[string]any, rowLimit int) (*warehouse.ResultSet, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
		return nil, ctx.Err()
	}
	return &warehouse.ResultSet{
		Columns: []string{"sale_date", "model", "units", "revenue"},
		Rows: [][]any{
			{"2026-06-01", "Sedan X", 12, 384000.0},
			{"2026-06-15", "Truck Z", 7, 413000.0},
			{"2026-06-20", "Hatch Y", 5, 110000.0},
		},
	}, nil
}

func (s *stubWarehouse) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Canned pipeline payloads.

const classifySimple = `{"signals":["single_metric","lookup"],"data_sources":["sales"]}`
const classifyStandard = `{"signals":["ranking","aggregation"],"data_sources":["sales"]}`
const classifyComplex = `{"signals":["forecast"],"data_sources":["sales"]}`
const classifyCritical = `{"signals":["strategic"],"data_sources":["sales"]}`

const draftRanked = `{
  "summary": "Top three models ranked by units: Sedan X, Truck Z, Hatch Y.",
  "key_metrics": {"sedan_x_units": 12, "truck_z_units": 7, "hatch_y_units": 5},
  "insights": ["Sedan X leads, ordered by units sold."],
  "recommendations": [{"priority": "medium", "action": "Keep Sedan X stocked."}]
}`

const draftForecastNoHorizon = `{
  "summary": "Revenue should keep growing.",
  "key_metrics": {"next_quarter_revenue": 1250000},
  "insights": ["Revenue is trending upward."],
  "recommendations": []
}`

const draftForecastComplete = `{
  "summary": "Forecast over a one-quarter horizon using trend extrapolation: revenue near 1.25M with a +/-8% confidence band.",
  "key_metrics": {"next_quarter_revenue": 1250000},
  "insights": ["Trend extrapolation over the last four quarters points up."],
  "recommendations": [{"priority": "high", "action": "Lock Q3 inventory orders early."}],
  "changes": {"state forecast horizon": "added one-quarter horizon", "include confidence band": "added +/-8% band"}
}`

func reviewAll(score float64) string {
	s := trimFloat(score)
	return `{"data_accuracy":{"score":` + s + `,"issues":[]},` +
		`"methodology":{"score":` + s + `,"issues":[]},` +
		`"business_logic":{"score":` + s + `,"issues":[]},` +
		`"compliance":{"score":` + s + `,"issues":[]}}`
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// harness bundles an engine with the handles tests inspect.
type harness struct {
	eng   *Engine
	store *taskstore.Store
	cache *cache.Cache
	model *scriptedModel
	wh    *stubWarehouse
}

func newHarness(t *testing.T, mutate func(*config.FlowConfig)) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Flow.QueryTimeout = config.Duration(5 * time.Second)
	if mutate != nil {
		mutate(&cfg.Flow)
	}

	sm := &scriptedModel{}
	modelClient := model.NewClient(sm, model.Options{
		CallTimeout: 2 * time.Second,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	})
	wh := &stubWarehouse{}

	store := taskstore.New(cfg.Flow.MaxRevisions)
	respCache := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL.Std())
	specOpts := specialist.Options{MaxRowsInPrompt: cfg.Flow.MaxRowsInPrompt}

	eng := New(cfg.Flow, cfg.Cache, Deps{
		Store:      store,
		Cache:      respCache,
		Dispatcher: dispatch.New(modelClient),
		Standard:   specialist.NewStandard(modelClient, wh, specOpts),
		Senior:     specialist.NewSenior(modelClient, wh, specOpts),
		Validator: validator.New(modelClient, validator.Options{
			Thresholds:   cfg.Flow.Thresholds,
			MinAxisScore: cfg.Flow.MinAxisScore,
			MaxRevisions: cfg.Flow.MaxRevisions,
		}),
	})
	t.Cleanup(eng.Close)

	return &harness{eng: eng, store: store, cache: respCache, model: sm, wh: wh}
}
