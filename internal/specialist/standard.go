package specialist

import (
	"fmt"
	"strings"

	"vendora/internal/insight"
	"vendora/internal/model"
	"vendora/internal/warehouse"
)

// sourceTemplate binds a subject area to its parameterised read.
type sourceTemplate struct {
	sql      string
	rowLimit int
}

// standardTemplates are the basic per-source reads: recent activity scoped to
// the tenant, enough for aggregation, trends, and ranking.
var standardTemplates = map[string]sourceTemplate{
	"sales": {
		sql:      "SELECT sale_date, model, units, revenue FROM sales WHERE tenant_id = :tenant_id ORDER BY sale_date DESC",
		rowLimit: 1000,
	},
	"inventory": {
		sql:      "SELECT model, trim, days_on_lot, asking_price FROM inventory WHERE tenant_id = :tenant_id ORDER BY days_on_lot DESC",
		rowLimit: 1000,
	},
	"service": {
		sql:      "SELECT service_date, category, orders, revenue FROM service_orders WHERE tenant_id = :tenant_id ORDER BY service_date DESC",
		rowLimit: 1000,
	},
	"leads": {
		sql:      "SELECT created_date, channel, status, count FROM lead_summary WHERE tenant_id = :tenant_id ORDER BY created_date DESC",
		rowLimit: 1000,
	},
	"finance": {
		sql:      "SELECT month, product, contracts, gross FROM finance_summary WHERE tenant_id = :tenant_id ORDER BY month DESC",
		rowLimit: 1000,
	},
}

const standardPromptHeader = `You are a dealership business analyst. Using ONLY the data below,
answer the question with aggregations, trends, and rankings as appropriate.
Do not invent numbers; every metric must be derivable from the data shown.

Respond with ONLY a JSON object:
{
  "summary": "one-paragraph answer",
  "key_metrics": {"metric_name": 0},
  "insights": ["..."],
  "recommendations": [{"priority": "high|medium|low", "action": "..."}]
}`

const revisionHeader = `This is a REVISION. A reviewer rejected the previous draft.
Address EVERY issue below and record how in a "changes" object
({"issue": "how it was addressed"}). Keep everything that was already correct.

Issues:
%s`

func standardPrompt(query, data string, feedback []string) string {
	var b strings.Builder
	b.WriteString(standardPromptHeader)
	if len(feedback) > 0 {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, revisionHeader, "- "+strings.Join(feedback, "\n- "))
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s\n\nData:\n%s", query, data)
	return b.String()
}

// NewStandard builds the tier-2 analyst for simple and standard questions.
func NewStandard(modelClient *model.Client, wh warehouse.Runner, opts Options) Specialist {
	return &drafter{
		modelClient: modelClient,
		wh:          wh,
		opts:        opts,
		v: variant{
			kind:      insight.SpecialistStandard,
			templates: standardTemplates,
			prompt:    standardPrompt,
		},
	}
}
