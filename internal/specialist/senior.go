package specialist

import (
	"fmt"
	"strings"

	"vendora/internal/insight"
	"vendora/internal/model"
	"vendora/internal/warehouse"
)

// seniorTemplates extend the standard reads with period aggregates suited to
// forecasting, anomaly detection, and multi-axis comparison.
var seniorTemplates = map[string]sourceTemplate{
	"sales": {
		sql: "SELECT strftime('%Y-%m', sale_date) AS month, model, SUM(units) AS units, SUM(revenue) AS revenue " +
			"FROM sales WHERE tenant_id = :tenant_id GROUP BY month, model ORDER BY month DESC",
		rowLimit: 2000,
	},
	"inventory": {
		sql: "SELECT model, trim, days_on_lot, asking_price, acquired_price FROM inventory " +
			"WHERE tenant_id = :tenant_id ORDER BY days_on_lot DESC",
		rowLimit: 2000,
	},
	"service": {
		sql: "SELECT strftime('%Y-%m', service_date) AS month, category, SUM(orders) AS orders, SUM(revenue) AS revenue " +
			"FROM service_orders WHERE tenant_id = :tenant_id GROUP BY month, category ORDER BY month DESC",
		rowLimit: 2000,
	},
	"leads": {
		sql: "SELECT strftime('%Y-%m', created_date) AS month, channel, SUM(count) AS leads " +
			"FROM lead_summary WHERE tenant_id = :tenant_id GROUP BY month, channel ORDER BY month DESC",
		rowLimit: 2000,
	},
	"finance": {
		sql: "SELECT month, product, SUM(contracts) AS contracts, SUM(gross) AS gross " +
			"FROM finance_summary WHERE tenant_id = :tenant_id GROUP BY month, product ORDER BY month DESC",
		rowLimit: 2000,
	},
}

const seniorPromptHeader = `You are a senior dealership strategist handling a complex analytical
question. Using ONLY the data below, produce a rigorous analysis. Requirements:
- For any forecast: state the horizon, the method class (e.g. trend
  extrapolation, seasonal average), and a confidence band.
- Call out anomalies explicitly with the metric and period affected.
- For comparisons: use comparable time windows and say what they are.
- For rankings: state the ordering key.
Do not invent numbers; every metric must be derivable from the data shown.

Respond with ONLY a JSON object:
{
  "summary": "one-paragraph answer",
  "key_metrics": {"metric_name": 0},
  "insights": ["..."],
  "recommendations": [{"priority": "high|medium|low", "action": "..."}]
}`

func seniorPrompt(query, data string, feedback []string) string {
	var b strings.Builder
	b.WriteString(seniorPromptHeader)
	if len(feedback) > 0 {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, revisionHeader, "- "+strings.Join(feedback, "\n- "))
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s\n\nData:\n%s", query, data)
	return b.String()
}

// NewSenior builds the tier-2 analyst for complex and critical questions.
func NewSenior(modelClient *model.Client, wh warehouse.Runner, opts Options) Specialist {
	return &drafter{
		modelClient: modelClient,
		wh:          wh,
		opts:        opts,
		v: variant{
			kind:      insight.SpecialistSenior,
			templates: seniorTemplates,
			prompt:    seniorPrompt,
		},
	}
}
