package warehouse

import "testing"

func TestValidateReadOnly(t *testing.T) {
	cases := []struct {
		name     string
		template string
		ok       bool
	}{
		{"plain select", "SELECT model, units FROM sales WHERE tenant_id = :tenant_id", true},
		{"cte", "WITH m AS (SELECT 1) SELECT * FROM m", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"lowercase", "select units from sales where tenant_id = :tenant_id", true},
		{"question placeholders", "SELECT units FROM sales WHERE tenant_id = ?", true},

		{"empty", "", false},
		{"insert", "INSERT INTO sales VALUES (1)", false},
		{"update", "UPDATE sales SET units = 0", false},
		{"delete", "DELETE FROM sales", false},
		{"drop", "DROP TABLE sales", false},
		{"pragma", "PRAGMA journal_mode = DELETE", false},
		{"attach", "ATTACH DATABASE 'x' AS y", false},
		{"piggybacked statement", "SELECT 1; DELETE FROM sales", false},
		{"embedded delete", "SELECT 1 WHERE EXISTS (DELETE FROM sales)", false},
		{"sprintf marker", "SELECT * FROM sales WHERE model = '%s'", false},
		{"template marker", "SELECT * FROM ${table}", false},
		{"concat marker", "SELECT * FROM sales WHERE model = '\"+model+\"'", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateReadOnly(tc.template)
			if tc.ok && err != nil {
				t.Fatalf("rejected valid template: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("accepted invalid template")
			}
		})
	}
}

func TestContainsWordBoundaries(t *testing.T) {
	// "created_date" must not trip the "create" keyword.
	if err := ValidateReadOnly("SELECT created_date FROM lead_summary WHERE tenant_id = :tenant_id"); err != nil {
		t.Fatalf("identifier containing a keyword rejected: %v", err)
	}
	// "updated_at" must not trip "update".
	if err := ValidateReadOnly("SELECT updated_at FROM sales WHERE tenant_id = :tenant_id"); err != nil {
		t.Fatalf("identifier containing a keyword rejected: %v", err)
	}
}
