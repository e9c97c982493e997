package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

func init() {
	logging.InitializeNop()
}

// fakeBackend serves canned rows or errors.
type fakeBackend struct {
	rows  [][]any
	err   error
	block bool

	gotLimit int
}

func (f *fakeBackend) Query(ctx context.Context, template string, params map[string]any, limit int) (*ResultSet, error) {
	f.gotLimit = limit
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return &ResultSet{Columns: []string{"v"}, Rows: rows}, nil
}

func manyRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i}
	}
	return rows
}

func testOptions() Options {
	return Options{CallTimeout: time.Second, MaxRows: 100, MaxBytes: 1 << 20}
}

func TestRunRejectsUnsafeTemplate(t *testing.T) {
	c := NewClient(&fakeBackend{}, testOptions())
	_, err := c.Run(context.Background(), "DELETE FROM sales", nil, 10)
	if insight.KindOf(err) != insight.KindQueryInvalid {
		t.Fatalf("err = %v, want query_invalid", err)
	}
}

func TestRunRowCapTruncates(t *testing.T) {
	b := &fakeBackend{rows: manyRows(50)}
	c := NewClient(b, testOptions())

	res, err := c.Run(context.Background(), "SELECT v FROM sales WHERE tenant_id = :tenant_id", nil, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 10 || !res.Truncated {
		t.Fatalf("rows=%d truncated=%v, want 10 truncated", len(res.Rows), res.Truncated)
	}
	if b.gotLimit != 11 {
		t.Fatalf("backend limit = %d, want rowLimit+1", b.gotLimit)
	}
}

func TestRunUnderCapNotTruncated(t *testing.T) {
	c := NewClient(&fakeBackend{rows: manyRows(5)}, testOptions())
	res, err := c.Run(context.Background(), "SELECT v FROM sales WHERE tenant_id = :tenant_id", nil, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 5 || res.Truncated {
		t.Fatalf("rows=%d truncated=%v, want 5 untruncated", len(res.Rows), res.Truncated)
	}
}

func TestRunByteCap(t *testing.T) {
	big := strings.Repeat("x", 600)
	b := &fakeBackend{rows: [][]any{{big}, {big}, {big}}}
	opts := testOptions()
	opts.MaxBytes = 1000
	c := NewClient(b, opts)

	res, err := c.Run(context.Background(), "SELECT v FROM sales WHERE tenant_id = :tenant_id", nil, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 || !res.Truncated {
		t.Fatalf("rows=%d truncated=%v, want 1 truncated", len(res.Rows), res.Truncated)
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want insight.ErrorKind
	}{
		{"unavailable", errors.New("connection refused"), insight.KindWarehouseUnavailable},
		{"access denied", ErrAccessDenied, insight.KindAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(&fakeBackend{err: tc.err}, testOptions())
			_, err := c.Run(context.Background(), "SELECT 1", nil, 10)
			if insight.KindOf(err) != tc.want {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestRunTimeout(t *testing.T) {
	opts := testOptions()
	opts.CallTimeout = 30 * time.Millisecond
	c := NewClient(&fakeBackend{block: true}, opts)

	start := time.Now()
	_, err := c.Run(context.Background(), "SELECT 1", nil, 10)
	if insight.KindOf(err) != insight.KindQueryTimeout {
		t.Fatalf("err = %v, want query_timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not enforced")
	}
}
