package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"vendora/internal/logging"
)

// SQLiteBackend executes read templates against a SQLite dealership
// warehouse. Opened read-only; a write attempt surfaces as ErrAccessDenied.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the warehouse database at the given DSN.
func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set query_only: %w", err)
	}
	logging.Warehouse("opened sqlite warehouse at %s", dsn)
	return &SQLiteBackend{db: db}, nil
}

// Query runs the template with named parameters and collects up to limit rows.
func (b *SQLiteBackend) Query(ctx context.Context, template string, params map[string]any, limit int) (*ResultSet, error) {
	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, sql.Named(name, value))
	}

	rows, err := b.db.QueryContext(ctx, template, args...)
	if err != nil {
		if strings.Contains(err.Error(), "readonly") || strings.Contains(err.Error(), "query_only") {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &ResultSet{Columns: cols}
	for rows.Next() {
		if len(res.Rows) >= limit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }
