// Package warehouse abstracts parameterised read-only query execution over
// dealership data. The façade validates templates structurally, enforces
// per-call timeouts and row/byte caps, and maps backend failures onto the
// pipeline's typed error kinds.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

// ErrAccessDenied is returned by backends when the warehouse refuses the
// caller's credentials or scope.
var ErrAccessDenied = errors.New("warehouse access denied")

// ResultSet is the outcome of one warehouse read.
type ResultSet struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Runner is the contract the pipeline consumes. The façade Client implements
// it; tests substitute deterministic stubs.
type Runner interface {
	Run(ctx context.Context, template string, params map[string]any, rowLimit int) (*ResultSet, error)
}

// Backend executes a validated template. It must honour context cancellation
// and should return at most limit rows.
type Backend interface {
	Query(ctx context.Context, template string, params map[string]any, limit int) (*ResultSet, error)
}

// Options tunes the façade caps.
type Options struct {
	CallTimeout time.Duration
	MaxRows     int
	MaxBytes    int
}

// Client is the warehouse façade.
type Client struct {
	backend Backend
	opts    Options
}

// NewClient wraps a backend in the façade policy.
func NewClient(backend Backend, opts Options) *Client {
	return &Client{backend: backend, opts: opts}
}

// Run validates the template, executes it with a deadline, and applies the
// row and byte caps. On cap violation the truncated rows are returned with
// Truncated set rather than an error.
func (c *Client) Run(ctx context.Context, template string, params map[string]any, rowLimit int) (*ResultSet, error) {
	if err := ValidateReadOnly(template); err != nil {
		return nil, insight.WrapError(insight.KindQueryInvalid, err, "template rejected")
	}

	if rowLimit <= 0 || rowLimit > c.opts.MaxRows {
		rowLimit = c.opts.MaxRows
	}

	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	// Fetch one row past the cap so truncation is detectable.
	res, err := c.backend.Query(ctx, template, params, rowLimit+1)
	if err != nil {
		return nil, c.mapError(err)
	}

	if len(res.Rows) > rowLimit {
		res.Rows = res.Rows[:rowLimit]
		res.Truncated = true
	}
	c.applyByteCap(res)

	logging.WarehouseDebug("read %d rows (truncated=%v)", len(res.Rows), res.Truncated)
	return res, nil
}

// applyByteCap trims rows once their cumulative rendered size passes the
// byte budget.
func (c *Client) applyByteCap(res *ResultSet) {
	if c.opts.MaxBytes <= 0 {
		return
	}
	total := 0
	for i, row := range res.Rows {
		for _, v := range row {
			total += len(fmt.Sprint(v))
		}
		if total > c.opts.MaxBytes {
			res.Rows = res.Rows[:i]
			res.Truncated = true
			return
		}
	}
}

func (c *Client) mapError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return insight.WrapError(insight.KindQueryTimeout, err, "warehouse read timed out")
	case errors.Is(err, context.Canceled):
		return insight.WrapError(insight.KindQueryTimeout, err, "warehouse read cancelled")
	case errors.Is(err, ErrAccessDenied):
		return insight.WrapError(insight.KindAccessDenied, err, "warehouse refused access")
	default:
		return insight.WrapError(insight.KindWarehouseUnavailable, err, "warehouse read failed")
	}
}
