// Package model abstracts the generative model behind a text-in/text-out
// façade with bounded retry, per-call wall-clock caps, and strict-JSON
// extraction. The flow engine and the pipeline tiers depend only on the
// façade; providers plug in underneath as TextCompleter implementations.
package model

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

// TextCompleter is the provider-side contract: one prompt in, one completion
// out. Implementations must honour context cancellation.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options tunes the façade's retry and timeout policy.
type Options struct {
	CallTimeout time.Duration // cap on total wall time per Generate call
	MaxAttempts int           // attempts per call, >= 1
	BackoffBase time.Duration // first retry delay
	BackoffMax  time.Duration // backoff ceiling
}

// Client is the model façade.
type Client struct {
	completer TextCompleter
	opts      Options
}

// Result carries a completion plus facts about how it was obtained.
type Result struct {
	Text     string
	Attempts int
}

// NewClient wraps a provider completer in the façade policy.
func NewClient(completer TextCompleter, opts Options) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Second
	}
	return &Client{completer: completer, opts: opts}
}

// Generate runs the prompt through the provider with the façade policy.
// With wantJSON set, the first balanced JSON object is extracted from the
// response, tolerating leading and trailing prose; failure to find one is a
// model_malformed error. Transport failures are retried with exponential
// backoff and jitter until attempts or the call deadline exhaust, then
// surface as model_unavailable.
func (c *Client) Generate(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	res, err := c.GenerateWithInfo(ctx, prompt, wantJSON)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// GenerateWithInfo is Generate plus attempt accounting, for callers whose
// confidence heuristics care whether a retry was needed.
func (c *Client) GenerateWithInfo(ctx context.Context, prompt string, wantJSON bool) (Result, error) {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, c.backoff(attempt-1)); err != nil {
				break
			}
			logging.ModelDebug("retrying model call, attempt %d/%d", attempt, c.opts.MaxAttempts)
		}

		text, err := c.completer.Complete(ctx, prompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				lastErr = ctxErr
				break
			}
			lastErr = err
			continue
		}

		if wantJSON {
			extracted, ok := FirstJSONObject(text)
			if !ok {
				return Result{Attempts: attempt}, insight.NewError(insight.KindModelMalformed,
					"no balanced JSON object in model response (%d bytes)", len(text))
			}
			text = extracted
		}
		return Result{Text: strings.TrimSpace(text), Attempts: attempt}, nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	if errors.Is(lastErr, context.DeadlineExceeded) || errors.Is(lastErr, context.Canceled) {
		return Result{}, insight.WrapError(insight.KindModelUnavailable, lastErr, "model call cancelled or timed out")
	}
	return Result{}, insight.WrapError(insight.KindModelUnavailable, lastErr,
		"model unavailable after %d attempts", c.opts.MaxAttempts)
}

// backoff returns the delay before the (n+1)th attempt: exponential with
// full jitter, capped at BackoffMax.
func (c *Client) backoff(n int) time.Duration {
	d := c.opts.BackoffBase << uint(n-1)
	if d > c.opts.BackoffMax || d <= 0 {
		d = c.opts.BackoffMax
	}
	return time.Duration(rand.Int63n(int64(d)))
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
