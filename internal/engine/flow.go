package engine

import (
	"context"
	"time"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

// runTask creates the task record and drives it through the state machine,
// converting deadline expiry into a timed_out terminal state.
func (e *Engine) runTask(ctx context.Context, req Request, fingerprint string) (*insight.Response, error) {
	timeout := e.effectiveTimeout(req.Timeout)
	started := time.Now()
	deadline := started.Add(timeout)

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	task := e.deps.Store.Create(req.Query, req.TenantID, req.Context, fingerprint, deadline)
	e.emit(Event{Type: EventTaskCreated, TaskID: task.ID})
	logging.Engine("task %s accepted (tenant=%s timeout=%s)", task.ID, req.TenantID, timeout)

	resp, err := e.drive(ctx, task.ID)
	elapsed := time.Since(started)

	if err != nil {
		// Deadline expiry wins over whatever stage error it surfaced as.
		if ctx.Err() == context.DeadlineExceeded {
			e.terminate(task.ID, insight.StatusTimedOut, insight.KindTimedOut, "query deadline exceeded")
			e.metrics.finished(insight.StatusTimedOut, e.complexityOf(task.ID), elapsed, 0)
			tErr := insight.NewError(insight.KindTimedOut, "query timed out after %s", elapsed.Round(time.Millisecond))
			tErr.TaskID = task.ID
			tErr.ElapsedMs = elapsed.Milliseconds()
			return nil, tErr
		}
		if typed := insight.AsError(err); typed != nil && typed.TaskID == "" {
			typed.TaskID = task.ID
		}
		return nil, err
	}

	e.metrics.finished(insight.StatusDelivered, resp.Metadata.Complexity, elapsed, resp.Metadata.RevisionsUsed)
	return resp, nil
}

// drive walks one task through classify -> draft -> validate with the
// bounded revision loop, then formats and caches the approved result.
func (e *Engine) drive(ctx context.Context, taskID string) (*insight.Response, error) {
	// Tier 1: classification.
	task, err := e.transition(taskID, insight.StatusAnalyzing)
	if err != nil {
		return nil, e.abort(ctx, taskID, err)
	}
	e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusAnalyzing)})

	cls, err := e.deps.Dispatcher.Classify(ctx, task)
	if err != nil {
		return nil, e.abort(ctx, taskID, err)
	}

	task, err = e.deps.Store.Update(taskID, func(t *insight.Task) error {
		t.Complexity = cls.Complexity
		t.DataSources = cls.DataSources
		if cls.Malformed {
			t.RecordError(insight.KindClassificationMalformed, "classification defaulted to standard")
		}
		t.Status = insight.StatusGenerating
		return nil
	})
	if err != nil {
		return nil, e.abort(ctx, taskID, err)
	}
	e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusGenerating)})

	spec := e.specialistFor(cls.Specialist)

	// Tiers 2 and 3: the draft/validate loop.
	var feedback []string
	for {
		draft, derr := spec.Draft(ctx, task, feedback)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The deadline expired under the specialist; runTask converts
			// this into the timed_out terminal state.
			return nil, ctxErr
		}
		if derr != nil {
			switch insight.KindOf(derr) {
			case insight.KindPartialData:
				// Draft exists but is degraded; record and let the
				// validator decide.
				if _, uerr := e.deps.Store.Update(taskID, func(t *insight.Task) error {
					t.RecordError(insight.KindPartialData, derr.Error())
					return nil
				}); uerr != nil {
					return nil, e.abort(ctx, taskID, uerr)
				}
			default:
				return nil, e.abort(ctx, taskID, derr)
			}
		}

		task, err = e.deps.Store.Update(taskID, func(t *insight.Task) error {
			t.Drafts = append(t.Drafts, draft)
			t.Status = insight.StatusValidating
			return nil
		})
		if err != nil {
			return nil, e.abort(ctx, taskID, err)
		}
		e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusValidating)})

		verdict := e.deps.Validator.Validate(ctx, task, task.Drafts[len(task.Drafts)-1])
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		task, err = e.deps.Store.Update(taskID, func(t *insight.Task) error {
			d := t.Drafts[len(t.Drafts)-1]
			scores := verdict.Scores
			quality := verdict.Quality
			d.ValidationScores = &scores
			d.QualityScore = &quality
			d.ValidationFeedback = verdict.Feedback
			return nil
		})
		if err != nil {
			return nil, e.abort(ctx, taskID, err)
		}

		switch verdict.Decision {
		case insight.DecisionApprove:
			return e.deliver(ctx, taskID)

		case insight.DecisionRevise:
			task, err = e.deps.Store.Update(taskID, func(t *insight.Task) error {
				t.RevisionsUsed++
				t.Status = insight.StatusRevising
				return nil
			})
			if err != nil {
				return nil, e.abort(ctx, taskID, err)
			}
			task, err = e.transition(taskID, insight.StatusGenerating)
			if err != nil {
				return nil, e.abort(ctx, taskID, err)
			}
			feedback = verdict.Feedback
			e.emit(Event{Type: EventRevisionRequested, TaskID: taskID})
			logging.Engine("task %s: revision %d requested", taskID, task.RevisionsUsed)

		case insight.DecisionReject:
			task, err = e.deps.Store.Update(taskID, func(t *insight.Task) error {
				t.Status = insight.StatusRejected
				t.RecordError(insight.KindQualityRejected, "revision budget exhausted without an approvable draft")
				return nil
			})
			if err != nil {
				return nil, e.abort(ctx, taskID, err)
			}
			e.metrics.finished(insight.StatusRejected, task.Complexity, time.Since(task.CreatedAt), task.RevisionsUsed)
			e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusRejected)})

			rErr := insight.NewError(insight.KindQualityRejected, "draft quality below the %s threshold", task.Complexity)
			rErr.TaskID = taskID
			rErr.RevisionsUsed = task.RevisionsUsed
			rErr.LastFeedback = verdict.Feedback
			return nil, rErr
		}
	}
}

// deliver finalises an approved task: mark the winning draft, format the
// response, cache it, and transition to delivered.
func (e *Engine) deliver(ctx context.Context, taskID string) (*insight.Response, error) {
	task, err := e.deps.Store.Update(taskID, func(t *insight.Task) error {
		t.ValidatedDraft = t.Drafts[len(t.Drafts)-1]
		t.Status = insight.StatusApproved
		return nil
	})
	if err != nil {
		return nil, e.abort(ctx, taskID, err)
	}
	e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusApproved)})

	resp, err := e.deps.Dispatcher.Format(task, task.ValidatedDraft)
	if err != nil {
		return nil, e.abort(ctx, taskID, insight.WrapError(insight.KindPreconditionFailed, err, "formatting failed"))
	}

	e.deps.Cache.Store(task.Fingerprint, resp)

	if _, err := e.transition(taskID, insight.StatusDelivered); err != nil {
		return nil, e.abort(ctx, taskID, err)
	}
	e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(insight.StatusDelivered)})
	logging.Engine("task %s delivered (confidence=%s revisions=%d)", taskID, resp.ConfidenceLevel, resp.Metadata.RevisionsUsed)
	return resp, nil
}

// transition moves a task to the given status.
func (e *Engine) transition(taskID string, to insight.Status) (*insight.Task, error) {
	return e.deps.Store.Update(taskID, func(t *insight.Task) error {
		t.Status = to
		return nil
	})
}

// terminate force-moves a task to a terminal failure status, recording the
// reason. Errors here mean the task already terminated; they are logged only.
func (e *Engine) terminate(taskID string, status insight.Status, kind insight.ErrorKind, msg string) {
	if _, err := e.deps.Store.Update(taskID, func(t *insight.Task) error {
		t.Status = status
		t.RecordError(kind, msg)
		return nil
	}); err != nil {
		logging.EngineDebug("task %s: terminate to %s skipped: %v", taskID, status, err)
	}
	e.emit(Event{Type: EventStateChanged, TaskID: taskID, Message: string(status)})
}

// abort routes a stage failure. When the task deadline has already expired
// the raw error is passed up for runTask to convert into timed_out; anything
// else terminates the task as failed.
func (e *Engine) abort(ctx context.Context, taskID string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return err
	}
	return e.failTask(taskID, err)
}

// failTask marks the task failed (unless the error is itself user-facing
// flow state like quality_rejected, which is handled at its site) and
// returns the typed error for the caller.
func (e *Engine) failTask(taskID string, err error) error {
	kind := insight.KindOf(err)
	if kind == "" {
		kind = insight.KindPreconditionFailed
	}

	e.terminate(taskID, insight.StatusFailed, kind, err.Error())
	e.metrics.finished(insight.StatusFailed, e.complexityOf(taskID), 0, 0)
	logging.Get(logging.CategoryEngine).Errorf("task %s failed: %v", taskID, err)

	// precondition_failed is a programming error and never surfaces to
	// callers as-is.
	if kind == insight.KindPreconditionFailed {
		out := insight.NewError(insight.KindSpecialistFailed, "internal pipeline error")
		out.TaskID = taskID
		return out
	}
	if typed := insight.AsError(err); typed != nil {
		if typed.TaskID == "" {
			typed.TaskID = taskID
		}
		return typed
	}
	out := insight.WrapError(kind, err, "task processing failed")
	out.TaskID = taskID
	return out
}

func (e *Engine) complexityOf(taskID string) insight.Complexity {
	if t, err := e.deps.Store.Get(taskID); err == nil {
		return t.Complexity
	}
	return ""
}
