package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Result codes for non-definition failures in bulk responses.
const (
	resultCodeInvalidState = "INVALID_STATE"
	resultCodeNotFound     = "NOT_FOUND"
	resultCodeInternal     = "INTERNAL_ERROR"
)

// BulkItemResult reports the outcome of one item in a bulk operation.
type BulkItemResult struct {
	ID        uuid.UUID
	OK        bool
	ErrorCode string
}

func bulkOK(id uuid.UUID) BulkItemResult {
	return BulkItemResult{ID: id, OK: true}
}

func bulkFailed(id uuid.UUID, err error) BulkItemResult {
	res := BulkItemResult{ID: id}
	var defErr *DefinitionError
	var stateErr *InvalidStateError
	switch {
	case errors.As(err, &defErr):
		res.ErrorCode = string(defErr.Code)
	case errors.As(err, &stateErr):
		res.ErrorCode = resultCodeInvalidState
	case errors.Is(err, ErrStateNotRequestable):
		res.ErrorCode = resultCodeInvalidState
	case errors.Is(err, ErrTimerNotFound):
		res.ErrorCode = resultCodeNotFound
	default:
		res.ErrorCode = resultCodeInternal
	}
	return res
}

// BulkCreate creates many timers, one result per input in input order. One
// item's validation failure never aborts the others, and each item's changes
// are all-or-nothing.
func (e *Engine) BulkCreate(ctx context.Context, items []CreateArgs) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(items))
	for _, args := range items {
		t, err := e.CreateTimer(ctx, args)
		if err != nil {
			id := uuid.Nil
			if args.ID != nil {
				id = *args.ID
			}
			results = append(results, bulkFailed(id, err))
			continue
		}
		results = append(results, bulkOK(t.ID))
	}
	return results
}

// BulkDelete deletes many timers independently.
func (e *Engine) BulkDelete(ctx context.Context, ids []uuid.UUID) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(ids))
	for _, id := range ids {
		if err := e.DeleteTimer(ctx, id); err != nil {
			results = append(results, bulkFailed(id, err))
			continue
		}
		results = append(results, bulkOK(id))
	}
	return results
}

// DescriptionUpdate is one item of a bulk description update.
type DescriptionUpdate struct {
	ID   uuid.UUID
	Name *string
	Note *string
}

// BulkUpdateDescription updates descriptive fields on many timers.
func (e *Engine) BulkUpdateDescription(ctx context.Context, updates []DescriptionUpdate) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(updates))
	for _, u := range updates {
		if err := e.UpdateDescription(ctx, u.ID, u.Name, u.Note); err != nil {
			results = append(results, bulkFailed(u.ID, err))
			continue
		}
		results = append(results, bulkOK(u.ID))
	}
	return results
}

// StateUpdate is one item of a bulk state-change request.
type StateUpdate struct {
	ID    uuid.UUID
	State State
}

// BulkUpdateState applies explicit state-change requests to many timers.
func (e *Engine) BulkUpdateState(ctx context.Context, updates []StateUpdate) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(updates))
	for _, u := range updates {
		if err := e.UpdateState(ctx, u.ID, u.State); err != nil {
			results = append(results, bulkFailed(u.ID, err))
			continue
		}
		results = append(results, bulkOK(u.ID))
	}
	return results
}

// ScheduleUpdate is one item of a bulk schedule replacement.
type ScheduleUpdate struct {
	ID         uuid.UUID
	Definition Definition
}

// BulkUpdateSchedule replaces the schedule on many timers.
func (e *Engine) BulkUpdateSchedule(ctx context.Context, updates []ScheduleUpdate) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(updates))
	for _, u := range updates {
		if err := e.UpdateSchedule(ctx, u.ID, u.Definition); err != nil {
			results = append(results, bulkFailed(u.ID, err))
			continue
		}
		results = append(results, bulkOK(u.ID))
	}
	return results
}
