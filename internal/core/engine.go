package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimerNotFound is returned by Store implementations when no record
// matches the given id.
var ErrTimerNotFound = errors.New("timer not found")

// TimerFilter narrows list and count queries.
type TimerFilter struct {
	IDs     []uuid.UUID
	OwnerID *string
}

// Store abstracts the persistence layer used by the engine. The guarded
// transition methods are conditional writes keyed by id and expected prior
// state; they return false, not an error, when the record was not in the
// expected state, which is how concurrent dispatchers lose a claim race.
type Store interface {
	InsertTimer(ctx context.Context, t *Timer) error
	GetTimer(ctx context.Context, id uuid.UUID) (*Timer, error)
	ListTimers(ctx context.Context, filter TimerFilter) ([]*Timer, error)
	CountTimers(ctx context.Context, filter TimerFilter) (int, error)
	UpdateDescription(ctx context.Context, id uuid.UUID, name, note *string) error

	// DueTimers returns WAITING records with next_due_at <= now, soonest first.
	DueTimers(ctx context.Context, now time.Time, limit int) ([]*Timer, error)

	// Guarded transitions.
	ClaimDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	CompleteRun(ctx context.Context, id uuid.UUID, lastRun time.Time, next *time.Time, to State) (bool, error)
	MarkDeleted(ctx context.Context, id uuid.UUID) (bool, error)
	SetPendingDelete(ctx context.Context, id uuid.UUID) (bool, error)
	ReplaceSchedule(ctx context.Context, t *Timer, expect State) (bool, error)
}

// Notification is handed to the Sink when a timer fires.
type Notification struct {
	TimerID         uuid.UUID
	Name            string
	NotificationKey string
	FiredAt         time.Time
}

// Sink delivers fired-timer notifications. Delivery guarantees are the
// sink's responsibility; the engine records the attempt and moves on.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Engine owns the timer lifecycle: it validates definitions, computes due
// instants, runs the dispatch loop and applies every state transition
// through the store's guarded writes.
type Engine struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	loc    *time.Location
	tick   time.Duration

	now func() time.Time

	runCtx   context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine constructs an engine with explicit dependencies. tick is the
// dispatch polling interval and bounds scheduling accuracy.
func NewEngine(store Store, sink Sink, logger *slog.Logger, loc *time.Location, tick time.Duration) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Engine{
		store:  store,
		sink:   sink,
		logger: logger,
		loc:    loc,
		tick:   tick,
		now:    func() time.Time { return time.Now().UTC() },
		stop:   make(chan struct{}),
	}
}

// CreateArgs carries everything needed to create one timer.
type CreateArgs struct {
	ID              *uuid.UUID
	Name            *string
	Note            *string
	GroupID         *uuid.UUID
	OwnerID         *string
	UnionCode       *string
	NotificationKey *string
	RunOnCreation   bool
	Definition      Definition
}

// CreateTimer validates the definition, computes the first due instant and
// persists the record. A definition whose first candidate run is already
// past its deadline is persisted directly as DELETED; run_on_creation with
// no delay rule launches one immediate execution instead of waiting for the
// next tick.
func (e *Engine) CreateTimer(ctx context.Context, args CreateArgs) (*Timer, error) {
	sched, err := ValidateDefinition(args.Definition)
	if err != nil {
		return nil, err
	}

	now := e.now()
	id := uuid.New()
	if args.ID != nil {
		id = *args.ID
	}
	t := &Timer{
		ID:              id,
		Name:            args.Name,
		Note:            args.Note,
		GroupID:         args.GroupID,
		OwnerID:         args.OwnerID,
		UnionCode:       args.UnionCode,
		NotificationKey: args.NotificationKey,
		RunOnCreation:   args.RunOnCreation,
		Schedule:        sched,
		State:           StateCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	first := FirstRun(sched.Delay, now, e.loc)
	immediate := t.RunOnCreation && sched.Delay.DelayKind() == DelayNone

	switch {
	case PastDeadline(sched.Deadline, now, first, now) && !immediate:
		// Never eligible: retire without ever entering WAITING.
		t.State = StateDeleted
	case immediate:
		t.State = StateRunning
	default:
		t.State = StateWaiting
		t.NextDueAt = &first
	}

	if err := e.store.InsertTimer(ctx, t); err != nil {
		return nil, fmt.Errorf("insert timer: %w", err)
	}
	if t.State == StateRunning {
		e.launch(t)
	}
	return t, nil
}

// DeleteTimer removes a timer from scheduling. A WAITING record is retired
// immediately; a RUNNING record finishes its in-flight execution but will
// not reschedule. Deleting a DELETED record is an InvalidStateError.
func (e *Engine) DeleteTimer(ctx context.Context, id uuid.UUID) error {
	t, err := e.store.GetTimer(ctx, id)
	if err != nil {
		return err
	}
	switch t.State {
	case StateDeleted:
		return &InvalidStateError{ID: id, State: t.State}
	case StateRunning:
		ok, err := e.store.SetPendingDelete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			// Completed in between; retire the rescheduled record.
			return e.retireWaiting(ctx, id)
		}
		return nil
	default:
		return e.retireWaiting(ctx, id)
	}
}

func (e *Engine) retireWaiting(ctx context.Context, id uuid.UUID) error {
	ok, err := e.store.MarkDeleted(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// Lost a race with a dispatcher claim.
	ok, err = e.store.SetPendingDelete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{ID: id, State: StateDeleted}
	}
	return nil
}

// UpdateDescription changes descriptive fields only; it never touches the
// schedule or the state.
func (e *Engine) UpdateDescription(ctx context.Context, id uuid.UUID, name, note *string) error {
	t, err := e.store.GetTimer(ctx, id)
	if err != nil {
		return err
	}
	if t.State == StateDeleted {
		return &InvalidStateError{ID: id, State: t.State}
	}
	return e.store.UpdateDescription(ctx, id, name, note)
}

// UpdateState applies an explicit state-change request. The engine owns the
// state machine, so the only target callers may request is DELETED.
func (e *Engine) UpdateState(ctx context.Context, id uuid.UUID, target State) error {
	if target != StateDeleted {
		return ErrStateNotRequestable
	}
	return e.DeleteTimer(ctx, id)
}

// UpdateSchedule replaces the delay/cycle/deadline triple. On a WAITING
// record the next due instant is recomputed from now; on a RUNNING record
// the new rules are persisted and recomputation waits for the in-flight
// execution to complete, which avoids racing the RUNNING-to-WAITING
// transition.
func (e *Engine) UpdateSchedule(ctx context.Context, id uuid.UUID, def Definition) error {
	sched, err := ValidateDefinition(def)
	if err != nil {
		return err
	}
	t, err := e.store.GetTimer(ctx, id)
	if err != nil {
		return err
	}
	switch t.State {
	case StateDeleted:
		return &InvalidStateError{ID: id, State: t.State}
	case StateRunning:
		t.Schedule = sched
		ok, err := e.store.ReplaceSchedule(ctx, t, StateRunning)
		if err != nil {
			return err
		}
		if !ok {
			// The run completed under us; fall through to the waiting path.
			return e.UpdateSchedule(ctx, id, def)
		}
		return nil
	default:
		now := e.now()
		first := FirstRun(sched.Delay, now, e.loc)
		if PastDeadline(sched.Deadline, t.CreatedAt, first, now) {
			return e.retireWaiting(ctx, id)
		}
		t.Schedule = sched
		t.NextDueAt = &first
		ok, err := e.store.ReplaceSchedule(ctx, t, StateWaiting)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{ID: id, State: t.State}
		}
		return nil
	}
}

// GetTimer returns the full record projection.
func (e *Engine) GetTimer(ctx context.Context, id uuid.UUID) (*Timer, error) {
	return e.store.GetTimer(ctx, id)
}

// ListTimers returns records matching the filter, newest first.
func (e *Engine) ListTimers(ctx context.Context, filter TimerFilter) ([]*Timer, error) {
	return e.store.ListTimers(ctx, filter)
}

// CountTimers returns the number of records matching the filter.
func (e *Engine) CountTimers(ctx context.Context, filter TimerFilter) (int, error) {
	return e.store.CountTimers(ctx, filter)
}

// Preview computes, without persisting anything, the first run of a
// definition and up to count-1 subsequent cycle occurrences.
func (e *Engine) Preview(def Definition, from time.Time, count int) ([]time.Time, error) {
	sched, err := ValidateDefinition(def)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		count = 1
	}
	times := make([]time.Time, 0, count)
	next := FirstRun(sched.Delay, from, e.loc)
	times = append(times, next)
	for len(times) < count {
		after, ok := NextAfterCompletion(sched.Cycle, next)
		if !ok || PastDeadline(sched.Deadline, from, after, after) {
			break
		}
		times = append(times, after)
		next = after
	}
	return times, nil
}
