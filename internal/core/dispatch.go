package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// dueBatchSize caps how many due records one tick pulls from the store.
// Anything beyond the cap is picked up by the following tick.
const dueBatchSize = 256

// Start launches the dispatch loop. ctx is used for all background store
// and sink calls; cancel it only after Stop has returned.
func (e *Engine) Start(ctx context.Context) {
	e.runCtx = ctx
	e.wg.Add(1)
	go e.loop()
}

// Stop halts the dispatch loop and waits for in-flight executions to
// complete, or for ctx to expire, whichever comes first. Safe to call
// more than once; overlapping shutdown paths share one close.
func (e *Engine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() { close(e.stop) })
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("engine stop timed out with executions in flight")
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep is one tick: scan for due WAITING records and hand each claimed one
// to its own goroutine. The tick itself never blocks on an execution, and
// one record's failure never interrupts the rest of the batch; a failed
// record simply stays due and is retried next tick.
func (e *Engine) sweep() {
	ctx := e.runCtx
	now := e.now()
	due, err := e.store.DueTimers(ctx, now, dueBatchSize)
	if err != nil {
		e.logger.Error("scan due timers", "err", err)
		return
	}
	for _, t := range due {
		claimed, err := e.store.ClaimDue(ctx, t.ID, now)
		if err != nil {
			e.logger.Error("claim timer", "timer_id", t.ID, "err", err)
			continue
		}
		if !claimed {
			// Another dispatcher won the race; not an error.
			continue
		}
		e.launch(t)
	}
}

// launch fires one execution on its own goroutine and feeds the completion
// back into the state machine.
func (e *Engine) launch(t *Timer) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx := e.ctxOrBackground()
		firedAt := e.now()
		n := Notification{
			TimerID: t.ID,
			FiredAt: firedAt,
		}
		if t.Name != nil {
			n.Name = *t.Name
		}
		if t.NotificationKey != nil {
			n.NotificationKey = *t.NotificationKey
		}
		if err := e.sink.Notify(ctx, n); err != nil {
			// An execution failure is recorded but does not suppress the
			// next cycle.
			e.logger.Warn("notify failed", "timer_id", t.ID, "err", err)
		}
		e.finishRun(ctx, t.ID)
	}()
}

func (e *Engine) ctxOrBackground() context.Context {
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// finishRun applies the RUNNING-to-WAITING/DELETED transition after an
// execution completes: set the last run instant, ask the cycle rule for the
// next occurrence and the deadline rule whether it is still allowed, and
// honor a delete requested while the run was in flight. The record is
// re-read so schedule updates made during the run take effect here.
func (e *Engine) finishRun(ctx context.Context, id uuid.UUID) {
	t, err := e.store.GetTimer(ctx, id)
	if err != nil {
		e.logger.Error("load timer after run", "timer_id", id, "err", err)
		return
	}

	completedAt := e.now()
	to := StateWaiting
	var nextPtr *time.Time

	next, ok := NextAfterCompletion(t.Schedule.Cycle, completedAt)
	switch {
	case t.PendingDelete:
		to = StateDeleted
	case !ok:
		// One-shot: ran once, retire.
		to = StateDeleted
	case PastDeadline(t.Schedule.Deadline, t.CreatedAt, next, completedAt):
		to = StateDeleted
	default:
		nextPtr = &next
	}

	applied, err := e.store.CompleteRun(ctx, id, completedAt, nextPtr, to)
	if err != nil {
		e.logger.Error("complete run", "timer_id", id, "err", err)
		return
	}
	if !applied && to == StateWaiting {
		// The reschedule guard failed. The only concurrent write that can
		// invalidate it is a delete flagged after the snapshot above, so
		// re-read and retire instead of rescheduling.
		re, rerr := e.store.GetTimer(ctx, id)
		if rerr != nil {
			e.logger.Error("reload timer after lost completion", "timer_id", id, "err", rerr)
			return
		}
		if re.State == StateRunning && re.PendingDelete {
			to = StateDeleted
			applied, err = e.store.CompleteRun(ctx, id, completedAt, nil, StateDeleted)
			if err != nil {
				e.logger.Error("complete run", "timer_id", id, "err", err)
				return
			}
		}
	}
	if !applied {
		e.logger.Warn("completion found timer no longer running", "timer_id", id)
		return
	}
	if to == StateDeleted {
		e.logger.Info("timer retired", "timer_id", id)
	}
}
