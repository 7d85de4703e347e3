package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deleteRacingStore flags the record for delete right before the first
// reschedule write goes through, standing in for a DeleteTimer that lands
// between the completion's snapshot and its state write.
type deleteRacingStore struct {
	*memStore
	once sync.Once
}

func (s *deleteRacingStore) CompleteRun(ctx context.Context, id uuid.UUID, lastRun time.Time, next *time.Time, to State) (bool, error) {
	if to == StateWaiting {
		s.once.Do(func() {
			_, _ = s.memStore.SetPendingDelete(ctx, id)
		})
	}
	return s.memStore.CompleteRun(ctx, id, lastRun, next, to)
}

func waitingTimer(t *testing.T, e *Engine, delaySeconds int64) *Timer {
	t.Helper()
	created, err := e.CreateTimer(context.Background(), CreateArgs{
		Definition: Definition{
			DelayType:         "FIXED_DELAY",
			FixedDelaySeconds: int64Ptr(delaySeconds),
			CycleType:         "FIXED_HOURS",
			CycleInterval:     intPtr(1),
		},
	})
	require.NoError(t, err)
	require.Equal(t, StateWaiting, created.State)
	return created
}

func TestSweepFiresAllDueTimers(t *testing.T) {
	store := newMemStore()
	sink := newRecordSink()
	e := newTestEngine(store, sink, baseTime)
	e.runCtx = context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, waitingTimer(t, e, 0).ID.String())
	}
	// Not yet due; must stay untouched.
	later := waitingTimer(t, e, 3600)

	e.sweep()
	e.wg.Wait()

	assert.Equal(t, 5, sink.count())
	assert.Equal(t, StateWaiting, stateOf(t, store, later.ID))

	fired := make(map[string]bool)
	sink.mu.Lock()
	for _, n := range sink.fired {
		fired[n.TimerID.String()] = true
	}
	sink.mu.Unlock()
	for _, id := range ids {
		assert.True(t, fired[id], "timer %s did not fire", id)
	}
}

func TestSweepEachDueTimerFiresOnce(t *testing.T) {
	store := newMemStore()
	sink := newRecordSink()
	e := newTestEngine(store, sink, baseTime)
	e.runCtx = context.Background()

	created, err := e.CreateTimer(context.Background(), CreateArgs{
		Definition: Definition{
			DelayType:         "FIXED_DELAY",
			FixedDelaySeconds: int64Ptr(0),
		},
	})
	require.NoError(t, err)

	// Concurrent dispatchers racing over one due record: the claim decides
	// a single winner.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sweep()
		}()
	}
	wg.Wait()
	e.wg.Wait()

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, StateDeleted, stateOf(t, store, created.ID))
}

func TestSweepIsolatesSinkFailures(t *testing.T) {
	store := newMemStore()
	sink := newRecordSink()
	e := newTestEngine(store, sink, baseTime)
	e.runCtx = context.Background()

	bad := waitingTimer(t, e, 0)
	good := waitingTimer(t, e, 0)
	sink.failFor[bad.ID] = errors.New("endpoint down")

	e.sweep()
	e.wg.Wait()

	// Both fired, and the failed delivery still rescheduled its timer.
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, StateWaiting, stateOf(t, store, bad.ID))
	assert.Equal(t, StateWaiting, stateOf(t, store, good.ID))

	stored, err := store.GetTimer(context.Background(), bad.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NextDueAt)
	assert.Equal(t, baseTime.Add(time.Hour), *stored.NextDueAt)
}

func TestStartStopLifecycle(t *testing.T) {
	store := newMemStore()
	sink := newRecordSink()

	e := NewEngine(store, sink, testLogger(), time.UTC, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := e.CreateTimer(ctx, CreateArgs{
		Definition: Definition{
			DelayType:         "FIXED_DELAY",
			FixedDelaySeconds: int64Ptr(0),
		},
	})
	require.NoError(t, err)

	e.Start(ctx)
	require.Eventually(t, func() bool {
		return stateOf(t, store, created.ID) == StateDeleted
	}, 2*time.Second, 5*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	e.Stop(stopCtx)

	assert.Equal(t, 1, sink.count())
}

func TestDeleteDuringCompletionRetires(t *testing.T) {
	store := &deleteRacingStore{memStore: newMemStore()}
	sink := newRecordSink()
	e := newTestEngine(store, sink, baseTime)
	e.runCtx = context.Background()

	// Hourly cycle, so the completion would normally reschedule.
	created := waitingTimer(t, e, 0)

	e.sweep()
	e.wg.Wait()

	// The accepted delete wins over the reschedule.
	assert.Equal(t, 1, sink.count())
	stored, err := store.GetTimer(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, stored.State)
	assert.False(t, stored.PendingDelete)
	assert.Nil(t, stored.NextDueAt)
}

func TestStopIsIdempotent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, newRecordSink(), testLogger(), time.UTC, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	e.Stop(stopCtx)
	require.NotPanics(t, func() { e.Stop(stopCtx) })
}

func TestDeletedWaitingTimerLeavesDueSet(t *testing.T) {
	store := newMemStore()
	sink := newRecordSink()
	e := newTestEngine(store, sink, baseTime)
	e.runCtx = context.Background()

	created := waitingTimer(t, e, 0)
	require.NoError(t, e.DeleteTimer(context.Background(), created.ID))

	e.sweep()
	e.wg.Wait()

	assert.Zero(t, sink.count())
	assert.Equal(t, StateDeleted, stateOf(t, store, created.ID))
}
