package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"timerd/internal/core"

	"github.com/google/uuid"
)

// InsertTimer persists a new record. The caller owns ID, State and NextDueAt.
func (s *Store) InsertTimer(ctx context.Context, t *core.Timer) error {
	def := t.Schedule.Flatten()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO timers (
			id, name, note, group_id, owner_id, union_code, notification_key, run_on_creation,
			delay_type, fixed_delay_seconds, computation_type, computation_day_time,
			computation_week_day, computation_month_day, computation_year_day, computation_datetime,
			cycle_type, cycle_interval, deadline_type, deadline_datetime, deadline_seconds,
			state, pending_delete, last_run_at, next_due_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID.String(), nullableString(t.Name), nullableString(t.Note), nullableUUID(t.GroupID),
		nullableString(t.OwnerID), nullableString(t.UnionCode), nullableString(t.NotificationKey),
		boolToInt(t.RunOnCreation),
		def.DelayType, nullableInt64(def.FixedDelaySeconds), nullableString(def.ComputationType),
		nullableTimeOfDay(def.ComputationDayTime), nullableInt(def.ComputationWeekDay),
		nullableInt(def.ComputationMonthDay), nullableInt(def.ComputationYearDay),
		nullableTime(def.ComputationDatetime),
		def.CycleType, nullableInt(def.CycleInterval),
		def.DeadlineType, nullableTime(def.DeadlineDatetime), nullableInt64(def.DeadlineSeconds),
		string(t.State), boolToInt(t.PendingDelete), nullableTime(t.LastRunAt), nullableUnixNano(t.NextDueAt),
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert timer: %w", err)
	}
	return nil
}

const timerColumns = `
	id, name, note, group_id, owner_id, union_code, notification_key, run_on_creation,
	delay_type, fixed_delay_seconds, computation_type, computation_day_time,
	computation_week_day, computation_month_day, computation_year_day, computation_datetime,
	cycle_type, cycle_interval, deadline_type, deadline_datetime, deadline_seconds,
	state, pending_delete, last_run_at, next_due_at, created_at, updated_at`

func (s *Store) GetTimer(ctx context.Context, id uuid.UUID) (*core.Timer, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+timerColumns+` FROM timers WHERE id = ?`, id.String())
	t, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTimerNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTimers(ctx context.Context, filter core.TimerFilter) ([]*core.Timer, error) {
	where, args := filterClause(filter)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+timerColumns+` FROM timers`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()
	var timers []*core.Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return timers, nil
}

func (s *Store) CountTimers(ctx context.Context, filter core.TimerFilter) (int, error) {
	where, args := filterClause(filter)
	var count int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM timers`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count timers: %w", err)
	}
	return count, nil
}

func (s *Store) UpdateDescription(ctx context.Context, id uuid.UUID, name, note *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE timers
		SET name = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, nullableString(name), nullableString(note), nowText(), id.String())
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrTimerNotFound
	}
	return nil
}

// DueTimers returns WAITING records due at or before now, soonest first.
func (s *Store) DueTimers(ctx context.Context, now time.Time, limit int) ([]*core.Timer, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+timerColumns+` FROM timers
		 WHERE state = ? AND next_due_at IS NOT NULL AND next_due_at <= ?
		 ORDER BY next_due_at ASC
		 LIMIT ?`, string(core.StateWaiting), now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due timers: %w", err)
	}
	defer rows.Close()
	var timers []*core.Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return timers, nil
}

// ClaimDue is the WAITING-to-RUNNING transition. The state predicate in the
// WHERE clause is what makes racing dispatchers resolve to exactly one
// winner: the loser's update matches zero rows.
func (s *Store) ClaimDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE timers
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ? AND next_due_at IS NOT NULL AND next_due_at <= ?
	`, string(core.StateRunning), nowText(), id.String(), string(core.StateWaiting), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("claim timer: %w", err)
	}
	return oneRow(res)
}

// CompleteRun is the RUNNING-to-WAITING/DELETED transition. A reschedule
// additionally requires pending_delete to be clear, so a delete accepted
// while the run was in flight can never be overwritten by the completion;
// the caller sees a lost guard and retires the record instead.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, lastRun time.Time, next *time.Time, to core.State) (bool, error) {
	query := `
		UPDATE timers
		SET state = ?, last_run_at = ?, next_due_at = ?, pending_delete = 0, updated_at = ?
		WHERE id = ? AND state = ?`
	if to == core.StateWaiting {
		query += ` AND pending_delete = 0`
	}
	res, err := s.DB.ExecContext(ctx, query,
		string(to), lastRun.UTC().Format(time.RFC3339Nano), nullableUnixNano(next), nowText(),
		id.String(), string(core.StateRunning))
	if err != nil {
		return false, fmt.Errorf("complete run: %w", err)
	}
	return oneRow(res)
}

// MarkDeleted retires a WAITING record.
func (s *Store) MarkDeleted(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE timers
		SET state = ?, next_due_at = NULL, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(core.StateDeleted), nowText(), id.String(), string(core.StateWaiting))
	if err != nil {
		return false, fmt.Errorf("mark deleted: %w", err)
	}
	return oneRow(res)
}

// SetPendingDelete flags a RUNNING record for retirement at completion.
func (s *Store) SetPendingDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE timers
		SET pending_delete = 1, updated_at = ?
		WHERE id = ? AND state = ?
	`, nowText(), id.String(), string(core.StateRunning))
	if err != nil {
		return false, fmt.Errorf("set pending delete: %w", err)
	}
	return oneRow(res)
}

// ReplaceSchedule persists a new rule triple and next due instant, guarded
// by the expected state.
func (s *Store) ReplaceSchedule(ctx context.Context, t *core.Timer, expect core.State) (bool, error) {
	def := t.Schedule.Flatten()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE timers
		SET delay_type = ?, fixed_delay_seconds = ?, computation_type = ?, computation_day_time = ?,
			computation_week_day = ?, computation_month_day = ?, computation_year_day = ?,
			computation_datetime = ?, cycle_type = ?, cycle_interval = ?,
			deadline_type = ?, deadline_datetime = ?, deadline_seconds = ?,
			next_due_at = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`,
		def.DelayType, nullableInt64(def.FixedDelaySeconds), nullableString(def.ComputationType),
		nullableTimeOfDay(def.ComputationDayTime), nullableInt(def.ComputationWeekDay),
		nullableInt(def.ComputationMonthDay), nullableInt(def.ComputationYearDay),
		nullableTime(def.ComputationDatetime),
		def.CycleType, nullableInt(def.CycleInterval),
		def.DeadlineType, nullableTime(def.DeadlineDatetime), nullableInt64(def.DeadlineSeconds),
		nullableUnixNano(t.NextDueAt), nowText(), t.ID.String(), string(expect))
	if err != nil {
		return false, fmt.Errorf("replace schedule: %w", err)
	}
	return oneRow(res)
}

func filterClause(filter core.TimerFilter) (string, []any) {
	var conds []string
	var args []any
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.IDs)), ", ")
		conds = append(conds, "id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id.String())
		}
	}
	if filter.OwnerID != nil {
		conds = append(conds, "owner_id = ?")
		args = append(args, *filter.OwnerID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanTimer(scanner interface {
	Scan(dest ...any) error
}) (*core.Timer, error) {
	var (
		id          string
		name        sql.NullString
		note        sql.NullString
		groupID     sql.NullString
		ownerID     sql.NullString
		unionCode   sql.NullString
		notifyKey   sql.NullString
		runOnCreate int

		delayType     string
		fixedDelay    sql.NullInt64
		compType      sql.NullString
		compDayTime   sql.NullString
		compWeekDay   sql.NullInt64
		compMonthDay  sql.NullInt64
		compYearDay   sql.NullInt64
		compDatetime  sql.NullString
		cycleType     string
		cycleInterval sql.NullInt64
		deadlineType  string
		deadlineAt    sql.NullString
		deadlineSecs  sql.NullInt64

		state         string
		pendingDelete int
		lastRun       sql.NullString
		nextDue       sql.NullInt64
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&id, &name, &note, &groupID, &ownerID, &unionCode, &notifyKey, &runOnCreate,
		&delayType, &fixedDelay, &compType, &compDayTime, &compWeekDay, &compMonthDay, &compYearDay,
		&compDatetime, &cycleType, &cycleInterval, &deadlineType, &deadlineAt, &deadlineSecs,
		&state, &pendingDelete, &lastRun, &nextDue, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan timer: %w", err)
	}

	timerID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse timer id %q: %w", id, err)
	}
	t := &core.Timer{
		ID:            timerID,
		RunOnCreation: runOnCreate != 0,
		State:         core.State(state),
		PendingDelete: pendingDelete != 0,
	}
	t.Name = stringPtr(name)
	t.Note = stringPtr(note)
	t.OwnerID = stringPtr(ownerID)
	t.UnionCode = stringPtr(unionCode)
	t.NotificationKey = stringPtr(notifyKey)
	if groupID.Valid {
		if gid, err := uuid.Parse(groupID.String); err == nil {
			t.GroupID = &gid
		}
	}

	def := core.Definition{
		DelayType:    delayType,
		CycleType:    cycleType,
		DeadlineType: deadlineType,
	}
	if fixedDelay.Valid {
		v := fixedDelay.Int64
		def.FixedDelaySeconds = &v
	}
	def.ComputationType = stringPtr(compType)
	if compDayTime.Valid {
		tod, err := core.ParseTimeOfDay(compDayTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse stored time of day: %w", err)
		}
		def.ComputationDayTime = &tod
	}
	def.ComputationWeekDay = intPtr(compWeekDay)
	def.ComputationMonthDay = intPtr(compMonthDay)
	def.ComputationYearDay = intPtr(compYearDay)
	def.ComputationDatetime = timePtr(compDatetime)
	def.CycleInterval = intPtr(cycleInterval)
	def.DeadlineDatetime = timePtr(deadlineAt)
	if deadlineSecs.Valid {
		v := deadlineSecs.Int64
		def.DeadlineSeconds = &v
	}

	// Rules were validated on the way in, so rebuilding the union from the
	// flat columns cannot fail for well-formed rows.
	sched, err := core.ValidateDefinition(def)
	if err != nil {
		return nil, fmt.Errorf("rebuild schedule for timer %s: %w", id, err)
	}
	t.Schedule = sched

	t.LastRunAt = timePtr(lastRun)
	if nextDue.Valid {
		v := time.Unix(0, nextDue.Int64).UTC()
		t.NextDueAt = &v
	}
	if v, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = v
	}
	if v, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = v
	}
	return t, nil
}

func oneRow(res sql.Result) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableUUID(value *uuid.UUID) any {
	if value == nil {
		return nil
	}
	return value.String()
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableTimeOfDay(value *core.TimeOfDay) any {
	if value == nil {
		return nil
	}
	return value.String()
}

// next_due_at is stored as unix nanoseconds so the due scan can compare
// numerically; RFC3339Nano text trims trailing zeros and does not collate.
func nullableUnixNano(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UnixNano()
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v.String); err == nil {
		return &t
	}
	return nil
}
