package core

import (
	"time"

	"github.com/google/uuid"
)

// State describes the lifecycle position of a timer record.
type State string

const (
	// StateCreated exists only while a record is being constructed; it is
	// never persisted.
	StateCreated State = "CREATED"
	StateWaiting State = "WAITING"
	StateRunning State = "RUNNING"
	StateDeleted State = "DELETED"
)

// Timer is the persisted scheduling entity. The engine exclusively owns
// State, LastRunAt, NextDueAt and PendingDelete; callers only submit rule
// and description changes.
type Timer struct {
	ID              uuid.UUID
	Name            *string
	Note            *string
	GroupID         *uuid.UUID
	OwnerID         *string
	UnionCode       *string
	NotificationKey *string
	RunOnCreation   bool
	Schedule        Schedule
	State           State
	PendingDelete   bool
	LastRunAt       *time.Time
	NextDueAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Definition is the flat wire shape of a schedule: kind enums plus one
// optional field per parameter, exactly as clients submit it. It only
// becomes a Schedule through ValidateDefinition.
type Definition struct {
	DelayType         string
	FixedDelaySeconds *int64

	ComputationType     *string
	ComputationDayTime  *TimeOfDay
	ComputationWeekDay  *int
	ComputationMonthDay *int
	ComputationYearDay  *int
	ComputationDatetime *time.Time

	CycleType     string
	CycleInterval *int

	DeadlineType     string
	DeadlineDatetime *time.Time
	DeadlineSeconds  *int64
}

// Flatten is the inverse of ValidateDefinition: it projects a validated
// Schedule back onto the wire shape. Used by the store and the read
// projections.
func (s Schedule) Flatten() Definition {
	def := Definition{
		DelayType:    string(DelayNone),
		CycleType:    string(CycleNone),
		DeadlineType: string(DeadlineNone),
	}

	switch d := s.Delay.(type) {
	case FixedDelay:
		def.DelayType = string(DelayFixed)
		secs := d.Seconds
		def.FixedDelaySeconds = &secs
	case ComputedDelay:
		def.DelayType = string(DelayComputed)
		kind := string(d.Anchor.ComputationKind())
		def.ComputationType = &kind
		switch a := d.Anchor.(type) {
		case DayTimeAnchor:
			at := a.At
			def.ComputationDayTime = &at
		case WeekDayAnchor:
			day := int(a.Weekday)
			def.ComputationWeekDay = &day
		case MonthDayAnchor:
			day := a.Day
			def.ComputationMonthDay = &day
		case YearDayAnchor:
			day := a.Day
			def.ComputationYearDay = &day
		case DatetimeAnchor:
			at := a.At
			def.ComputationDatetime = &at
		}
	}

	if c, ok := s.Cycle.(FixedCycle); ok {
		def.CycleType = string(c.Unit)
		interval := c.Interval
		def.CycleInterval = &interval
	}

	switch d := s.Deadline.(type) {
	case DeadlineAt:
		def.DeadlineType = string(DeadlineDatetime)
		at := d.At
		def.DeadlineDatetime = &at
	case DeadlineBudget:
		def.DeadlineType = string(DeadlineBudgeted)
		secs := d.Seconds
		def.DeadlineSeconds = &secs
	}

	return def
}
