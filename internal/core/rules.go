package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DelayKind names the variant of a DelayRule on the wire.
type DelayKind string

const (
	DelayNone     DelayKind = "NONE"
	DelayFixed    DelayKind = "FIXED_DELAY"
	DelayComputed DelayKind = "COMPUTED_DELAY"
)

// ComputationKind names the anchor a COMPUTED_DELAY resolves against.
type ComputationKind string

const (
	ComputationDayTime  ComputationKind = "CURRENT_DAY_SPECIFIC_TIME"
	ComputationWeekDay  ComputationKind = "CURRENT_WEEK_SPECIFIC_DAY"
	ComputationMonthDay ComputationKind = "CURRENT_MONTH_SPECIFIC_DAY"
	ComputationYearDay  ComputationKind = "CURRENT_YEAR_SPECIFIC_DAY"
	ComputationDatetime ComputationKind = "SPECIFIC_DATETIME"
)

// CycleKind names the variant of a CycleRule on the wire.
type CycleKind string

const (
	CycleNone    CycleKind = "NONE"
	CycleSeconds CycleKind = "FIXED_SECONDS"
	CycleMinutes CycleKind = "FIXED_MINUTES"
	CycleHours   CycleKind = "FIXED_HOURS"
	CycleDays    CycleKind = "FIXED_DAYS"
	CycleWeeks   CycleKind = "FIXED_WEEKS"
	CycleMonths  CycleKind = "FIXED_MONTHS"
	CycleYears   CycleKind = "FIXED_YEARS"
)

// DeadlineKind names the variant of a DeadlineRule on the wire.
type DeadlineKind string

const (
	DeadlineNone     DeadlineKind = "NONE"
	DeadlineDatetime DeadlineKind = "SPECIFIC_DATETIME"
	DeadlineBudgeted DeadlineKind = "SECONDS_TO_RUN"
)

// DelayRule decides the instant of the first run. Exactly one variant exists
// per DelayKind and every variant carries only the fields it needs, so a rule
// obtained from ValidateDefinition can never be missing a parameter.
type DelayRule interface {
	DelayKind() DelayKind
}

// NoDelay schedules the first run at the creation instant.
type NoDelay struct{}

func (NoDelay) DelayKind() DelayKind { return DelayNone }

// FixedDelay schedules the first run a fixed number of seconds after creation.
type FixedDelay struct {
	Seconds int64
}

func (FixedDelay) DelayKind() DelayKind { return DelayFixed }

// ComputedDelay schedules the first run at the next occurrence of a calendar
// anchor relative to the creation instant.
type ComputedDelay struct {
	Anchor Computation
}

func (ComputedDelay) DelayKind() DelayKind { return DelayComputed }

// Computation is the anchor union of a ComputedDelay.
type Computation interface {
	ComputationKind() ComputationKind
}

// DayTimeAnchor resolves to today's occurrence of a time of day, or
// tomorrow's once it has passed.
type DayTimeAnchor struct {
	At TimeOfDay
}

func (DayTimeAnchor) ComputationKind() ComputationKind { return ComputationDayTime }

// WeekDayAnchor resolves to the next occurrence of a weekday; the creation
// day itself counts.
type WeekDayAnchor struct {
	Weekday time.Weekday
}

func (WeekDayAnchor) ComputationKind() ComputationKind { return ComputationWeekDay }

// MonthDayAnchor resolves to a day of the current month, rolling to the next
// month once passed and clamping to the last valid day.
type MonthDayAnchor struct {
	Day int
}

func (MonthDayAnchor) ComputationKind() ComputationKind { return ComputationMonthDay }

// YearDayAnchor resolves to a day of the current year, rolling to the next
// year once passed and clamping to the last valid day.
type YearDayAnchor struct {
	Day int
}

func (YearDayAnchor) ComputationKind() ComputationKind { return ComputationYearDay }

// DatetimeAnchor resolves to a literal instant. A past instant is
// immediately due.
type DatetimeAnchor struct {
	At time.Time
}

func (DatetimeAnchor) ComputationKind() ComputationKind { return ComputationDatetime }

// CycleRule decides subsequent runs after a completed execution.
type CycleRule interface {
	CycleKind() CycleKind
}

// NoCycle marks a one-shot timer: one completed run, then retirement.
type NoCycle struct{}

func (NoCycle) CycleKind() CycleKind { return CycleNone }

// FixedCycle repeats every Interval units of the named granularity. The unit
// is the tag; Interval is always positive.
type FixedCycle struct {
	Unit     CycleKind
	Interval int
}

func (c FixedCycle) CycleKind() CycleKind { return c.Unit }

// DeadlineRule bounds how long a timer keeps recurring.
type DeadlineRule interface {
	DeadlineKind() DeadlineKind
}

// NoDeadline lets the timer recur indefinitely.
type NoDeadline struct{}

func (NoDeadline) DeadlineKind() DeadlineKind { return DeadlineNone }

// DeadlineAt retires the timer once the next computed run would land at or
// after the cutoff.
type DeadlineAt struct {
	At time.Time
}

func (DeadlineAt) DeadlineKind() DeadlineKind { return DeadlineDatetime }

// DeadlineBudget retires the timer once the elapsed time since creation
// meets or exceeds the budget.
type DeadlineBudget struct {
	Seconds int64
}

func (DeadlineBudget) DeadlineKind() DeadlineKind { return DeadlineBudgeted }

// Schedule is a validated delay/cycle/deadline triple.
type Schedule struct {
	Delay    DelayRule
	Cycle    CycleRule
	Deadline DeadlineRule
}

// TimeOfDay is a wall-clock time without a date, as carried by the
// CURRENT_DAY_SPECIFIC_TIME anchor.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 &&
		t.Minute >= 0 && t.Minute <= 59 &&
		t.Second >= 0 && t.Second <= 59
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM[:SS]", s)
	}
	var tod TimeOfDay
	var err error
	if tod.Hour, err = strconv.Atoi(parts[0]); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	if tod.Minute, err = strconv.Atoi(parts[1]); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		if tod.Second, err = strconv.Atoi(parts[2]); err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid second in %q", s)
		}
	}
	if !tod.valid() {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return tod, nil
}
