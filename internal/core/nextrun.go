package core

import "time"

// FirstRun computes the first execution instant for a delay rule relative to
// the creation instant. Pure: equal inputs always yield equal outputs.
// Calendar anchors are resolved in loc; the result may lie in the past, in
// which case the timer is simply due immediately.
func FirstRun(delay DelayRule, createdAt time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	switch d := delay.(type) {
	case NoDelay:
		return createdAt
	case FixedDelay:
		return createdAt.Add(time.Duration(d.Seconds) * time.Second)
	case ComputedDelay:
		return resolveAnchor(d.Anchor, createdAt.In(loc))
	default:
		return createdAt
	}
}

// resolveAnchor finds the next calendar occurrence of the anchor at or after
// ref. Day-granularity anchors resolve to local midnight of the chosen day;
// the reference day itself counts, so an anchor that lands earlier today
// yields an already-due instant rather than rolling over.
func resolveAnchor(anchor Computation, ref time.Time) time.Time {
	switch a := anchor.(type) {
	case DayTimeAnchor:
		candidate := time.Date(ref.Year(), ref.Month(), ref.Day(),
			a.At.Hour, a.At.Minute, a.At.Second, 0, ref.Location())
		if candidate.Before(ref) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	case WeekDayAnchor:
		days := (int(a.Weekday) - int(ref.Weekday()) + 7) % 7
		return midnight(ref).AddDate(0, 0, days)
	case MonthDayAnchor:
		year, month := ref.Year(), ref.Month()
		if a.Day < ref.Day() {
			year, month = nextMonth(year, month)
		}
		day := clampDay(a.Day, daysInMonth(year, month))
		return time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
	case YearDayAnchor:
		year := ref.Year()
		if a.Day < ref.YearDay() {
			year++
		}
		day := clampDay(a.Day, daysInYear(year))
		return time.Date(year, time.January, 1, 0, 0, 0, 0, ref.Location()).AddDate(0, 0, day-1)
	case DatetimeAnchor:
		return a.At
	default:
		return ref
	}
}

// NextAfterCompletion computes the instant of the run following a completed
// execution. The second return is false when the cycle rule terminates the
// timer (NONE). SECONDS through WEEKS add a fixed duration; MONTHS and YEARS
// add calendar months with the day-of-month clamped to the target month.
func NextAfterCompletion(cycle CycleRule, lastRun time.Time) (time.Time, bool) {
	c, ok := cycle.(FixedCycle)
	if !ok {
		return time.Time{}, false
	}
	n := c.Interval
	switch c.Unit {
	case CycleSeconds:
		return lastRun.Add(time.Duration(n) * time.Second), true
	case CycleMinutes:
		return lastRun.Add(time.Duration(n) * time.Minute), true
	case CycleHours:
		return lastRun.Add(time.Duration(n) * time.Hour), true
	case CycleDays:
		return lastRun.Add(time.Duration(n) * 24 * time.Hour), true
	case CycleWeeks:
		return lastRun.Add(time.Duration(n) * 7 * 24 * time.Hour), true
	case CycleMonths:
		return addMonthsClamped(lastRun, n), true
	case CycleYears:
		return addMonthsClamped(lastRun, 12*n), true
	default:
		return time.Time{}, false
	}
}

// PastDeadline reports whether a candidate next run violates the deadline
// rule: a SPECIFIC_DATETIME cutoff fails once the candidate lands at or
// after it, a SECONDS_TO_RUN budget fails once the time elapsed since
// creation meets or exceeds it. A failed check retires the timer instead of
// rescheduling it.
func PastDeadline(deadline DeadlineRule, createdAt, candidate, now time.Time) bool {
	switch d := deadline.(type) {
	case DeadlineAt:
		return !candidate.Before(d.At)
	case DeadlineBudget:
		return now.Sub(createdAt) >= time.Duration(d.Seconds)*time.Second
	default:
		return false
	}
}

// addMonthsClamped adds calendar months keeping the day-of-month, clamped to
// the last valid day of the target month (Jan 31 + 1 month = Feb 28/29, not
// Mar 2/3 as time.AddDate would normalize it to).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)
	day = clampDay(day, daysInMonth(year, month))
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func clampDay(day, max int) int {
	if day > max {
		return max
	}
	return day
}
