package core

import "time"

// ValidateDefinition checks a flat definition for internal consistency and,
// on success, returns the normalized rule triple. Validation is fail-fast in
// a fixed order (delay, then cycle, then deadline) so the reported code is
// deterministic for a given input. It has no side effects.
func ValidateDefinition(def Definition) (Schedule, error) {
	delay, err := validateDelay(def)
	if err != nil {
		return Schedule{}, err
	}
	cycle, err := validateCycle(def)
	if err != nil {
		return Schedule{}, err
	}
	deadline, err := validateDeadline(def)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Delay: delay, Cycle: cycle, Deadline: deadline}, nil
}

func validateDelay(def Definition) (DelayRule, error) {
	switch DelayKind(def.DelayType) {
	case DelayNone, "":
		return NoDelay{}, nil
	case DelayFixed:
		if def.FixedDelaySeconds == nil || *def.FixedDelaySeconds < 0 {
			return nil, definitionErr(CodeFixedDelayWithoutDelaySeconds)
		}
		return FixedDelay{Seconds: *def.FixedDelaySeconds}, nil
	case DelayComputed:
		if def.ComputationType == nil {
			return nil, definitionErr(CodeComputedDelayWithoutComputationType)
		}
		anchor, err := validateComputation(ComputationKind(*def.ComputationType), def)
		if err != nil {
			return nil, err
		}
		return ComputedDelay{Anchor: anchor}, nil
	default:
		return nil, definitionErr(CodeUnknownDelayType)
	}
}

func validateComputation(kind ComputationKind, def Definition) (Computation, error) {
	switch kind {
	case ComputationDayTime:
		if def.ComputationDayTime == nil || !def.ComputationDayTime.valid() {
			return nil, definitionErr(CodeComputedDelayWithoutParameter)
		}
		return DayTimeAnchor{At: *def.ComputationDayTime}, nil
	case ComputationWeekDay:
		// Weekday index follows time.Weekday: 0 = Sunday.
		if def.ComputationWeekDay == nil || *def.ComputationWeekDay < 0 || *def.ComputationWeekDay > 6 {
			return nil, definitionErr(CodeComputedDelayWithoutParameter)
		}
		return WeekDayAnchor{Weekday: time.Weekday(*def.ComputationWeekDay)}, nil
	case ComputationMonthDay:
		if def.ComputationMonthDay == nil || *def.ComputationMonthDay < 1 || *def.ComputationMonthDay > 31 {
			return nil, definitionErr(CodeComputedDelayWithoutParameter)
		}
		return MonthDayAnchor{Day: *def.ComputationMonthDay}, nil
	case ComputationYearDay:
		if def.ComputationYearDay == nil || *def.ComputationYearDay < 1 || *def.ComputationYearDay > 366 {
			return nil, definitionErr(CodeComputedDelayWithoutParameter)
		}
		return YearDayAnchor{Day: *def.ComputationYearDay}, nil
	case ComputationDatetime:
		if def.ComputationDatetime == nil {
			return nil, definitionErr(CodeComputedDelayWithoutParameter)
		}
		return DatetimeAnchor{At: *def.ComputationDatetime}, nil
	default:
		return nil, definitionErr(CodeUnknownComputationType)
	}
}

func validateCycle(def Definition) (CycleRule, error) {
	kind := CycleKind(def.CycleType)
	switch kind {
	case CycleNone, "":
		return NoCycle{}, nil
	case CycleSeconds, CycleMinutes, CycleHours, CycleDays, CycleWeeks, CycleMonths, CycleYears:
		if def.CycleInterval == nil || *def.CycleInterval <= 0 {
			return nil, definitionErr(CodeCycleWithoutInterval)
		}
		return FixedCycle{Unit: kind, Interval: *def.CycleInterval}, nil
	default:
		return nil, definitionErr(CodeUnknownCycleType)
	}
}

func validateDeadline(def Definition) (DeadlineRule, error) {
	switch DeadlineKind(def.DeadlineType) {
	case DeadlineNone, "":
		return NoDeadline{}, nil
	case DeadlineDatetime:
		if def.DeadlineDatetime == nil {
			return nil, definitionErr(CodeDeadlineWithoutDatetime)
		}
		return DeadlineAt{At: *def.DeadlineDatetime}, nil
	case DeadlineBudgeted:
		if def.DeadlineSeconds == nil || *def.DeadlineSeconds < 0 {
			return nil, definitionErr(CodeDeadlineWithoutSecondsToRun)
		}
		return DeadlineBudget{Seconds: *def.DeadlineSeconds}, nil
	default:
		return nil, definitionErr(CodeUnknownDeadlineType)
	}
}
