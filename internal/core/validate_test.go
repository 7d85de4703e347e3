package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func timePtr(v time.Time) *time.Time {
	return &v
}

func TestValidateDefinitionDefaults(t *testing.T) {
	sched, err := ValidateDefinition(Definition{})
	require.NoError(t, err)
	assert.Equal(t, DelayNone, sched.Delay.DelayKind())
	assert.Equal(t, CycleNone, sched.Cycle.CycleKind())
	assert.Equal(t, DeadlineNone, sched.Deadline.DeadlineKind())
}

func TestValidateDefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		code DefinitionErrorCode
	}{
		{
			name: "fixed delay without seconds",
			def:  Definition{DelayType: "FIXED_DELAY"},
			code: CodeFixedDelayWithoutDelaySeconds,
		},
		{
			name: "fixed delay negative seconds",
			def:  Definition{DelayType: "FIXED_DELAY", FixedDelaySeconds: int64Ptr(-1)},
			code: CodeFixedDelayWithoutDelaySeconds,
		},
		{
			name: "computed delay without computation type",
			def:  Definition{DelayType: "COMPUTED_DELAY"},
			code: CodeComputedDelayWithoutComputationType,
		},
		{
			name: "computed delay without matching parameter",
			def: Definition{
				DelayType:       "COMPUTED_DELAY",
				ComputationType: strPtr("CURRENT_DAY_SPECIFIC_TIME"),
			},
			code: CodeComputedDelayWithoutParameter,
		},
		{
			name: "week day out of range",
			def: Definition{
				DelayType:          "COMPUTED_DELAY",
				ComputationType:    strPtr("CURRENT_WEEK_SPECIFIC_DAY"),
				ComputationWeekDay: intPtr(7),
			},
			code: CodeComputedDelayWithoutParameter,
		},
		{
			name: "month day out of range",
			def: Definition{
				DelayType:           "COMPUTED_DELAY",
				ComputationType:     strPtr("CURRENT_MONTH_SPECIFIC_DAY"),
				ComputationMonthDay: intPtr(32),
			},
			code: CodeComputedDelayWithoutParameter,
		},
		{
			name: "year day out of range",
			def: Definition{
				DelayType:          "COMPUTED_DELAY",
				ComputationType:    strPtr("CURRENT_YEAR_SPECIFIC_DAY"),
				ComputationYearDay: intPtr(367),
			},
			code: CodeComputedDelayWithoutParameter,
		},
		{
			name: "unknown computation type",
			def: Definition{
				DelayType:       "COMPUTED_DELAY",
				ComputationType: strPtr("NEXT_FULL_MOON"),
			},
			code: CodeUnknownComputationType,
		},
		{
			name: "cycle without interval",
			def:  Definition{CycleType: "FIXED_HOURS"},
			code: CodeCycleWithoutInterval,
		},
		{
			name: "cycle with non-positive interval",
			def:  Definition{CycleType: "FIXED_DAYS", CycleInterval: intPtr(0)},
			code: CodeCycleWithoutInterval,
		},
		{
			name: "deadline without datetime",
			def:  Definition{DeadlineType: "SPECIFIC_DATETIME"},
			code: CodeDeadlineWithoutDatetime,
		},
		{
			name: "deadline without budget",
			def:  Definition{DeadlineType: "SECONDS_TO_RUN"},
			code: CodeDeadlineWithoutSecondsToRun,
		},
		{
			name: "unknown delay type",
			def:  Definition{DelayType: "SOMETIMES"},
			code: CodeUnknownDelayType,
		},
		{
			name: "unknown cycle type",
			def:  Definition{CycleType: "FIXED_FORTNIGHTS"},
			code: CodeUnknownCycleType,
		},
		{
			name: "unknown deadline type",
			def:  Definition{DeadlineType: "WHENEVER"},
			code: CodeUnknownDeadlineType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDefinition(tt.def)
			require.Error(t, err)
			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.Equal(t, tt.code, defErr.Code)
		})
	}
}

// Validation is fail-fast delay first, then cycle, then deadline: a
// definition broken in several places reports the delay code.
func TestValidateDefinitionFailFastOrder(t *testing.T) {
	def := Definition{
		DelayType:    "FIXED_DELAY",
		CycleType:    "FIXED_HOURS",
		DeadlineType: "SPECIFIC_DATETIME",
	}
	_, err := ValidateDefinition(def)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, CodeFixedDelayWithoutDelaySeconds, defErr.Code)

	def.FixedDelaySeconds = int64Ptr(30)
	_, err = ValidateDefinition(def)
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, CodeCycleWithoutInterval, defErr.Code)

	def.CycleInterval = intPtr(1)
	_, err = ValidateDefinition(def)
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, CodeDeadlineWithoutDatetime, defErr.Code)
}

func TestValidateDefinitionRoundTrip(t *testing.T) {
	def := Definition{
		DelayType:          "COMPUTED_DELAY",
		ComputationType:    strPtr("CURRENT_WEEK_SPECIFIC_DAY"),
		ComputationWeekDay: intPtr(1),
		CycleType:          "FIXED_WEEKS",
		CycleInterval:      intPtr(2),
		DeadlineType:       "SECONDS_TO_RUN",
		DeadlineSeconds:    int64Ptr(86400),
	}
	sched, err := ValidateDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, def, sched.Flatten())
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, "09:30:00", tod.String())

	tod, err = ParseTimeOfDay("23:59:59")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 59, Second: 59}, tod)

	for _, bad := range []string{"", "25:00", "12:60", "12:00:61", "noon", "12"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
