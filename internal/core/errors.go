package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefinitionErrorCode tags the first invariant a submitted definition
// violates. Codes are stable wire values.
type DefinitionErrorCode string

const (
	CodeFixedDelayWithoutDelaySeconds       DefinitionErrorCode = "FIXED_DELAY_WITHOUT_DELAY_SECONDS"
	CodeComputedDelayWithoutComputationType DefinitionErrorCode = "COMPUTED_DELAY_WITHOUT_COMPUTATION_TYPE"
	CodeComputedDelayWithoutParameter       DefinitionErrorCode = "COMPUTED_DELAY_WITHOUT_MATCHING_PARAMETER"
	CodeCycleWithoutInterval                DefinitionErrorCode = "CYCLE_WITHOUT_INTERVAL"
	CodeDeadlineWithoutDatetime             DefinitionErrorCode = "DEADLINE_WITHOUT_SPECIFIC_DATETIME"
	CodeDeadlineWithoutSecondsToRun         DefinitionErrorCode = "DEADLINE_WITHOUT_SECONDS_TO_RUN"
	CodeUnknownDelayType                    DefinitionErrorCode = "UNKNOWN_DELAY_TYPE"
	CodeUnknownComputationType              DefinitionErrorCode = "UNKNOWN_COMPUTATION_TYPE"
	CodeUnknownCycleType                    DefinitionErrorCode = "UNKNOWN_CYCLE_TYPE"
	CodeUnknownDeadlineType                 DefinitionErrorCode = "UNKNOWN_DEADLINE_TYPE"
)

// DefinitionError reports a structurally invalid schedule definition. It is
// always recoverable by resubmitting a corrected definition.
type DefinitionError struct {
	Code DefinitionErrorCode
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid schedule definition: %s", e.Code)
}

func definitionErr(code DefinitionErrorCode) error {
	return &DefinitionError{Code: code}
}

// InvalidStateError reports an operation attempted against a record whose
// state forbids it, most commonly anything targeting a DELETED record.
type InvalidStateError struct {
	ID    uuid.UUID
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("timer %s is %s; operation not allowed", e.ID, e.State)
}

// ErrStateNotRequestable rejects explicit state-change requests whose target
// the engine does not accept from callers (only DELETED may be requested).
var ErrStateNotRequestable = errors.New("only the DELETED state may be requested")
