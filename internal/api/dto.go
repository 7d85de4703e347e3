package api

import (
	"fmt"
	"net/http"
	"time"

	"timerd/internal/core"

	"github.com/google/uuid"
)

// clockTime wraps core.TimeOfDay with the "HH:MM:SS" wire encoding.
type clockTime struct {
	core.TimeOfDay
}

func (c clockTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", c.String())), nil
}

func (c *clockTime) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("time of day must be a string")
	}
	tod, err := core.ParseTimeOfDay(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	c.TimeOfDay = tod
	return nil
}

// scheduleFields is the flat delay/cycle/deadline triple shared by every
// request and response shape that carries a schedule.
type scheduleFields struct {
	DelayType           string     `json:"delay_type"`
	FixedDelaySeconds   *int64     `json:"fixed_delay_seconds,omitempty"`
	ComputationType     *string    `json:"computation_delay_type,omitempty"`
	ComputationDayTime  *clockTime `json:"computation_delay_current_day_specific_time,omitempty"`
	ComputationWeekDay  *int       `json:"computation_delay_current_week_specific_day,omitempty"`
	ComputationMonthDay *int       `json:"computation_delay_current_month_specific_day,omitempty"`
	ComputationYearDay  *int       `json:"computation_delay_current_year_specific_day,omitempty"`
	ComputationDatetime *time.Time `json:"computation_delay_specific_datetime,omitempty"`
	CycleType           string     `json:"cycle_type"`
	CycleInterval       *int       `json:"cycle_interval,omitempty"`
	DeadlineType        string     `json:"deadline_type"`
	DeadlineDatetime    *time.Time `json:"deadline_specific_datetime,omitempty"`
	DeadlineSeconds     *int64     `json:"deadline_on_ran_seconds,omitempty"`
}

func (f scheduleFields) toDefinition() core.Definition {
	def := core.Definition{
		DelayType:           f.DelayType,
		FixedDelaySeconds:   f.FixedDelaySeconds,
		ComputationType:     f.ComputationType,
		ComputationWeekDay:  f.ComputationWeekDay,
		ComputationMonthDay: f.ComputationMonthDay,
		ComputationYearDay:  f.ComputationYearDay,
		ComputationDatetime: f.ComputationDatetime,
		CycleType:           f.CycleType,
		CycleInterval:       f.CycleInterval,
		DeadlineType:        f.DeadlineType,
		DeadlineDatetime:    f.DeadlineDatetime,
		DeadlineSeconds:     f.DeadlineSeconds,
	}
	if f.ComputationDayTime != nil {
		tod := f.ComputationDayTime.TimeOfDay
		def.ComputationDayTime = &tod
	}
	return def
}

func scheduleFieldsFrom(def core.Definition) scheduleFields {
	f := scheduleFields{
		DelayType:           def.DelayType,
		FixedDelaySeconds:   def.FixedDelaySeconds,
		ComputationType:     def.ComputationType,
		ComputationWeekDay:  def.ComputationWeekDay,
		ComputationMonthDay: def.ComputationMonthDay,
		ComputationYearDay:  def.ComputationYearDay,
		ComputationDatetime: def.ComputationDatetime,
		CycleType:           def.CycleType,
		CycleInterval:       def.CycleInterval,
		DeadlineType:        def.DeadlineType,
		DeadlineDatetime:    def.DeadlineDatetime,
		DeadlineSeconds:     def.DeadlineSeconds,
	}
	if def.ComputationDayTime != nil {
		f.ComputationDayTime = &clockTime{TimeOfDay: *def.ComputationDayTime}
	}
	return f
}

type timerDefinitionRequest struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	Name            *string    `json:"name,omitempty"`
	Note            *string    `json:"note,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	OwnerID         *string    `json:"owner_id,omitempty"`
	NotificationKey *string    `json:"notification_key,omitempty"`
	RunOnCreation   *bool      `json:"run_on_creation,omitempty"`
	scheduleFields
}

func (req timerDefinitionRequest) toCreateArgs() core.CreateArgs {
	runOnCreation := true
	if req.RunOnCreation != nil {
		runOnCreation = *req.RunOnCreation
	}
	return core.CreateArgs{
		ID:              req.ID,
		Name:            req.Name,
		Note:            req.Note,
		GroupID:         req.GroupID,
		OwnerID:         req.OwnerID,
		NotificationKey: req.NotificationKey,
		RunOnCreation:   runOnCreation,
		Definition:      req.scheduleFields.toDefinition(),
	}
}

type timerTaskDefinitionRequest struct {
	OwnerID         string     `json:"owner_id"`
	UnionCode       *string    `json:"union_code,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	NotificationKey *string    `json:"notification_key,omitempty"`
	RunOnCreation   *bool      `json:"run_on_creation,omitempty"`
	Name            *string    `json:"name,omitempty"`
	Note            *string    `json:"note,omitempty"`
	scheduleFields
}

func (req timerTaskDefinitionRequest) toCreateArgs() core.CreateArgs {
	runOnCreation := true
	if req.RunOnCreation != nil {
		runOnCreation = *req.RunOnCreation
	}
	owner := req.OwnerID
	return core.CreateArgs{
		Name:            req.Name,
		Note:            req.Note,
		GroupID:         req.GroupID,
		OwnerID:         &owner,
		UnionCode:       req.UnionCode,
		NotificationKey: req.NotificationKey,
		RunOnCreation:   runOnCreation,
		Definition:      req.scheduleFields.toDefinition(),
	}
}

type timerDefinitionResult struct {
	ID        *uuid.UUID `json:"id"`
	IsOK      bool       `json:"is_ok"`
	ErrorCode *string    `json:"error_code,omitempty"`
}

type timerTaskCreationResult struct {
	TaskID    *uuid.UUID `json:"task_id"`
	IsOK      bool       `json:"is_ok"`
	ErrorCode *string    `json:"error_code,omitempty"`
}

type timerDescriptionRequest struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Name *string    `json:"name,omitempty"`
	Note *string    `json:"note,omitempty"`
}

type timerTaskDescriptionRequest struct {
	TaskID *uuid.UUID `json:"task_id,omitempty"`
	Name   *string    `json:"name,omitempty"`
	Note   *string    `json:"note,omitempty"`
}

type timerStateRequest struct {
	ID    *uuid.UUID `json:"id,omitempty"`
	State string     `json:"state"`
}

type timerTaskStateRequest struct {
	TaskID *uuid.UUID `json:"task_id,omitempty"`
	State  string     `json:"state"`
}

type timerScheduleRequest struct {
	ID *uuid.UUID `json:"id,omitempty"`
	scheduleFields
}

type timerTaskScheduleRequest struct {
	TaskID *uuid.UUID `json:"task_id,omitempty"`
	scheduleFields
}

type bulkItemResult struct {
	ID        uuid.UUID `json:"id"`
	IsOK      bool      `json:"is_ok"`
	ErrorCode *string   `json:"error_code,omitempty"`
}

type bulkTaskItemResult struct {
	TaskID    uuid.UUID `json:"task_id"`
	IsOK      bool      `json:"is_ok"`
	ErrorCode *string   `json:"error_code,omitempty"`
}

func bulkResults(results []core.BulkItemResult) []bulkItemResult {
	out := make([]bulkItemResult, 0, len(results))
	for _, r := range results {
		item := bulkItemResult{ID: r.ID, IsOK: r.OK}
		if r.ErrorCode != "" {
			code := r.ErrorCode
			item.ErrorCode = &code
		}
		out = append(out, item)
	}
	return out
}

func bulkTaskResults(results []core.BulkItemResult) []bulkTaskItemResult {
	out := make([]bulkTaskItemResult, 0, len(results))
	for _, r := range results {
		item := bulkTaskItemResult{TaskID: r.ID, IsOK: r.OK}
		if r.ErrorCode != "" {
			code := r.ErrorCode
			item.ErrorCode = &code
		}
		out = append(out, item)
	}
	return out
}

type timerDetailsResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            *string    `json:"name,omitempty"`
	LastRunDatetime *time.Time `json:"lasted_run_datetime,omitempty"`
	State           string     `json:"state"`
	Note            *string    `json:"note,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	OwnerID         *string    `json:"owner_id,omitempty"`
	NotificationKey *string    `json:"notification_key,omitempty"`
	RunOnCreation   bool       `json:"run_on_creation"`
	scheduleFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func timerToDetails(t *core.Timer) timerDetailsResponse {
	return timerDetailsResponse{
		ID:              t.ID,
		Name:            t.Name,
		LastRunDatetime: t.LastRunAt,
		State:           string(t.State),
		Note:            t.Note,
		GroupID:         t.GroupID,
		OwnerID:         t.OwnerID,
		NotificationKey: t.NotificationKey,
		RunOnCreation:   t.RunOnCreation,
		scheduleFields:  scheduleFieldsFrom(t.Schedule.Flatten()),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type timerTaskDetailsResponse struct {
	TaskID          uuid.UUID  `json:"task_id"`
	State           string     `json:"state"`
	LastRunDatetime *time.Time `json:"lasted_run_datetime,omitempty"`
	OwnerID         string     `json:"owner_id"`
	UnionCode       *string    `json:"union_code,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	NotificationKey *string    `json:"notification_key,omitempty"`
	RunOnCreation   bool       `json:"run_on_creation"`
	Name            *string    `json:"name,omitempty"`
	Note            *string    `json:"note,omitempty"`
	scheduleFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func timerToTaskDetails(t *core.Timer) timerTaskDetailsResponse {
	owner := ""
	if t.OwnerID != nil {
		owner = *t.OwnerID
	}
	return timerTaskDetailsResponse{
		TaskID:          t.ID,
		State:           string(t.State),
		LastRunDatetime: t.LastRunAt,
		OwnerID:         owner,
		UnionCode:       t.UnionCode,
		GroupID:         t.GroupID,
		NotificationKey: t.NotificationKey,
		RunOnCreation:   t.RunOnCreation,
		Name:            t.Name,
		Note:            t.Note,
		scheduleFields:  scheduleFieldsFrom(t.Schedule.Flatten()),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type timerSummaryResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            *string    `json:"name,omitempty"`
	LastRunDatetime *time.Time `json:"lasted_run_datetime,omitempty"`
	State           string     `json:"state"`
	Note            *string    `json:"note,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	DelayType       string     `json:"delay_type"`
	CycleType       string     `json:"cycle_type"`
	DeadlineType    string     `json:"deadline_type"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func timerToSummary(t *core.Timer) timerSummaryResponse {
	def := t.Schedule.Flatten()
	return timerSummaryResponse{
		ID:              t.ID,
		Name:            t.Name,
		LastRunDatetime: t.LastRunAt,
		State:           string(t.State),
		Note:            t.Note,
		GroupID:         t.GroupID,
		DelayType:       def.DelayType,
		CycleType:       def.CycleType,
		DeadlineType:    def.DeadlineType,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type timerTaskSummaryResponse struct {
	ID              uuid.UUID  `json:"id"`
	State           string     `json:"state"`
	LastRunDatetime *time.Time `json:"lasted_run_datetime,omitempty"`
	OwnerID         string     `json:"owner_id"`
	UnionCode       *string    `json:"union_code,omitempty"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	Name            *string    `json:"name,omitempty"`
	Note            *string    `json:"note,omitempty"`
	DelayType       string     `json:"delay_type"`
	CycleType       string     `json:"cycle_type"`
	DeadlineType    string     `json:"deadline_type"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func timerToTaskSummary(t *core.Timer) timerTaskSummaryResponse {
	def := t.Schedule.Flatten()
	owner := ""
	if t.OwnerID != nil {
		owner = *t.OwnerID
	}
	return timerTaskSummaryResponse{
		ID:              t.ID,
		State:           string(t.State),
		LastRunDatetime: t.LastRunAt,
		OwnerID:         owner,
		UnionCode:       t.UnionCode,
		GroupID:         t.GroupID,
		Name:            t.Name,
		Note:            t.Note,
		DelayType:       def.DelayType,
		CycleType:       def.CycleType,
		DeadlineType:    def.DeadlineType,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// parseIDQuery collects repeated timer_ids query parameters.
func parseIDQuery(r *http.Request) ([]uuid.UUID, error) {
	values := r.URL.Query()["timer_ids"]
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timer id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
