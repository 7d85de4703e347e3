package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"timerd/internal/core"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	engine *core.Engine
	logger *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(engine *core.Engine, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		engine: engine,
		logger: logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"timerd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	scheduleOpts := []mcp.ToolOption{
		mcp.WithString("delay_type",
			mcp.Description("Delay rule kind: NONE, FIXED_DELAY or COMPUTED_DELAY (default NONE)"),
		),
		mcp.WithNumber("fixed_delay_seconds",
			mcp.Description("Seconds after creation for FIXED_DELAY"),
			mcp.Min(0),
		),
		mcp.WithString("computation_delay_type",
			mcp.Description("Calendar anchor for COMPUTED_DELAY: CURRENT_DAY_SPECIFIC_TIME, CURRENT_WEEK_SPECIFIC_DAY, CURRENT_MONTH_SPECIFIC_DAY, CURRENT_YEAR_SPECIFIC_DAY or SPECIFIC_DATETIME"),
		),
		mcp.WithString("computation_delay_current_day_specific_time",
			mcp.Description("Time of day as HH:MM or HH:MM:SS"),
		),
		mcp.WithNumber("computation_delay_current_week_specific_day",
			mcp.Description("Weekday 0-6, Sunday is 0"),
			mcp.Min(0),
			mcp.Max(6),
		),
		mcp.WithNumber("computation_delay_current_month_specific_day",
			mcp.Description("Day of month 1-31, clamped to the month's last day"),
			mcp.Min(1),
			mcp.Max(31),
		),
		mcp.WithNumber("computation_delay_current_year_specific_day",
			mcp.Description("Day of year 1-366, clamped to the year's last day"),
			mcp.Min(1),
			mcp.Max(366),
		),
		mcp.WithString("computation_delay_specific_datetime",
			mcp.Description("RFC3339 instant for SPECIFIC_DATETIME"),
		),
		mcp.WithString("cycle_type",
			mcp.Description("Cycle rule kind: NONE, FIXED_SECONDS, FIXED_MINUTES, FIXED_HOURS, FIXED_DAYS, FIXED_WEEKS, FIXED_MONTHS or FIXED_YEARS (default NONE, one-shot)"),
		),
		mcp.WithNumber("cycle_interval",
			mcp.Description("Number of cycle units between runs"),
			mcp.Min(1),
		),
		mcp.WithString("deadline_type",
			mcp.Description("Deadline rule kind: NONE, SPECIFIC_DATETIME or SECONDS_TO_RUN (default NONE)"),
		),
		mcp.WithString("deadline_specific_datetime",
			mcp.Description("RFC3339 cutoff instant"),
		),
		mcp.WithNumber("deadline_on_ran_seconds",
			mcp.Description("Budget in seconds measured from creation"),
			mcp.Min(0),
		),
	}

	createOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Create a timer that fires once or repeatedly according to a delay, cycle and deadline rule"),
		mcp.WithString("name",
			mcp.Description("Timer name (optional)"),
		),
		mcp.WithString("note",
			mcp.Description("Free-form note (optional)"),
		),
		mcp.WithString("notification_key",
			mcp.Description("Key forwarded to the notification sink when the timer fires"),
		),
		mcp.WithBoolean("run_on_creation",
			mcp.Description("Fire immediately on creation when the delay rule is NONE (default true)"),
		),
	}, scheduleOpts...)
	mcpServer.AddTool(mcp.NewTool("timer_create", createOpts...), s.handleCreateTimer)

	mcpServer.AddTool(mcp.NewTool("timer_list",
		mcp.WithDescription("List timers with their state and next due instant"),
		mcp.WithString("owner_id",
			mcp.Description("Only list timers owned by this id"),
		),
	), s.handleListTimers)

	mcpServer.AddTool(mcp.NewTool("timer_details",
		mcp.WithDescription("Show the full record of one timer"),
		mcp.WithString("timer_id",
			mcp.Required(),
			mcp.Description("Timer ID"),
		),
	), s.handleTimerDetails)

	mcpServer.AddTool(mcp.NewTool("timer_delete",
		mcp.WithDescription("Delete a timer so it stops firing"),
		mcp.WithString("timer_id",
			mcp.Required(),
			mcp.Description("Timer ID"),
		),
	), s.handleDeleteTimer)

	previewOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Preview the upcoming run instants of a schedule definition without creating anything"),
		mcp.WithNumber("count",
			mcp.Description("Number of occurrences to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	}, scheduleOpts...)
	mcpServer.AddTool(mcp.NewTool("timer_preview", previewOpts...), s.handleSchedulePreview)

	s.logger.Info("MCP tools registered", "count", 5)
}

// parseDefinition reads the flat schedule parameters shared by timer_create
// and timer_preview.
func parseDefinition(request mcp.CallToolRequest) (core.Definition, error) {
	def := core.Definition{
		DelayType:    mcp.ParseString(request, "delay_type", string(core.DelayNone)),
		CycleType:    mcp.ParseString(request, "cycle_type", string(core.CycleNone)),
		DeadlineType: mcp.ParseString(request, "deadline_type", string(core.DeadlineNone)),
	}

	if v := mcp.ParseFloat64(request, "fixed_delay_seconds", -1); v >= 0 {
		secs := int64(v)
		def.FixedDelaySeconds = &secs
	}
	if v := mcp.ParseString(request, "computation_delay_type", ""); v != "" {
		def.ComputationType = &v
	}
	if v := mcp.ParseString(request, "computation_delay_current_day_specific_time", ""); v != "" {
		tod, err := core.ParseTimeOfDay(v)
		if err != nil {
			return core.Definition{}, err
		}
		def.ComputationDayTime = &tod
	}
	if v := mcp.ParseFloat64(request, "computation_delay_current_week_specific_day", -1); v >= 0 {
		day := int(v)
		def.ComputationWeekDay = &day
	}
	if v := mcp.ParseFloat64(request, "computation_delay_current_month_specific_day", 0); v > 0 {
		day := int(v)
		def.ComputationMonthDay = &day
	}
	if v := mcp.ParseFloat64(request, "computation_delay_current_year_specific_day", 0); v > 0 {
		day := int(v)
		def.ComputationYearDay = &day
	}
	if v := mcp.ParseString(request, "computation_delay_specific_datetime", ""); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return core.Definition{}, fmt.Errorf("computation_delay_specific_datetime must be RFC3339: %w", err)
		}
		def.ComputationDatetime = &at
	}
	if v := mcp.ParseFloat64(request, "cycle_interval", 0); v > 0 {
		interval := int(v)
		def.CycleInterval = &interval
	}
	if v := mcp.ParseString(request, "deadline_specific_datetime", ""); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return core.Definition{}, fmt.Errorf("deadline_specific_datetime must be RFC3339: %w", err)
		}
		def.DeadlineDatetime = &at
	}
	if v := mcp.ParseFloat64(request, "deadline_on_ran_seconds", -1); v >= 0 {
		secs := int64(v)
		def.DeadlineSeconds = &secs
	}

	return def, nil
}

// handleCreateTimer handles the timer_create tool call.
func (s *MCPServer) handleCreateTimer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := parseDefinition(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := core.CreateArgs{
		RunOnCreation: mcp.ParseBoolean(request, "run_on_creation", true),
		Definition:    def,
	}
	if name := mcp.ParseString(request, "name", ""); name != "" {
		args.Name = &name
	}
	if note := mcp.ParseString(request, "note", ""); note != "" {
		args.Note = &note
	}
	if key := mcp.ParseString(request, "notification_key", ""); key != "" {
		args.NotificationKey = &key
	}

	t, err := s.engine.CreateTimer(ctx, args)
	if err != nil {
		var defErr *core.DefinitionError
		if errors.As(err, &defErr) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %s", defErr.Code)), nil
		}
		s.logger.Error("create timer", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to create timer: %v", err)), nil
	}

	s.logger.Info("timer created", "timer_id", t.ID, "state", t.State)

	return mcp.NewToolResultText(fmt.Sprintf("Timer created\nID: %s\nState: %s\nNext due: %s",
		t.ID,
		t.State,
		formatTime(t.NextDueAt),
	)), nil
}

// handleListTimers handles the timer_list tool call.
func (s *MCPServer) handleListTimers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := core.TimerFilter{}
	if owner := mcp.ParseString(request, "owner_id", ""); owner != "" {
		filter.OwnerID = &owner
	}

	timers, err := s.engine.ListTimers(ctx, filter)
	if err != nil {
		s.logger.Error("list timers", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list timers: %v", err)), nil
	}

	if len(timers) == 0 {
		return mcp.NewToolResultText("No timers."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d timer(s):\n", len(timers))
	for _, t := range timers {
		name := "(unnamed)"
		if t.Name != nil {
			name = *t.Name
		}
		fmt.Fprintf(&b, "- %s  %s  state=%s  next=%s\n", t.ID, name, t.State, formatTime(t.NextDueAt))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleTimerDetails handles the timer_details tool call.
func (s *MCPServer) handleTimerDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(mcp.ParseString(request, "timer_id", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid timer_id"), nil
	}

	t, err := s.engine.GetTimer(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrTimerNotFound) {
			return mcp.NewToolResultError("timer not found"), nil
		}
		s.logger.Error("get timer", "timer_id", id, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to load timer: %v", err)), nil
	}

	def := t.Schedule.Flatten()
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", t.ID)
	if t.Name != nil {
		fmt.Fprintf(&b, "Name: %s\n", *t.Name)
	}
	if t.Note != nil {
		fmt.Fprintf(&b, "Note: %s\n", *t.Note)
	}
	fmt.Fprintf(&b, "State: %s\n", t.State)
	fmt.Fprintf(&b, "Delay: %s  Cycle: %s  Deadline: %s\n", def.DelayType, def.CycleType, def.DeadlineType)
	fmt.Fprintf(&b, "Last run: %s\n", formatTime(t.LastRunAt))
	fmt.Fprintf(&b, "Next due: %s\n", formatTime(t.NextDueAt))
	fmt.Fprintf(&b, "Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	return mcp.NewToolResultText(b.String()), nil
}

// handleDeleteTimer handles the timer_delete tool call.
func (s *MCPServer) handleDeleteTimer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(mcp.ParseString(request, "timer_id", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid timer_id"), nil
	}

	if err := s.engine.DeleteTimer(ctx, id); err != nil {
		var stateErr *core.InvalidStateError
		switch {
		case errors.Is(err, core.ErrTimerNotFound):
			return mcp.NewToolResultError("timer not found"), nil
		case errors.As(err, &stateErr):
			return mcp.NewToolResultError("timer is already deleted"), nil
		}
		s.logger.Error("delete timer", "timer_id", id, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete timer: %v", err)), nil
	}

	s.logger.Info("timer deleted", "timer_id", id)
	return mcp.NewToolResultText(fmt.Sprintf("Timer %s deleted", id)), nil
}

// handleSchedulePreview handles the timer_preview tool call.
func (s *MCPServer) handleSchedulePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := parseDefinition(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	if count <= 0 || count > 10 {
		count = 5
	}

	times, err := s.engine.Preview(def, time.Now().UTC(), count)
	if err != nil {
		var defErr *core.DefinitionError
		if errors.As(err, &defErr) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %s", defErr.Code)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString("Upcoming runs:\n")
	for _, t := range times {
		fmt.Fprintf(&b, "- %s\n", t.UTC().Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
