package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jarvis/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// JobRegistry adds and removes persisted jobs.
type JobRegistry interface {
	Add(ctx context.Context, spec *core.JobSpec) (core.JobInfo, error)
	Remove(ctx context.Context, name string) error
	Cancel(ctx context.Context, name string) (bool, error)
}

// Voice lets tools talk through the assistant.
type Voice interface {
	Say(ctx context.Context, text string) error
	Submit(ctx context.Context, text string) (string, error)
}

// MCPServer exposes the task manager as MCP tools.
type MCPServer struct {
	manager  *core.Manager
	jobs     JobRegistry
	voice    Voice
	logger   *slog.Logger
	location *time.Location
	server   *server.MCPServer
}

// NewMCPServer creates a new MCP server instance. jobs and voice may be nil, which
// disables the tools that need them.
func NewMCPServer(manager *core.Manager, jobs JobRegistry, voice Voice, logger *slog.Logger, location *time.Location, version string) *MCPServer {
	if location == nil {
		location = time.Local
	}
	s := &MCPServer{
		manager:  manager,
		jobs:     jobs,
		voice:    voice,
		logger:   logger.With("component", "mcp"),
		location: location,
		server: server.NewMCPServer(
			"jarvis",
			version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until the client disconnects.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.server)
}

// Handler serves the tools over streamable HTTP.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Report whether a named task is running, scheduled or finished"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task or job name, e.g. launch_calculator"),
		),
	), s.handleTaskStatus)

	s.server.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List active tasks, scheduled jobs and recent history"),
	), s.handleTaskList)

	s.server.AddTool(mcp.NewTool("task_cancel",
		mcp.WithDescription("Cancel a running task and unschedule the job of the same name"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task or job name"),
		),
	), s.handleTaskCancel)

	s.server.AddTool(mcp.NewTool("job_list",
		mcp.WithDescription("List scheduled jobs ordered by next run time"),
	), s.handleJobList)

	s.server.AddTool(mcp.NewTool("job_schedule",
		mcp.WithDescription("Schedule a launcher or shell command. Give exactly one of cron, every or at"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Job name, unique"),
		),
		mcp.WithString("launcher",
			mcp.Description("Configured launcher target, e.g. browser"),
		),
		mcp.WithString("command",
			mcp.Description("Shell command to run"),
		),
		mcp.WithString("cron",
			mcp.Description("5-field cron expression, e.g. '0 9 * * 1-5'"),
		),
		mcp.WithString("every",
			mcp.Description("Interval as a Go duration in whole seconds, e.g. 15m"),
		),
		mcp.WithString("at",
			mcp.Description("One-shot run time in RFC3339"),
		),
	), s.handleJobSchedule)

	s.server.AddTool(mcp.NewTool("job_remove",
		mcp.WithDescription("Remove a scheduled job"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Job name"),
		),
	), s.handleJobRemove)

	s.server.AddTool(mcp.NewTool("history_tail",
		mcp.WithDescription("Show the most recent finished runs"),
		mcp.WithNumber("limit",
			mcp.Description("Number of entries, default 10"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleHistoryTail)

	s.server.AddTool(mcp.NewTool("cron_preview",
		mcp.WithDescription("Preview the next fire times of a cron expression"),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCronPreview)

	s.server.AddTool(mcp.NewTool("say",
		mcp.WithDescription("Speak a sentence through the assistant"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to speak"),
		),
	), s.handleSay)

	s.server.AddTool(mcp.NewTool("command",
		mcp.WithDescription("Send a command to the assistant as if it had been spoken"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Command text, e.g. 'open browser'"),
		),
	), s.handleCommand)

	s.logger.Info("MCP tools registered", "count", 10)
}

func (s *MCPServer) handleTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(mcp.ParseString(request, "name", ""))
	info, err := s.manager.GetTaskStatus(name)
	if errors.Is(err, core.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task status: %v", err)), nil
	}

	result := fmt.Sprintf("Task: %s\nStatus: %s\n", info.Name, info.Status)
	if info.StartedAt != nil {
		result += fmt.Sprintf("Started: %s\n", s.formatTime(info.StartedAt))
	}
	if info.Trigger != "" {
		result += fmt.Sprintf("Trigger: %s\n", info.Trigger)
	}
	if info.NextRunTime != nil {
		result += fmt.Sprintf("Next run: %s\n", s.formatTime(info.NextRunTime))
	}
	if info.Entry != nil {
		result += "Last run: " + s.formatEntry(*info.Entry) + "\n"
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleTaskList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.manager.GetAllTasks()
	var b strings.Builder
	fmt.Fprintf(&b, "Active tasks: %d\n", len(snap.Active))
	for _, t := range snap.Active {
		fmt.Fprintf(&b, "  ▶️ %s since %s\n", t.Name, s.formatTime(t.StartedAt))
	}
	fmt.Fprintf(&b, "\nScheduled jobs: %d\n", len(snap.Scheduled))
	for _, j := range snap.Scheduled {
		fmt.Fprintf(&b, "  ⏳ %s %s next %s\n", j.Name, j.Trigger, s.formatTime(j.NextRunTime))
	}
	fmt.Fprintf(&b, "\nRecent history: %d\n", len(snap.History))
	for _, e := range snap.History {
		fmt.Fprintf(&b, "  %s\n", s.formatEntry(e))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleTaskCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(mcp.ParseString(request, "name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	var cancelled bool
	if s.jobs != nil {
		var err error
		if cancelled, err = s.jobs.Cancel(ctx, name); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel %s: %v", name, err)), nil
		}
	} else {
		cancelled = s.manager.CancelTask(name)
	}
	if !cancelled {
		return mcp.NewToolResultText(fmt.Sprintf("Nothing to cancel: %s", name)), nil
	}
	s.logger.Info("task cancelled", "task", name)
	return mcp.NewToolResultText(fmt.Sprintf("Cancelled: %s", name)), nil
}

func (s *MCPServer) handleJobList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.manager.Scheduler().ListJobs()
	if len(jobs) == 0 {
		return mcp.NewToolResultText("No jobs scheduled"), nil
	}
	result := fmt.Sprintf("Found %d jobs:\n\n", len(jobs))
	for _, j := range jobs {
		result += fmt.Sprintf("%s\n  Trigger: %s\n  Next run: %s\n  Recurring: %t\n\n", j.Name, j.Trigger, s.formatTime(j.NextRunTime), j.Recurring)
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleJobSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.jobs == nil {
		return mcp.NewToolResultError("job registry is not configured"), nil
	}
	trigger, err := core.ParseTrigger(
		mcp.ParseString(request, "cron", ""),
		mcp.ParseString(request, "every", ""),
		mcp.ParseString(request, "at", ""),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	spec := &core.JobSpec{
		Name:     strings.TrimSpace(mcp.ParseString(request, "name", "")),
		Trigger:  trigger,
		Launcher: strings.TrimSpace(mcp.ParseString(request, "launcher", "")),
		Command:  strings.TrimSpace(mcp.ParseString(request, "command", "")),
	}
	info, err := s.jobs.Add(ctx, spec)
	if err != nil {
		s.logger.Error("schedule job", "job", spec.Name, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("schedule job: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Job scheduled\nName: %s\nTrigger: %s\nNext run: %s",
		info.Name,
		info.Trigger,
		s.formatTime(info.NextRunTime),
	)), nil
}

func (s *MCPServer) handleJobRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.jobs == nil {
		return mcp.NewToolResultError("job registry is not configured"), nil
	}
	name := strings.TrimSpace(mcp.ParseString(request, "name", ""))
	if err := s.jobs.Remove(ctx, name); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("remove job: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Job removed: %s", name)), nil
}

func (s *MCPServer) handleHistoryTail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 10))
	entries := s.manager.HistoryTail(limit)
	if len(entries) == 0 {
		return mcp.NewToolResultText("No runs recorded yet"), nil
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(s.formatEntry(e))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCronPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cronExpr := mcp.ParseString(request, "cron", "")
	count := int(mcp.ParseFloat64(request, "count", 5))

	nextTimes, err := core.PreviewCron(cronExpr, time.Now().In(s.location), count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	result := fmt.Sprintf("Cron expression: %s\n", cronExpr)
	result += fmt.Sprintf("Time zone: %s\n\n", s.location)
	result += "Next fire times:\n"
	for i, t := range nextTimes {
		result += fmt.Sprintf("  %d. %s\n", i+1, t.Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleSay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.voice == nil {
		return mcp.NewToolResultError("assistant is not running"), nil
	}
	text := strings.TrimSpace(mcp.ParseString(request, "text", ""))
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	if err := s.voice.Say(ctx, text); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("speak: %v", err)), nil
	}
	return mcp.NewToolResultText("Spoken"), nil
}

func (s *MCPServer) handleCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.voice == nil {
		return mcp.NewToolResultError("assistant is not running"), nil
	}
	text := strings.TrimSpace(mcp.ParseString(request, "text", ""))
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	reply, err := s.voice.Submit(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("command failed: %v (reply: %s)", err, reply)), nil
	}
	return mcp.NewToolResultText(reply), nil
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}

func (s *MCPServer) formatEntry(e core.HistoryEntry) string {
	line := fmt.Sprintf("%s %s %s", statusToIcon(e.Status), e.Name, s.formatTime(&e.Timestamp))
	if e.Duration != nil {
		line += fmt.Sprintf(" (%s)", e.Duration.Round(time.Millisecond))
	}
	if e.Error != nil {
		line += ": " + truncateString(*e.Error, 80)
	} else if e.Result != nil {
		line += ": " + truncateString(*e.Result, 80)
	}
	return line
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func statusToIcon(status core.Status) string {
	switch status {
	case core.StatusCompleted:
		return "✅"
	case core.StatusFailed:
		return "❌"
	case core.StatusCancelled:
		return "🚫"
	case core.StatusRunning:
		return "▶️"
	case core.StatusScheduled:
		return "⏳"
	default:
		return "❓"
	}
}
