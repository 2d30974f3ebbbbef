package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"jarvis/internal/core"

	"github.com/go-chi/chi/v5"
)

type taskResponse struct {
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	StartedAt   *string        `json:"started_at,omitempty"`
	NextRunTime *string        `json:"next_run_time,omitempty"`
	Trigger     string         `json:"trigger,omitempty"`
	LastRun     *entryResponse `json:"last_run,omitempty"`
}

type entryResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
	DurationMS *int64  `json:"duration_ms,omitempty"`
	Result     *string `json:"result,omitempty"`
	Error      *string `json:"error,omitempty"`
}

type snapshotResponse struct {
	Active    []taskResponse  `json:"active"`
	Scheduled []jobResponse   `json:"scheduled"`
	History   []entryResponse `json:"history"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Manager.GetAllTasks()
	resp := snapshotResponse{
		Active:    make([]taskResponse, 0, len(snap.Active)),
		Scheduled: make([]jobResponse, 0, len(snap.Scheduled)),
		History:   make([]entryResponse, 0, len(snap.History)),
	}
	for _, info := range snap.Active {
		resp.Active = append(resp.Active, taskToResponse(info))
	}
	for _, job := range snap.Scheduled {
		resp.Scheduled = append(resp.Scheduled, jobToResponse(job))
	}
	for _, entry := range snap.History {
		resp.History = append(resp.History, entryToResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := s.deps.Manager.GetTaskStatus(name)
	if errors.Is(err, core.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, taskToResponse(info))
		return
	}
	if err != nil {
		s.logger.Error("task status", "task", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(info))
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var cancelled bool
	if s.deps.Jobs != nil {
		var err error
		cancelled, err = s.deps.Jobs.Cancel(r.Context(), name)
		if err != nil {
			s.logger.Error("cancel task", "task", name, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to cancel task")
			return
		}
	} else {
		cancelled = s.deps.Manager.CancelTask(name)
	}
	if cancelled {
		s.logger.Info("task cancelled via api", "task", name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "cancelled": cancelled})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	if limit <= 0 {
		limit = 20
	}
	var entries []core.HistoryEntry
	if s.deps.History != nil {
		var err error
		entries, err = s.deps.History.RecentHistory(r.Context(), limit)
		if err != nil {
			s.logger.Error("list history", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list history")
			return
		}
	} else {
		entries = s.deps.Manager.HistoryTail(limit)
	}
	resp := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, entryToResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func taskToResponse(info core.TaskInfo) taskResponse {
	resp := taskResponse{
		Name:        info.Name,
		Status:      string(info.Status),
		StartedAt:   formatTimePtr(info.StartedAt),
		NextRunTime: formatTimePtr(info.NextRunTime),
		Trigger:     info.Trigger,
	}
	if info.Entry != nil {
		entry := entryToResponse(*info.Entry)
		resp.LastRun = &entry
	}
	return resp
}

func entryToResponse(entry core.HistoryEntry) entryResponse {
	resp := entryResponse{
		ID:        entry.ID,
		Name:      entry.Name,
		Status:    string(entry.Status),
		Timestamp: entry.Timestamp.UTC().Format(time.RFC3339),
		Result:    entry.Result,
		Error:     entry.Error,
	}
	if entry.Duration != nil {
		ms := entry.Duration.Milliseconds()
		resp.DurationMS = &ms
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
