package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"jarvis/internal/core"

	"github.com/go-chi/chi/v5"
)

type createJobRequest struct {
	Name       string `json:"name"`
	Launcher   string `json:"launcher,omitempty"`
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Cron       string `json:"cron,omitempty"`
	Every      string `json:"every,omitempty"`
	At         string `json:"at,omitempty"`
}

type jobResponse struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Trigger     string  `json:"trigger"`
	NextRunTime *string `json:"next_run_time,omitempty"`
	Recurring   bool    `json:"recurring"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Manager.Scheduler().ListJobs()
	resp := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobToResponse(job))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "job registry is not configured")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	trigger, err := core.ParseTrigger(req.Cron, req.Every, req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_trigger", err.Error())
		return
	}

	spec := &core.JobSpec{
		Name:       name,
		Trigger:    trigger,
		Launcher:   strings.TrimSpace(req.Launcher),
		Command:    strings.TrimSpace(req.Command),
		WorkingDir: strings.TrimSpace(req.WorkingDir),
	}
	info, err := s.deps.Jobs.Add(r.Context(), spec)
	if err != nil {
		var schedErr *core.SchedulingError
		if errors.As(err, &schedErr) {
			writeError(w, http.StatusBadRequest, "invalid_job", err.Error())
			return
		}
		s.logger.Error("add job", "job", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to add job")
		return
	}
	writeJSON(w, http.StatusCreated, jobToResponse(info))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "job registry is not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.deps.Jobs.Remove(r.Context(), name); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		s.logger.Error("remove job", "job", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to remove job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func jobToResponse(job core.JobInfo) jobResponse {
	return jobResponse{
		Name:        job.Name,
		Kind:        string(job.Kind),
		Trigger:     job.Trigger,
		NextRunTime: formatTimePtr(job.NextRunTime),
		Recurring:   job.Recurring,
	}
}
