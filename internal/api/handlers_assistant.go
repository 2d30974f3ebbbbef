package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"jarvis/internal/assistant"
	"jarvis/internal/nlp"
)

type statusResponse struct {
	assistant.Status
	Active    int `json:"active_tasks"`
	Scheduled int `json:"scheduled_jobs"`
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

type turnResponse struct {
	Timestamp string `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Message   string `json:"message"`
	Mood      string `json:"mood,omitempty"`
}

type knowledgeRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	if s.deps.Assistant != nil {
		resp.Status = s.deps.Assistant.Status()
	}
	resp.Active = len(s.deps.Manager.Executor().Active())
	resp.Scheduled = s.deps.Manager.Scheduler().Len()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "assistant is not running")
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "text is required")
		return
	}
	reply, err := s.deps.Assistant.Submit(r.Context(), text)
	switch {
	case errors.Is(err, assistant.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped", "assistant is shutting down")
	case err != nil && reply == "":
		s.logger.Error("submit command", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	case err != nil:
		// the loop already spoke an error response
		writeJSON(w, http.StatusOK, commandResponse{Reply: reply, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, commandResponse{Reply: reply})
	}
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Turns == nil {
		writeJSON(w, http.StatusOK, []turnResponse{})
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	turns, err := s.deps.Turns.RecentTurns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list conversation", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list conversation")
		return
	}
	resp := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		resp = append(resp, turnResponse{
			Timestamp: turn.Timestamp.UTC().Format(time.RFC3339),
			Speaker:   string(turn.Speaker),
			Message:   turn.Message,
			Mood:      string(turn.Mood),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "knowledge base is not configured")
		return
	}
	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	doc, err := s.deps.Knowledge.Add(r.Context(), req.Text, strings.TrimSpace(req.Source))
	if errors.Is(err, nlp.ErrEmptyDocument) {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("add knowledge", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to add document")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
