package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/task"
)

type submitRequest struct {
	SubtitlePath string `json:"subtitle_path"`
	OutputPath   string `json:"output_path"`
	Engine       string `json:"engine"`
	Voice        string `json:"voice"`
}

type taskResponse struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	SubtitlePath    string  `json:"subtitle_path"`
	OutputPath      string  `json:"output_path,omitempty"`
	Engine          string  `json:"engine,omitempty"`
	Voice           string  `json:"voice,omitempty"`
	ProgressStage   string  `json:"progress_stage,omitempty"`
	ProgressPercent float64 `json:"progress_percent"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CueCount        int     `json:"cue_count,omitempty"`
	EscalatedCues   int     `json:"escalated_cues,omitempty"`
	ResultPath      string  `json:"result_path,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type optionsResponse struct {
	Engines       []string `json:"engines"`
	SpeedModes    []string `json:"speed_modes"`
	DefaultEngine string   `json:"default_engine"`
	DefaultVoice  string   `json:"default_voice"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tasks":  counts,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SubtitlePath = strings.TrimSpace(req.SubtitlePath)
	if req.SubtitlePath == "" {
		s.writeError(w, http.StatusBadRequest, "subtitle_path is required")
		return
	}
	if _, err := os.Stat(req.SubtitlePath); err != nil {
		s.writeError(w, http.StatusBadRequest, "subtitle file not found")
		return
	}
	engine := strings.TrimSpace(req.Engine)
	if engine == "" {
		engine = s.cfg.Synthesis.Engine
	}
	if !dubbing.KnownEngine(engine) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown engine %q", engine))
		return
	}

	created, err := s.store.NewTask(r.Context(), req.SubtitlePath, strings.TrimSpace(req.OutputPath), engine, strings.TrimSpace(req.Voice))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, created.ID),
		logging.String("subtitle", created.SubtitlePath))
	s.writeJSON(w, http.StatusAccepted, toTaskResponse(created))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/dubbing/status/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	item, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponse(item))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/dubbing/cancel/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	cancelled, err := s.store.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !cancelled {
		s.writeError(w, http.StatusConflict, "task already finished")
		return
	}
	s.cancelActive(id)
	s.logger.Info("task cancelled", logging.String(logging.FieldTaskID, id))
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(task.StatusCancelled)})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, optionsResponse{
		Engines:       dubbing.EngineNames,
		SpeedModes:    []string{config.SpeedModeStandard, config.SpeedModeHighQuality, config.SpeedModeUltraWide},
		DefaultEngine: s.cfg.Synthesis.Engine,
		DefaultVoice:  s.cfg.Synthesis.Voice,
	})
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Status:          string(t.Status),
		SubtitlePath:    t.SubtitlePath,
		OutputPath:      t.OutputPath,
		Engine:          t.Engine,
		Voice:           t.Voice,
		ProgressStage:   t.ProgressStage,
		ProgressPercent: t.ProgressPercent,
		ProgressMessage: t.ProgressMessage,
		ErrorMessage:    t.ErrorMessage,
		CueCount:        t.CueCount,
		EscalatedCues:   t.EscalatedCues,
		ResultPath:      t.ResultPath,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
