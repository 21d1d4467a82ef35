package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/voxlabs/voxd/asr"
	"github.com/voxlabs/voxd/audio"
	"github.com/voxlabs/voxd/history"
	"github.com/voxlabs/voxd/record"
)

type healthResponse struct {
	OK            bool             `json:"ok"`
	Ready         bool             `json:"ready"`
	Status        asr.State        `json:"status"`
	Phase         asr.Phase        `json:"phase"`
	PhaseIndex    int              `json:"phase_index"`
	Phases        []asr.Phase      `json:"phases"`
	Progress      float64          `json:"progress"`
	Message       string           `json:"message"`
	Error         string           `json:"error,omitempty"`
	Events        []asr.PhaseEvent `json:"events"`
	Recording     bool             `json:"recording"`
	Model         string           `json:"model"`
	Device        string           `json:"device"`
	SampleRate    int              `json:"sample_rate"`
	StartedAt     float64          `json:"started_at"`
	ReadyAt       *float64         `json:"ready_at"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	PID           int              `json:"pid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.lifecycle.Status()

	var readyAt *float64
	if status.ReadyAt > 0 {
		readyAt = &status.ReadyAt
	}

	writeJSON(w, http.StatusOK, healthResponse{
		OK:            true,
		Ready:         s.lifecycle.Ready(),
		Status:        status.State,
		Phase:         status.Phase,
		PhaseIndex:    status.PhaseIndex,
		Phases:        asr.Phases,
		Progress:      status.Progress,
		Message:       status.Message,
		Error:         status.Error,
		Events:        status.Events,
		Recording:     s.session.Recording(),
		Model:         status.Model,
		Device:        status.Device,
		SampleRate:    audio.SampleRate,
		StartedAt:     status.StartedAt,
		ReadyAt:       readyAt,
		UptimeSeconds: float64(time.Now().UnixMilli())/1000 - status.StartedAt,
		PID:           os.Getpid(),
	})
}

type startResponse struct {
	OK         bool   `json:"ok"`
	SampleRate int    `json:"sample_rate"`
	Device     string `json:"device"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// Reject before touching the session: transcription would fail on stop
	// anyway while the model is still loading.
	if !s.lifecycle.Ready() {
		writeError(w, http.StatusServiceUnavailable, "Model is still loading. Please wait.")
		return
	}

	info, err := s.session.Start()
	if err != nil {
		if errors.Is(err, record.ErrAlreadyRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Start failed: %v", err))
		return
	}

	slog.Info("Recording started", "device", info.Device, "sampleRate", info.SampleRate)
	writeJSON(w, http.StatusOK, startResponse{OK: true, SampleRate: info.SampleRate, Device: info.Device})
}

type stopResponse struct {
	Text    string        `json:"text"`
	Seconds float64       `json:"seconds"`
	Item    *history.Item `json:"item,omitempty"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	plain, _ := strconv.ParseBool(r.URL.Query().Get("plain"))

	samples, err := s.session.Stop()
	if err != nil {
		if errors.Is(err, record.ErrNotRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Stop failed: %v", err))
		return
	}
	seconds := s.session.Elapsed()

	// Nothing captured: skip the model entirely.
	if len(samples) == 0 {
		if plain {
			writePlain(w, "")
			return
		}
		writeJSON(w, http.StatusOK, stopResponse{Text: "", Seconds: seconds})
		return
	}

	// Transcription runs to completion regardless of the client connection,
	// so the request context is deliberately not used here.
	text, err := s.lifecycle.Transcribe(context.Background(), samples, audio.SampleRate)
	if err != nil {
		if errors.Is(err, asr.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "Model is still loading. Please wait.")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Transcribe failed: %v", err))
		return
	}

	item := history.NewItem(text, seconds)
	if err := s.store.Append(item); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save history: %v", err))
		return
	}

	slog.Info("Recording transcribed", "seconds", seconds, "itemID", item.ID)
	if plain {
		writePlain(w, text)
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{Text: text, Seconds: seconds, Item: &item})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	offset := queryInt(r, "offset", 0)
	writeJSON(w, http.StatusOK, s.store.List(limit, offset))
}

func (s *Server) handleHistoryAll(w http.ResponseWriter, r *http.Request) {
	items := s.store.ListAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(items),
		"items": items,
	})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := s.store.Delete(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Delete failed: %v", err))
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "History item not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writePlain(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
