package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"timeline-orchestrator/internal/composition"
	"timeline-orchestrator/internal/registry"
)

const scheduleContentType = "text/plain; charset=utf-8"

// maxBodyBytes bounds segment and composition request bodies.
const maxBodyBytes = 1 << 20

// Handler exposes session endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Get("/schedule.txt", h.GetSchedule)
		r.Post("/segments", h.RegisterSegment)
		r.Post("/composition", h.LoadComposition)
		r.Post("/end", h.EndSession)
	})
}

// RegisterSegment handles POST /sessions/{session_id}/segments.
// Body: { "id": "b", "depends_on": ["a.mid"], "steps": [{"duration": 1}] }.
func (h *Handler) RegisterSegment(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var seg composition.Segment
	if err := decodeJSON(w, r, &seg); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.RegisterSegment(sessionID, seg); err != nil {
		h.writeRegisterError(w, sessionID, err)
		return
	}

	h.log.Debug("segment submitted",
		slog.String("session_id", string(sessionID)),
		slog.String("segment", seg.ID),
		slog.Any("depends_on", seg.DependsOn))
	w.WriteHeader(http.StatusAccepted)
}

// LoadComposition handles POST /sessions/{session_id}/composition.
// Body: { "name": "intro", "segments": [ ... ] }.
func (h *Handler) LoadComposition(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var c composition.Composition
	if err := decodeJSON(w, r, &c); err != nil {
		h.log.Debug("invalid composition body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.LoadComposition(sessionID, c); err != nil {
		h.writeRegisterError(w, sessionID, err)
		return
	}

	h.log.Info("composition submitted",
		slog.String("session_id", string(sessionID)),
		slog.String("name", c.Name),
		slog.Int("segments", len(c.Segments)))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeRegisterError(w http.ResponseWriter, sessionID SessionID, err error) {
	switch {
	case errors.Is(err, composition.ErrInvalid), errors.Is(err, registry.ErrInvalidRequest):
		h.log.Debug("segment rejected", slog.String("session_id", string(sessionID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrSessionEnded):
		h.log.Info("segment rejected session ended", slog.String("session_id", string(sessionID)))
		w.WriteHeader(http.StatusConflict)
	default:
		h.log.Error("register segment failed", slog.String("session_id", string(sessionID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// GetStatus handles GET /sessions/{session_id}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := h.svc.Status(SessionID(chi.URLParam(r, "session_id")))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		h.log.Error("encode status failed", slog.String("error", err.Error()))
	}
}

// GetSchedule handles GET /sessions/{session_id}/schedule.txt.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.svc.Schedule(SessionID(chi.URLParam(r, "session_id")))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", scheduleContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(sheet)); err != nil {
		h.log.Error("write schedule failed", slog.String("error", err.Error()))
	}
}

// EndSession handles POST /sessions/{session_id}/end.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.EndSession(sessionID); err != nil {
		h.log.Error("end session failed", slog.String("session_id", string(sessionID)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	attrs := []any{slog.String("session_id", string(sessionID))}
	if st, ok := h.svc.Status(sessionID); ok {
		for outcome, n := range outcomeCounts(st.Placements) {
			attrs = append(attrs, slog.Int(string(outcome), n))
		}
	}
	h.log.Info("session ended", attrs...)
	w.WriteHeader(http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
