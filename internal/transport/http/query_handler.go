package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lecture-quiz-service/internal/app"
	"lecture-quiz-service/internal/domain"
)

// QueryHandler exposes the request/response query surface: session metadata,
// quiz history for non-realtime clients, and on-demand reports.
type QueryHandler struct {
	coordinator *app.Coordinator
}

func NewQueryHandler(coordinator *app.Coordinator) *QueryHandler {
	return &QueryHandler{coordinator: coordinator}
}

func (h *QueryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("GET /sessions/{id}/quizzes", h.listQuizzes)
	mux.HandleFunc("GET /sessions/{id}/report", h.sessionReport)
	mux.HandleFunc("GET /sessions/{id}/participants/{participantID}/report", h.participantReport)
}

func (h *QueryHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.coordinator.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, session)
}

func (h *QueryHandler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.coordinator.ListQuizzes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, quizzes)
}

func (h *QueryHandler) sessionReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.coordinator.SessionReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (h *QueryHandler) participantReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.coordinator.ParticipantReport(r.Context(), r.PathValue("id"), r.PathValue("participantID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidTimeLimit):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorPayload{Message: err.Error()})
}
