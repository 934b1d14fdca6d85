// Package api exposes the exercise tracker over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/chwnex/project-exercisetracker/internal/domain"
)

// Handler coordinates HTTP requests with the user registry and exercise log.
type Handler struct {
	users  *domain.UserRegistry
	log    *domain.ExerciseLog
	logger logrus.FieldLogger
}

// NewHandler builds a Handler.
func NewHandler(users *domain.UserRegistry, log *domain.ExerciseLog, logger logrus.FieldLogger) *Handler {
	return &Handler{users: users, log: log, logger: logger}
}

// RegisterRoutes wires endpoints to r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/", h.createUser)
		r.Get("/", h.listUsers)
		r.Post("/{id}/exercises", h.addExercise)
		r.Get("/{id}/logs", h.getLog)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeFields(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user, err := h.users.Register(r.Context(), req.Username)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserView{Username: user.Username, ID: user.ID})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{Username: u.Username, ID: u.ID})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) addExercise(w http.ResponseWriter, r *http.Request) {
	var req AddExerciseRequest
	if err := decodeFields(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	logged, err := h.log.AddEntry(r.Context(), domain.AddEntryInput{
		UserID:      chi.URLParam(r, "id"),
		Description: req.Description,
		Duration:    req.Duration,
		Date:        req.Date,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ExerciseView{
		Username:    logged.Username,
		Description: logged.Description,
		Duration:    logged.Duration,
		Date:        logged.Date,
		ID:          logged.UserID,
	})
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.log.GetLog(r.Context(), domain.LogQuery{
		UserID: chi.URLParam(r, "id"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  q.Get("limit"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := LogView{
		Username: result.Username,
		Count:    result.Count,
		ID:       result.UserID,
		Log:      make([]LogEntryView, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		resp.Log = append(resp.Log, LogEntryView{
			Description: item.Description,
			Duration:    item.Duration,
			Date:        item.Date,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeDomainError maps domain errors onto the HTTP contract. Unknown users are a client error (400).
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusBadRequest, "not_found", domain.ErrUserNotFound.Error())
	default:
		h.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func validationMessage(err error) string {
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Error()
	}
	return err.Error()
}

// UserView is the public shape of a user.
type UserView struct {
	Username string `json:"username"`
	ID       string `json:"_id"`
}

// ExerciseView answers POST /api/users/{id}/exercises. ID is the owning user's id.
type ExerciseView struct {
	Username    string `json:"username"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
	ID          string `json:"_id"`
}

// LogEntryView is one item of a log.
type LogEntryView struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
}

// LogView answers GET /api/users/{id}/logs.
type LogView struct {
	Username string         `json:"username"`
	Count    int            `json:"count"`
	ID       string         `json:"_id"`
	Log      []LogEntryView `json:"log"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"type":  code,
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
