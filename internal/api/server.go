package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sessionbooking/internal/database"
	"sessionbooking/internal/events"
	"sessionbooking/internal/models"
	"sessionbooking/internal/scheduler"

	"github.com/rs/zerolog"
)

const (
	headerAPIKey  = "X-API-Key"
	headerActorID = "X-Actor-ID"
)

// SlotStore is the slot repository used by the handlers.
type SlotStore interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	GetSlots(ctx context.Context, userID int64, year, week int) ([]models.Slot, error)
	DeleteSlot(ctx context.Context, id int64) (bool, error)
	DeleteSlots(ctx context.Context, actorID int64, f database.SlotFilter) (bool, error)
	Save(ctx context.Context, actorID int64, slot *models.Slot) (int64, error)
	ConfirmSlot(ctx context.Context, id int64, bookingInfo string) (bool, error)
	GetLastBookedSession(ctx context.Context, studentID int64) (*models.Slot, error)
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// EnrolmentChecker answers role questions about course participants.
type EnrolmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, userID int64, role string) (bool, error)
}

// PreferenceLister exposes stored user preferences read-only.
type PreferenceLister interface {
	ListPreferences(ctx context.Context, userID int64) ([]models.Preference, error)
}

// DigestRunner triggers digest runs outside the schedule.
type DigestRunner interface {
	RunNow(ctx context.Context) error
	LastRun() *scheduler.RunStatus
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Slots       SlotStore
	Bus         Publisher
	Enrolments  EnrolmentChecker
	Preferences PreferenceLister
	Digest      DigestRunner
	// Checks are run by /readyz; any error makes the service not ready.
	Checks map[string]func(context.Context) error
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server *http.Server
	deps   Deps
	apiKey string
	logger zerolog.Logger
}

func NewHTTPServer(addr, apiKey string, deps Deps, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		deps:   deps,
		apiKey: apiKey,
		logger: logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.Handle("POST /api/slots", s.auth(s.handleSaveSlot))
	mux.Handle("GET /api/slots", s.auth(s.handleListSlots))
	mux.Handle("DELETE /api/slots", s.auth(s.handleDeleteSlots))
	mux.Handle("GET /api/slots/{id}", s.auth(s.handleGetSlot))
	mux.Handle("DELETE /api/slots/{id}", s.auth(s.handleDeleteSlot))
	mux.Handle("POST /api/slots/{id}/confirm", s.auth(s.handleConfirmSlot))
	mux.Handle("GET /api/students/{id}/last-session", s.auth(s.handleLastSession))
	mux.Handle("POST /api/students/{id}/endorse", s.auth(s.handleEndorse))
	mux.Handle("GET /api/users/{id}/preferences", s.auth(s.handlePreferences))
	mux.Handle("POST /api/digest/run", s.auth(s.handleDigestRun))
	mux.Handle("GET /api/digest/status", s.auth(s.handleDigestStatus))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.recoverer(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start listens until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	})
}

func (s *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, name+" not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// actorID reads the acting user from the X-Actor-ID header.
func actorID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(headerActorID), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *HTTPServer) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal error")
}
