package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sessionbooking/internal/config"
	"sessionbooking/internal/events"
	"sessionbooking/internal/metrics"
	"sessionbooking/internal/scheduler"
)

// EndorseRequest is the request body for POST /api/students/{id}/endorse.
type EndorseRequest struct {
	CourseID int64 `json:"course_id"`
}

// handleEndorse records that the acting instructor recommends a student for the
// skill test. The digest task delivers the notification on its next run.
// POST /api/students/{id}/endorse
func (s *HTTPServer) handleEndorse(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("endorse")

	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+headerActorID)
		return
	}
	studentID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	var req EndorseRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil || req.CourseID <= 0 {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	if s.deps.Enrolments != nil {
		isInstructor, err := s.deps.Enrolments.IsEnrolled(r.Context(), req.CourseID, actor, config.RoleInstructor)
		if err != nil {
			s.internalError(w, err, "Failed to check enrolment")
			return
		}
		if !isInstructor {
			writeError(w, http.StatusForbidden, "only course instructors can endorse students")
			return
		}
	}

	e, err := events.NewEvent(events.EventStudentEndorsed, events.StudentEndorsed{
		CourseID:   req.CourseID,
		StudentID:  studentID,
		EndorserID: actor,
	})
	if err != nil {
		s.internalError(w, err, "Failed to build endorse event")
		return
	}
	// The endorsement only exists as notification flags, so a failed publish
	// fails the request.
	if err := s.deps.Bus.Publish(r.Context(), e); err != nil {
		s.internalError(w, err, "Failed to record endorsement")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": e.ID})
}

// GET /api/users/{id}/preferences
func (s *HTTPServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("preferences")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	prefs, err := s.deps.Preferences.ListPreferences(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "Failed to list preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

// handleDigestRun runs the digest immediately. A run already in progress here or
// on another instance yields 409.
// POST /api/digest/run
func (s *HTTPServer) handleDigestRun(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("digest_run")

	err := s.deps.Digest.RunNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress), errors.Is(err, scheduler.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.internalError(w, err, "Manual digest run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "last_run": s.deps.Digest.LastRun()})
}

// GET /api/digest/status
func (s *HTTPServer) handleDigestStatus(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("digest_status")
	writeJSON(w, http.StatusOK, map[string]any{"last_run": s.deps.Digest.LastRun()})
}
