package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sessionbooking/internal/database"
	"sessionbooking/internal/events"
	"sessionbooking/internal/metrics"
	"sessionbooking/internal/models"
)

// SaveSlotRequest is the request body for POST /api/slots.
type SaveSlotRequest struct {
	CourseID    int64     `json:"course_id"`
	UserID      int64     `json:"user_id,omitempty"` // Defaults to the actor
	StartTime   time.Time `json:"start_time"`        // RFC 3339
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status,omitempty"`
	BookingInfo string    `json:"booking_info,omitempty"`
}

// ConfirmSlotRequest is the request body for POST /api/slots/{id}/confirm.
type ConfirmSlotRequest struct {
	BookingInfo string `json:"booking_info"`
}

// handleSaveSlot stores a new slot and announces open postings.
// POST /api/slots
func (s *HTTPServer) handleSaveSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("save_slot")

	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+headerActorID)
		return
	}

	var req SaveSlotRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.CourseID <= 0 {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}
	if req.StartTime.IsZero() || !req.EndTime.After(req.StartTime) {
		writeError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	year, week := models.ISOYearWeek(req.StartTime)
	slot := &models.Slot{
		UserID:      req.UserID,
		CourseID:    req.CourseID,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Year:        year,
		Week:        week,
		Status:      models.SlotStatus(req.Status),
		BookingInfo: req.BookingInfo,
	}

	if _, err := s.deps.Slots.Save(r.Context(), actor, slot); err != nil {
		s.internalError(w, err, "Failed to save slot")
		return
	}

	if !slot.IsBooked() {
		s.publish(r, events.EventSlotPosted, events.SlotPosted{
			CourseID:  slot.CourseID,
			StudentID: slot.UserID,
			SlotIDs:   []int64{slot.ID},
		})
	}

	writeJSON(w, http.StatusCreated, slot)
}

// handleListSlots returns a user's slots for one ISO week.
// GET /api/slots?userid=&year=&week=
func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_slots")

	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("userid"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userid is required")
		return
	}
	year, week, ok := parseYearWeek(q.Get("year"), q.Get("week"))
	if !ok {
		writeError(w, http.StatusBadRequest, "year and week are required")
		return
	}

	slots, err := s.deps.Slots.GetSlots(r.Context(), userID, year, week)
	if err != nil {
		s.internalError(w, err, "Failed to list slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// handleDeleteSlots removes a user's slots of a course.
// DELETE /api/slots?courseid=&year=&week=&userid=&include_booked=true
func (s *HTTPServer) handleDeleteSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_slots")

	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+headerActorID)
		return
	}

	q := r.URL.Query()
	courseID, err := strconv.ParseInt(q.Get("courseid"), 10, 64)
	if err != nil || courseID <= 0 {
		writeError(w, http.StatusBadRequest, "courseid is required")
		return
	}

	filter := database.SlotFilter{
		CourseID:      courseID,
		IncludeBooked: q.Get("include_booked") == "true",
	}
	if v := q.Get("userid"); v != "" {
		filter.UserID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userid")
			return
		}
	}
	if !filter.IncludeBooked {
		filter.Year, filter.Week, ok = parseYearWeek(q.Get("year"), q.Get("week"))
		if !ok {
			writeError(w, http.StatusBadRequest, "year and week are required")
			return
		}
	}

	deleted, err := s.deps.Slots.DeleteSlots(r.Context(), actor, filter)
	if err != nil {
		s.internalError(w, err, "Failed to delete slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// GET /api/slots/{id}
func (s *HTTPServer) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_slot")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	slot, err := s.deps.Slots.GetSlot(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "Failed to get slot")
		return
	}
	if slot == nil {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// DELETE /api/slots/{id}
func (s *HTTPServer) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_slot")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	deleted, err := s.deps.Slots.DeleteSlot(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "Failed to delete slot")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/slots/{id}/confirm
func (s *HTTPServer) handleConfirmSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm_slot")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	var req ConfirmSlotRequest
	if r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	found, err := s.deps.Slots.ConfirmSlot(r.Context(), id, req.BookingInfo)
	if err != nil {
		s.internalError(w, err, "Failed to confirm slot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

// GET /api/students/{id}/last-session
func (s *HTTPServer) handleLastSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("last_session")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	slot, err := s.deps.Slots.GetLastBookedSession(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "Failed to get last session")
		return
	}
	if slot == nil {
		writeError(w, http.StatusNotFound, "no booked session")
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func parseYearWeek(yearStr, weekStr string) (year, week int, ok bool) {
	year, errYear := strconv.Atoi(yearStr)
	week, errWeek := strconv.Atoi(weekStr)
	if errYear != nil || errWeek != nil || week < 1 || week > 53 {
		return 0, 0, false
	}
	return year, week, true
}

// publish emits an event after the primary write succeeded. Failures are logged
// only; the write itself is not rolled back.
func (s *HTTPServer) publish(r *http.Request, eventType string, payload any) {
	if s.deps.Bus == nil {
		return
	}
	e, err := events.NewEvent(eventType, payload)
	if err == nil {
		err = s.deps.Bus.Publish(r.Context(), e)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
