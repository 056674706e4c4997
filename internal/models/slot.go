package models

import "time"

// SlotStatus is the lifecycle marker of a slot. An empty status means the slot is
// an open availability posting.
type SlotStatus string

const (
	SlotStatusOpen   SlotStatus = ""
	SlotStatusBooked SlotStatus = "booked"
)

// Slot is a student's availability interval or a confirmed session booking.
type Slot struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	CourseID    int64      `json:"course_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Year        int        `json:"year"`
	Week        int        `json:"week"`
	Status      SlotStatus `json:"status"`
	BookingInfo string     `json:"booking_info"`
}

// IsBooked reports whether the slot carries any non-open status.
func (s *Slot) IsBooked() bool {
	return s.Status != SlotStatusOpen
}

// Duration returns the length of the slot.
func (s *Slot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// ISOYearWeek returns the ISO 8601 year and week of t in UTC. Callers use it to fill
// Slot.Year and Slot.Week; the repository never recomputes them.
func ISOYearWeek(t time.Time) (year, week int) {
	return t.UTC().ISOWeek()
}
