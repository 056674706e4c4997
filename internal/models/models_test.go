package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlot_Helpers(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &Slot{StartTime: start, EndTime: start.Add(90 * time.Minute)}

	assert.False(t, s.IsBooked())
	assert.Equal(t, 90*time.Minute, s.Duration())

	s.Status = SlotStatusBooked
	assert.True(t, s.IsBooked())

	s.Status = "tentative"
	assert.True(t, s.IsBooked())
}

func TestISOYearWeek(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		wantYear int
		wantWeek int
	}{
		{"mid year", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), 2025, 11},
		{"new year belongs to previous week", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), 2026, 53},
		{"late december belongs to next year", time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), 2026, 1},
		{"offset is normalised to UTC", time.Date(2025, 3, 10, 0, 30, 0, 0, time.FixedZone("", 2*60*60)), 2025, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, week := ISOYearWeek(tt.t)
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantWeek, week)
		})
	}
}

func TestParticipant_Names(t *testing.T) {
	s := &Student{Username: "jdoe", FirstName: "John", LastName: "Doe", Email: "j@example.com"}
	assert.Equal(t, "John Doe", s.FullName())
	assert.Equal(t, "John", s.ProfileField("firstname"))
	assert.Equal(t, "j@example.com", s.ProfileField("email"))
	assert.Equal(t, "", s.ProfileField("missing"))

	anon := &Student{Username: "pilot7"}
	assert.Equal(t, "pilot7", anon.FullName())

	i := &Instructor{FirstName: "Amelia", LastName: "Earhart"}
	assert.Equal(t, "Amelia Earhart", i.FullName())
}
