package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sessionbooking/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestVault(t *testing.T) (*SlotVault, *DB) {
	t.Helper()

	db := newTestDB(t)
	logger := zerolog.Nop()
	return NewSlotVault(db, &logger), db
}

func saveSlot(t *testing.T, v *SlotVault, s models.Slot) models.Slot {
	t.Helper()

	_, err := v.Save(context.Background(), 0, &s)
	require.NoError(t, err)
	return s
}

func slotAt(userID, courseID int64, start time.Time, status models.SlotStatus) models.Slot {
	year, week := models.ISOYearWeek(start)
	return models.Slot{
		UserID:    userID,
		CourseID:  courseID,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Year:      year,
		Week:      week,
		Status:    status,
	}
}
