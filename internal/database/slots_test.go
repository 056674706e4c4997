package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessionbooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func TestSlotVault_SaveAndGet(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	slot := slotAt(100, 2, monday, models.SlotStatusOpen)
	slot.BookingInfo = "dual"

	id1, err := v.Save(ctx, 0, &slot)
	require.NoError(t, err)
	assert.Equal(t, id1, slot.ID)

	other := slotAt(100, 2, monday.Add(24*time.Hour), models.SlotStatusOpen)
	id2, err := v.Save(ctx, 0, &other)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	got, err := v.GetSlot(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.UserID)
	assert.Equal(t, int64(2), got.CourseID)
	assert.True(t, got.StartTime.Equal(monday))
	assert.True(t, got.EndTime.Equal(monday.Add(2*time.Hour)))
	assert.Equal(t, 2025, got.Year)
	assert.Equal(t, 11, got.Week)
	assert.Equal(t, models.SlotStatusOpen, got.Status)
	assert.Equal(t, "dual", got.BookingInfo)
}

func TestSlotVault_SaveDefaultsToActor(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	slot := slotAt(0, 2, monday, models.SlotStatusOpen)
	id, err := v.Save(ctx, 42, &slot)
	require.NoError(t, err)
	assert.Equal(t, int64(42), slot.UserID)

	got, err := v.GetSlot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
}

func TestSlotVault_GetSlotMissing(t *testing.T) {
	v, _ := newTestVault(t)

	got, err := v.GetSlot(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSlotVault_GetSlots(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	booked := saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusBooked))
	open1 := saveSlot(t, v, slotAt(100, 2, monday.Add(time.Hour), models.SlotStatusOpen))
	open2 := saveSlot(t, v, slotAt(100, 2, monday.Add(2*time.Hour), models.SlotStatusOpen))
	saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 0, 7), models.SlotStatusOpen)) // next week
	saveSlot(t, v, slotAt(200, 2, monday, models.SlotStatusOpen))                  // other user

	slots, err := v.GetSlots(ctx, 100, 2025, 11)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, open1.ID, slots[0].ID)
	assert.Equal(t, open2.ID, slots[1].ID)
	assert.Equal(t, booked.ID, slots[2].ID)

	empty, err := v.GetSlots(ctx, 100, 2024, 1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSlotVault_GetSlotsZeroIsLiteral(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusOpen))
	undated := slotAt(100, 2, monday, models.SlotStatusOpen)
	undated.Year, undated.Week = 0, 0
	saveSlot(t, v, undated)

	slots, err := v.GetSlots(ctx, 100, 0, 0)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].Year)
}

func TestSlotVault_DeleteSlot(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	booked := saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusBooked))

	ok, err := v.DeleteSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := v.GetSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = v.DeleteSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotVault_DeleteSlotsGuarded(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	open := saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusOpen))
	booked := saveSlot(t, v, slotAt(100, 2, monday.Add(time.Hour), models.SlotStatusBooked))
	nextWeek := saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 0, 7), models.SlotStatusOpen))
	otherCourse := saveSlot(t, v, slotAt(100, 3, monday, models.SlotStatusOpen))

	ok, err := v.DeleteSlots(ctx, 100, SlotFilter{CourseID: 2, Year: 2025, Week: 11})
	require.NoError(t, err)
	assert.True(t, ok)

	for _, id := range []int64{booked.ID, nextWeek.ID, otherCourse.ID} {
		got, err := v.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got, "slot %d should survive", id)
	}
	got, err := v.GetSlot(ctx, open.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = v.DeleteSlots(ctx, 100, SlotFilter{CourseID: 2, Year: 2025, Week: 11})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotVault_DeleteSlotsUnguarded(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusOpen))
	saveSlot(t, v, slotAt(100, 2, monday.Add(time.Hour), models.SlotStatusBooked))
	saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 1, 0), models.SlotStatusOpen))
	keep := saveSlot(t, v, slotAt(200, 2, monday, models.SlotStatusOpen))

	// The actor deletes another user's slots explicitly.
	ok, err := v.DeleteSlots(ctx, 1, SlotFilter{CourseID: 2, UserID: 100, IncludeBooked: true})
	require.NoError(t, err)
	assert.True(t, ok)

	var n int
	require.NoError(t, v.db.QueryRow(`SELECT COUNT(*) FROM slots WHERE userid = 100`).Scan(&n))
	assert.Zero(t, n)

	got, err := v.GetSlot(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSlotVault_ConfirmSlot(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	slot := saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusOpen))

	for i := 0; i < 2; i++ {
		ok, err := v.ConfirmSlot(ctx, slot.ID, "with CFI Earhart")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := v.GetSlot(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SlotStatusBooked, got.Status)
		assert.Equal(t, "with CFI Earhart", got.BookingInfo)
	}

	ok, err := v.ConfirmSlot(ctx, 999, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotVault_GetLastBookedSession(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	last, err := v.GetLastBookedSession(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, last)

	saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusBooked))
	latest := saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 0, 2), models.SlotStatusBooked))
	saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 0, 5), models.SlotStatusOpen))
	saveSlot(t, v, slotAt(200, 2, monday.AddDate(0, 0, 9), models.SlotStatusBooked))

	last, err = v.GetLastBookedSession(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, latest.ID, last.ID)
}

func TestSlotVault_DeleteSlotsEndedBefore(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	saveSlot(t, v, slotAt(100, 2, monday, models.SlotStatusBooked))
	recent := saveSlot(t, v, slotAt(100, 2, monday.AddDate(0, 0, 30), models.SlotStatusOpen))

	n, err := v.DeleteSlotsEndedBefore(ctx, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := v.GetSlot(ctx, recent.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSlotVault_StorageError(t *testing.T) {
	v, db := newTestVault(t)
	require.NoError(t, db.Close())

	_, err := v.GetSlot(context.Background(), 1)
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get slot", se.Op)
	assert.True(t, IsStorageError(err))
}
