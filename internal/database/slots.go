package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sessionbooking/internal/metrics"
	"sessionbooking/internal/models"

	"github.com/rs/zerolog"
)

const slotColumns = `id, userid, courseid, starttime, endtime, year, week, slotstatus, bookinginfo`

// SlotFilter selects the slots removed by DeleteSlots. A zero UserID means the
// acting user. Unless IncludeBooked is set, only open slots of the given
// year and week are removed.
type SlotFilter struct {
	CourseID      int64
	Year          int
	Week          int
	UserID        int64
	IncludeBooked bool
}

// SlotVault is the repository over the slots table.
type SlotVault struct {
	db     *DB
	logger zerolog.Logger
}

func NewSlotVault(db *DB, logger *zerolog.Logger) *SlotVault {
	return &SlotVault{
		db:     db,
		logger: logger.With().Str("component", "slot_vault").Logger(),
	}
}

// GetSlot returns the slot with the given id, or nil when there is none.
func (v *SlotVault) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	row := v.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)

	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	return slot, nil
}

// GetSlots returns the user's slots of one ISO week, open slots first.
func (v *SlotVault) GetSlots(ctx context.Context, userID int64, year, week int) ([]models.Slot, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE userid = ? AND year = ? AND week = ?
		ORDER BY slotstatus ASC, id ASC`, userID, year, week)
	if err != nil {
		return nil, storageErr("get slots", err)
	}
	defer rows.Close()

	slots := make([]models.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, storageErr("get slots", err)
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get slots", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot regardless of its status.
func (v *SlotVault) DeleteSlot(ctx context.Context, id int64) (bool, error) {
	res, err := v.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete slot", err)
	}
	metrics.IncSlotOperation("delete")
	return n > 0, nil
}

// DeleteSlots removes the slots matching f on behalf of actorID.
func (v *SlotVault) DeleteSlots(ctx context.Context, actorID int64, f SlotFilter) (bool, error) {
	userID := f.UserID
	if userID == 0 {
		userID = actorID
	}

	var (
		res sql.Result
		err error
	)
	if f.IncludeBooked {
		res, err = v.db.ExecContext(ctx, `
			DELETE FROM slots WHERE courseid = ? AND userid = ?`,
			f.CourseID, userID)
	} else {
		res, err = v.db.ExecContext(ctx, `
			DELETE FROM slots
			WHERE courseid = ? AND userid = ? AND slotstatus = '' AND year = ? AND week = ?`,
			f.CourseID, userID, f.Year, f.Week)
	}
	if err != nil {
		return false, storageErr("delete slots", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete slots", err)
	}
	metrics.IncSlotOperation("delete_many")

	v.logger.Debug().
		Int64("course_id", f.CourseID).
		Int64("user_id", userID).
		Int("year", f.Year).
		Int("week", f.Week).
		Bool("include_booked", f.IncludeBooked).
		Int64("deleted", n).
		Msg("Slots deleted")
	return n > 0, nil
}

// Save inserts a new slot and returns its id. A zero UserID is replaced by actorID.
func (v *SlotVault) Save(ctx context.Context, actorID int64, slot *models.Slot) (int64, error) {
	userID := slot.UserID
	if userID == 0 {
		userID = actorID
	}

	res, err := v.db.ExecContext(ctx, `
		INSERT INTO slots (userid, courseid, starttime, endtime, year, week, slotstatus, bookinginfo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, slot.CourseID, slot.StartTime.Unix(), slot.EndTime.Unix(),
		slot.Year, slot.Week, string(slot.Status), slot.BookingInfo)
	if err != nil {
		return 0, storageErr("save slot", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("save slot", err)
	}
	metrics.IncSlotOperation("save")

	slot.ID = id
	slot.UserID = userID
	return id, nil
}

// ConfirmSlot marks a slot as booked. Confirming twice is harmless; the result
// reports whether a row with that id exists.
func (v *SlotVault) ConfirmSlot(ctx context.Context, id int64, bookingInfo string) (bool, error) {
	res, err := v.db.ExecContext(ctx, `
		UPDATE slots SET slotstatus = ?, bookinginfo = ? WHERE id = ?`,
		string(models.SlotStatusBooked), bookingInfo, id)
	if err != nil {
		return false, storageErr("confirm slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("confirm slot", err)
	}
	metrics.IncSlotOperation("confirm")
	return n > 0, nil
}

// GetLastBookedSession returns the student's latest booked slot by start time.
func (v *SlotVault) GetLastBookedSession(ctx context.Context, studentID int64) (*models.Slot, error) {
	row := v.db.QueryRowContext(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE userid = ? AND slotstatus != ''
		ORDER BY starttime DESC, id DESC
		LIMIT 1`, studentID)

	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get last booked session", err)
	}
	return slot, nil
}

// DeleteSlotsEndedBefore removes every slot whose end time is before cutoff.
// Returns the number of deleted rows.
func (v *SlotVault) DeleteSlotsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := v.db.ExecContext(ctx, `DELETE FROM slots WHERE endtime < ?`, cutoff.Unix())
	if err != nil {
		return 0, storageErr("delete ended slots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete ended slots", err)
	}
	metrics.IncSlotOperation("cleanup")
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var (
		s          models.Slot
		start, end int64
		status     string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.CourseID, &start, &end,
		&s.Year, &s.Week, &status, &s.BookingInfo); err != nil {
		return nil, err
	}
	s.StartTime = time.Unix(start, 0).UTC()
	s.EndTime = time.Unix(end, 0).UTC()
	s.Status = models.SlotStatus(status)
	return &s, nil
}
