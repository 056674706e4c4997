package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sessionbooking/internal/models"
)

// Preferences is a per-user key/value store backed by user_preferences.
type Preferences struct {
	db *DB
}

func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// GetPreference returns the stored value, or def when the user has none.
func (p *Preferences) GetPreference(ctx context.Context, name, def string, userID int64) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM user_preferences WHERE userid = ? AND name = ?`,
		userID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", storageErr("get preference", err)
	}
	return value, nil
}

// SetPreference creates or updates a preference.
func (p *Preferences) SetPreference(ctx context.Context, name, value string, userID int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_preferences (userid, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(userid, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		userID, name, value, time.Now())
	return storageErr("set preference", err)
}

// AppendPreference adds value to a comma-separated list preference in a single
// statement.
func (p *Preferences) AppendPreference(ctx context.Context, name, value string, userID int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_preferences (userid, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(userid, name) DO UPDATE SET
			value = CASE
				WHEN user_preferences.value = '' THEN excluded.value
				ELSE user_preferences.value || ',' || excluded.value
			END,
			updated_at = excluded.updated_at`,
		userID, name, value, time.Now())
	return storageErr("append preference", err)
}

// CompareAndSetPreference stores value only if the preference still holds old.
// It reports whether the write happened.
func (p *Preferences) CompareAndSetPreference(ctx context.Context, name, old, value string, userID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE user_preferences SET value = ?, updated_at = ?
		WHERE userid = ? AND name = ? AND value = ?`,
		value, time.Now(), userID, name, old)
	if err != nil {
		return false, storageErr("compare and set preference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("compare and set preference", err)
	}
	return n > 0, nil
}

// ListPreferences returns every preference of a user, keyed by name.
func (p *Preferences) ListPreferences(ctx context.Context, userID int64) ([]models.Preference, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT userid, name, value, updated_at
		FROM user_preferences
		WHERE userid = ?
		ORDER BY name`, userID)
	if err != nil {
		return nil, storageErr("list preferences", err)
	}
	defer rows.Close()

	var prefs []models.Preference
	for rows.Next() {
		var pref models.Preference
		if err := rows.Scan(&pref.UserID, &pref.Name, &pref.Value, &pref.UpdatedAt); err != nil {
			return nil, storageErr("list preferences", err)
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list preferences", err)
	}
	return prefs, nil
}
