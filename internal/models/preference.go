package models

import "time"

// Preference is a named per-user setting.
type Preference struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
