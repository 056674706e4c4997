package database

import (
	"context"
	"fmt"
	"time"

	"sessionbooking/internal/config"
)

// SyncCoursesFromConfig applies courses.yaml to the database. It upserts courses,
// users and enrolments and replaces each course's exercises. Courses that
// disappeared from the file are unsubscribed and enrolments that disappeared
// are deactivated.
func (db *DB) SyncCoursesFromConfig(ctx context.Context, cfg *config.CoursesConfig) error {
	if cfg == nil {
		return fmt.Errorf("courses config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("sync courses", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	seen := make(map[int64]struct{})

	for _, course := range cfg.Courses {
		fullName := course.FullName
		if fullName == "" {
			fullName = course.ShortName
		}

		// Preserve created_at if the course already exists.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO courses (id, shortname, fullname, subscribed, graduation_exercise_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM courses WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				shortname = excluded.shortname,
				fullname = excluded.fullname,
				subscribed = excluded.subscribed,
				graduation_exercise_id = excluded.graduation_exercise_id,
				updated_at = excluded.updated_at`,
			course.ID, course.ShortName, fullName, course.Subscribed, course.GraduationExercise,
			course.ID, now, now,
		)
		if err != nil {
			return storageErr("sync courses", fmt.Errorf("course %d: %w", course.ID, err))
		}
		seen[course.ID] = struct{}{}

		// Exercises are owned by the catalog; nothing else references them.
		if _, err := tx.ExecContext(ctx, `DELETE FROM exercises WHERE courseid = ?`, course.ID); err != nil {
			return storageErr("sync courses", fmt.Errorf("reset exercises of course %d: %w", course.ID, err))
		}
		for order, ex := range course.Exercises {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO exercises (id, courseid, name, sortorder)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					courseid = excluded.courseid,
					name = excluded.name,
					sortorder = excluded.sortorder`,
				ex.ID, course.ID, ex.Name, order,
			)
			if err != nil {
				return storageErr("sync courses", fmt.Errorf("exercise %d: %w", ex.ID, err))
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE enrolments SET active = 0, updated_at = ? WHERE courseid = ?`, now, course.ID); err != nil {
			return storageErr("sync courses", fmt.Errorf("reset enrolments of course %d: %w", course.ID, err))
		}

		for _, p := range course.Participants {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, username, firstname, lastname, email, telegram_chat_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					username = excluded.username,
					firstname = excluded.firstname,
					lastname = excluded.lastname,
					email = excluded.email,
					telegram_chat_id = excluded.telegram_chat_id,
					updated_at = excluded.updated_at`,
				p.UserID, p.Username, p.FirstName, p.LastName, p.Email, p.TelegramChatID, now, now,
			)
			if err != nil {
				return storageErr("sync courses", fmt.Errorf("user %d: %w", p.UserID, err))
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO enrolments (courseid, userid, role, active, current_exercise_id, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(courseid, userid) DO UPDATE SET
					role = excluded.role,
					active = excluded.active,
					current_exercise_id = excluded.current_exercise_id,
					updated_at = excluded.updated_at`,
				course.ID, p.UserID, p.Role, p.IsActive(), p.CurrentExercise, now,
			)
			if err != nil {
				return storageErr("sync courses", fmt.Errorf("enrolment %d/%d: %w", course.ID, p.UserID, err))
			}
		}
	}

	// Unsubscribe courses that disappeared from config.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM courses`)
	if err != nil {
		return storageErr("sync courses", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storageErr("sync courses", err)
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storageErr("sync courses", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `
			UPDATE courses SET subscribed = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return storageErr("sync courses", fmt.Errorf("unsubscribe course %d: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("sync courses", err)
	}

	db.logger.Info().
		Int("courses", len(cfg.Courses)).
		Int("unsubscribed", len(stale)).
		Msg("Course catalog synced")
	return nil
}
