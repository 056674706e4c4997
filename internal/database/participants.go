package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sessionbooking/internal/config"
	"sessionbooking/internal/models"
)

// Participants serves the course catalog and enrolments synced from courses.yaml.
type Participants struct {
	db *DB
}

func NewParticipants(db *DB) *Participants {
	return &Participants{db: db}
}

// ListCourses returns every known course ordered by id.
func (p *Participants) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, shortname, fullname, subscribed, graduation_exercise_id
		FROM courses
		ORDER BY id`)
	if err != nil {
		return nil, storageErr("list courses", err)
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.ShortName, &c.FullName, &c.Subscribed, &c.GraduationExerciseID); err != nil {
			return nil, storageErr("list courses", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list courses", err)
	}
	return courses, nil
}

// IsSubscribed reports whether the course takes part in session booking.
// Unknown courses are not subscribed.
func (p *Participants) IsSubscribed(ctx context.Context, courseID int64) (bool, error) {
	var subscribed bool
	err := p.db.QueryRowContext(ctx, `SELECT subscribed FROM courses WHERE id = ?`, courseID).Scan(&subscribed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("is subscribed", err)
	}
	return subscribed, nil
}

// ListActiveStudents returns the active students of a course with their current
// and next exercise. The next exercise is the one following the current exercise
// in course order, or the first exercise when the student has not started.
func (p *Participants) ListActiveStudents(ctx context.Context, courseID int64) ([]models.Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.firstname, u.lastname, u.email, e.current_exercise_id,
			COALESCE((
				SELECT nx.id FROM exercises nx
				WHERE nx.courseid = e.courseid
				  AND (
					nx.sortorder > COALESCE((SELECT cur.sortorder FROM exercises cur WHERE cur.id = e.current_exercise_id), -1)
				  )
				ORDER BY nx.sortorder ASC, nx.id ASC
				LIMIT 1
			), 0)
		FROM enrolments e
		JOIN users u ON u.id = e.userid
		WHERE e.courseid = ? AND e.role = ? AND e.active = 1
		ORDER BY u.id`, courseID, config.RoleStudent)
	if err != nil {
		return nil, storageErr("list active students", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.Username, &s.FirstName, &s.LastName, &s.Email,
			&s.CurrentExerciseID, &s.NextExerciseID); err != nil {
			return nil, storageErr("list active students", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list active students", err)
	}
	return students, nil
}

// ListInstructors returns the active instructors of a course.
func (p *Participants) ListInstructors(ctx context.Context, courseID int64) ([]models.Instructor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.firstname, u.lastname, u.email, u.telegram_chat_id
		FROM enrolments e
		JOIN users u ON u.id = e.userid
		WHERE e.courseid = ? AND e.role = ? AND e.active = 1
		ORDER BY u.id`, courseID, config.RoleInstructor)
	if err != nil {
		return nil, storageErr("list instructors", err)
	}
	defer rows.Close()

	var instructors []models.Instructor
	for rows.Next() {
		var i models.Instructor
		if err := rows.Scan(&i.ID, &i.Username, &i.FirstName, &i.LastName, &i.Email, &i.TelegramChatID); err != nil {
			return nil, storageErr("list instructors", err)
		}
		instructors = append(instructors, i)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list instructors", err)
	}
	return instructors, nil
}

// ExerciseName returns the exercise name, or "" for an unknown id.
func (p *Participants) ExerciseName(ctx context.Context, exerciseID int64) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, `SELECT name FROM exercises WHERE id = ?`, exerciseID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("exercise name", err)
	}
	return name, nil
}

// UserFullName returns "First Last" for a user, or "" for an unknown id.
func (p *Participants) UserFullName(ctx context.Context, userID int64) (string, error) {
	var username, first, last string
	err := p.db.QueryRowContext(ctx, `
		SELECT username, firstname, lastname FROM users WHERE id = ?`, userID).Scan(&username, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("user full name", err)
	}

	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name = username
	}
	return name, nil
}

// IsEnrolled reports whether a user holds an active enrolment with the given role.
func (p *Participants) IsEnrolled(ctx context.Context, courseID, userID int64, role string) (bool, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrolments
		WHERE courseid = ? AND userid = ? AND role = ? AND active = 1`,
		courseID, userID, role).Scan(&n)
	if err != nil {
		return false, storageErr("is enrolled", err)
	}
	return n > 0, nil
}
