package digest

import (
	"context"

	"sessionbooking/internal/models"
)

// CourseProvider exposes the course catalog and its participants.
type CourseProvider interface {
	// ListCourses returns every course known to the host, including the site course.
	ListCourses(ctx context.Context) ([]models.Course, error)

	// IsSubscribed reports whether the course uses session booking.
	IsSubscribed(ctx context.Context, courseID int64) (bool, error)

	// ListActiveStudents returns the active students of a course.
	ListActiveStudents(ctx context.Context, courseID int64) ([]models.Student, error)

	// ListInstructors returns the recipients of course notifications.
	ListInstructors(ctx context.Context, courseID int64) ([]models.Instructor, error)

	// ExerciseName returns the name of an exercise, or "" when unknown.
	ExerciseName(ctx context.Context, exerciseID int64) (string, error)

	// UserFullName returns the display name of a user, or "" when unknown.
	UserFullName(ctx context.Context, userID int64) (string, error)
}

// PreferenceStore is a per-user string key/value store.
type PreferenceStore interface {
	GetPreference(ctx context.Context, name, def string, userID int64) (string, error)
	SetPreference(ctx context.Context, name, value string, userID int64) error

	// AppendPreference adds value to a comma-separated list in one atomic write.
	AppendPreference(ctx context.Context, name, value string, userID int64) error

	// CompareAndSetPreference replaces the value only if it still equals old and
	// reports whether it did.
	CompareAndSetPreference(ctx context.Context, name, old, value string, userID int64) (bool, error)
}

// SlotReader resolves posted slot ids.
type SlotReader interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
}

// RetryableError is implemented by notifier errors that know whether sending the
// same notification again could reach a recipient that missed it.
type RetryableError interface {
	error
	Retryable() bool
}

// Notifier delivers digest notifications to a course's instructors. A returned
// error that does not implement RetryableError is treated as a total failure.
type Notifier interface {
	SendRecommendationNotification(ctx context.Context, recipients []models.Instructor, payload RecommendationPayload) error
	SendAvailabilityPostingNotification(ctx context.Context, recipients []models.Instructor, payload PostingPayload) error
}

// RecommendationPayload tells instructors a student was recommended for the
// skill test.
type RecommendationPayload struct {
	CourseID       int64  `json:"course_id"`
	StudentID      int64  `json:"student_id"`
	CourseName     string `json:"course_name"`
	StudentName    string `json:"student_name"`
	FirstName      string `json:"first_name"`
	SkillTest      string `json:"skill_test"`
	InstructorName string `json:"instructor_name"`
	BookingURL     string `json:"booking_url"`
	CourseURL      string `json:"course_url"`
	AssignURL      string `json:"assign_url"`
	ExerciseURL    string `json:"exercise_url"`
	Exercise       string `json:"exercise"`
}

// PostingPayload tells instructors a student posted new availability.
type PostingPayload struct {
	CourseID     int64  `json:"course_id"`
	StudentID    int64  `json:"student_id"`
	CourseURL    string `json:"course_url"`
	CourseName   string `json:"course_name"`
	AssignURL    string `json:"assign_url"`
	StudentName  string `json:"student_name"`
	FirstName    string `json:"first_name"`
	PostingsText string `json:"postings_text"`
	PostingsHTML string `json:"postings_html"`
	BookingURL   string `json:"booking_url"`
	ExerciseURL  string `json:"exercise_url"`
	Exercise     string `json:"exercise"`
}
