package models

import "strings"

// Course is a training course known to the host.
type Course struct {
	ID                   int64  `json:"id"`
	ShortName            string `json:"short_name"`
	FullName             string `json:"full_name"`
	Subscribed           bool   `json:"subscribed"`
	GraduationExerciseID int64  `json:"graduation_exercise_id"`
}

// Exercise is a graded course module, ordered within its course.
type Exercise struct {
	ID        int64  `json:"id"`
	CourseID  int64  `json:"course_id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// Student is an active course participant.
type Student struct {
	ID                int64  `json:"id"`
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	CurrentExerciseID int64  `json:"current_exercise_id"`
	NextExerciseID    int64  `json:"next_exercise_id"`
}

// FullName returns "First Last", falling back to the username.
func (s *Student) FullName() string {
	return fullName(s.FirstName, s.LastName, s.Username)
}

// ProfileField returns a named profile field, or "" for unknown names.
func (s *Student) ProfileField(name string) string {
	switch name {
	case "firstname":
		return s.FirstName
	case "lastname":
		return s.LastName
	case "username":
		return s.Username
	case "email":
		return s.Email
	}
	return ""
}

// Instructor is a course participant who receives digest notifications.
type Instructor struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

func (i *Instructor) FullName() string {
	return fullName(i.FirstName, i.LastName, i.Username)
}

func fullName(first, last, fallback string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return fallback
	}
	return name
}
