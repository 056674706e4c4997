package digest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Links builds deep links into the host's pages.
type Links struct {
	base *url.URL
}

// NewLinks parses the host base URL. Any path on it is kept as a prefix.
func NewLinks(baseURL string) (*Links, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &Links{base: u}, nil
}

// BookingView is the instructor's booking overview of a course.
func (l *Links) BookingView(courseID int64) string {
	return l.build("/local/booking/view.php", url.Values{"courseid": {id(courseID)}})
}

// Availability is the booking page for a student's exercise.
func (l *Links) Availability(courseID, userID, exerciseID int64) string {
	return l.build("/local/booking/availability.php", url.Values{
		"courseid": {id(courseID)},
		"userid":   {id(userID)},
		"exid":     {id(exerciseID)},
		"action":   {"book"},
	})
}

func (l *Links) CourseView(courseID int64) string {
	return l.build("/course/view.php", url.Values{"id": {id(courseID)}})
}

func (l *Links) AssignIndex(courseID int64) string {
	return l.build("/mod/assign/index.php", url.Values{"id": {id(courseID)}})
}

func (l *Links) AssignView(exerciseID int64) string {
	return l.build("/mod/assign/view.php", url.Values{"id": {id(exerciseID)}})
}

func (l *Links) build(path string, query url.Values) string {
	u := *l.base
	u.Path = l.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
