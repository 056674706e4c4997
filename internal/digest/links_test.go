package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinks(t *testing.T) {
	links, err := NewLinks("https://lms.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "https://lms.example.com/local/booking/view.php?courseid=2", links.BookingView(2))
	assert.Equal(t, "https://lms.example.com/local/booking/availability.php?action=book&courseid=2&exid=11&userid=100",
		links.Availability(2, 100, 11))
	assert.Equal(t, "https://lms.example.com/course/view.php?id=2", links.CourseView(2))
	assert.Equal(t, "https://lms.example.com/mod/assign/index.php?id=2", links.AssignIndex(2))
	assert.Equal(t, "https://lms.example.com/mod/assign/view.php?id=11", links.AssignView(11))
}

func TestLinks_KeepsBasePath(t *testing.T) {
	links, err := NewLinks("https://example.com/moodle")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/moodle/course/view.php?id=5", links.CourseView(5))
}

func TestNewLinks_RejectsRelative(t *testing.T) {
	_, err := NewLinks("lms.example.com")
	assert.Error(t, err)
}
