package digest

import (
	"context"
	"fmt"
	"sync"

	"sessionbooking/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeCatalog implements CourseProvider in memory.
type fakeCatalog struct {
	mu          sync.Mutex
	courses     []models.Course
	students    map[int64][]models.Student
	instructors map[int64][]models.Instructor
	exercises   map[int64]string
	users       map[int64]string
	err         error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		students:    make(map[int64][]models.Student),
		instructors: make(map[int64][]models.Instructor),
		exercises:   make(map[int64]string),
		users:       make(map[int64]string),
	}
}

func (f *fakeCatalog) ListCourses(ctx context.Context) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courses, f.err
}

func (f *fakeCatalog) IsSubscribed(ctx context.Context, courseID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.courses {
		if c.ID == courseID {
			return c.Subscribed, nil
		}
	}
	return false, nil
}

func (f *fakeCatalog) ListActiveStudents(ctx context.Context, courseID int64) ([]models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.students[courseID], nil
}

func (f *fakeCatalog) ListInstructors(ctx context.Context, courseID int64) ([]models.Instructor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instructors[courseID], nil
}

func (f *fakeCatalog) ExerciseName(ctx context.Context, exerciseID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exercises[exerciseID], nil
}

func (f *fakeCatalog) UserFullName(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

// fakePrefs implements PreferenceStore in memory.
type fakePrefs struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{values: make(map[string]string)}
}

func prefKey(name string, userID int64) string {
	return fmt.Sprintf("%d/%s", userID, name)
}

func (f *fakePrefs) GetPreference(ctx context.Context, name, def string, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	if v, ok := f.values[prefKey(name, userID)]; ok {
		return v, nil
	}
	return def, nil
}

func (f *fakePrefs) SetPreference(ctx context.Context, name, value string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[prefKey(name, userID)] = value
	return nil
}

func (f *fakePrefs) AppendPreference(ctx context.Context, name, value string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := prefKey(name, userID)
	if cur := f.values[k]; cur != "" {
		value = cur + "," + value
	}
	f.values[k] = value
	return nil
}

func (f *fakePrefs) CompareAndSetPreference(ctx context.Context, name, old, value string, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := prefKey(name, userID)
	cur, ok := f.values[k]
	if !ok || cur != old {
		return false, nil
	}
	f.values[k] = value
	return true, nil
}

func (f *fakePrefs) get(name string, userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[prefKey(name, userID)]
}

// fakeSlots implements SlotReader in memory.
type fakeSlots struct {
	mu    sync.Mutex
	slots map[int64]models.Slot
}

func (f *fakeSlots) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.slots[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// MockNotifier records dispatched notifications.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRecommendationNotification(ctx context.Context, recipients []models.Instructor, payload RecommendationPayload) error {
	args := m.Called(ctx, recipients, payload)
	return args.Error(0)
}

func (m *MockNotifier) SendAvailabilityPostingNotification(ctx context.Context, recipients []models.Instructor, payload PostingPayload) error {
	args := m.Called(ctx, recipients, payload)
	return args.Error(0)
}
