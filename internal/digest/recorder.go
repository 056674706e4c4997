package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sessionbooking/internal/events"

	"github.com/rs/zerolog"
)

// Recorder raises the notification flags that the digest task consumes.
type Recorder struct {
	prefs  PreferenceStore
	logger zerolog.Logger
}

func NewRecorder(prefs PreferenceStore, logger *zerolog.Logger) *Recorder {
	return &Recorder{
		prefs:  prefs,
		logger: logger.With().Str("component", "digest_recorder").Logger(),
	}
}

// RecordPosting appends slot ids to the student's pending postings of a course.
func (r *Recorder) RecordPosting(ctx context.Context, courseID, studentID int64, slotIDs ...int64) error {
	if len(slotIDs) == 0 {
		return nil
	}

	ids := make([]string, len(slotIDs))
	for i, id := range slotIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	if err := r.prefs.AppendPreference(ctx, PostingNotifyKey(courseID), strings.Join(ids, ","), studentID); err != nil {
		return fmt.Errorf("record postings of student %d: %w", studentID, err)
	}

	r.logger.Debug().
		Int64("course_id", courseID).
		Int64("student_id", studentID).
		Int("slots", len(slotIDs)).
		Msg("Postings recorded")
	return nil
}

// RecordRecommendation flags a student as recommended by endorserID.
func (r *Recorder) RecordRecommendation(ctx context.Context, courseID, studentID, endorserID int64) error {
	if err := r.prefs.SetPreference(ctx, EndorserKey(courseID), strconv.FormatInt(endorserID, 10), studentID); err != nil {
		return fmt.Errorf("record endorser of student %d: %w", studentID, err)
	}
	if err := r.prefs.SetPreference(ctx, EndorseNotifyKey(courseID), "1", studentID); err != nil {
		return fmt.Errorf("record recommendation of student %d: %w", studentID, err)
	}

	r.logger.Debug().
		Int64("course_id", courseID).
		Int64("student_id", studentID).
		Int64("endorser_id", endorserID).
		Msg("Recommendation recorded")
	return nil
}

// Subscribe wires the recorder to the domain events it reacts to.
func (r *Recorder) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSlotPosted, func(ctx context.Context, e events.Event) error {
		var p events.SlotPosted
		if err := e.Decode(&p); err != nil {
			return err
		}
		return r.RecordPosting(ctx, p.CourseID, p.StudentID, p.SlotIDs...)
	})
	bus.Subscribe(events.EventStudentEndorsed, func(ctx context.Context, e events.Event) error {
		var p events.StudentEndorsed
		if err := e.Decode(&p); err != nil {
			return err
		}
		return r.RecordRecommendation(ctx, p.CourseID, p.StudentID, p.EndorserID)
	})
}
