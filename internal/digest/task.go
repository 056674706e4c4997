package digest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sessionbooking/internal/metrics"
	"sessionbooking/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	kindRecommendation = "recommendation"
	kindPosting        = "posting"

	// Concurrent appends can race a clear; each lost race costs one more round.
	maxClearAttempts = 5
)

// RunStats summarises one digest run.
type RunStats struct {
	Courses          int `json:"courses"`
	Students         int `json:"students"`
	Recommendations  int `json:"recommendations"`
	Postings         int `json:"postings"`
	DispatchFailures int `json:"dispatch_failures"`
	// PartialDeliveries counts notifications that missed some recipients but
	// were not retried.
	PartialDeliveries int `json:"partial_deliveries"`
}

// Task scans subscribed courses and notifies instructors of pending student
// recommendations and availability postings.
type Task struct {
	courses      CourseProvider
	prefs        PreferenceStore
	slots        SlotReader
	notifier     Notifier
	links        *Links
	siteCourseID int64
	logger       zerolog.Logger
}

// NewTask creates the digest task. siteCourseID names the site-wide course that
// is never processed.
func NewTask(
	courses CourseProvider,
	prefs PreferenceStore,
	slots SlotReader,
	notifier Notifier,
	links *Links,
	siteCourseID int64,
	logger *zerolog.Logger,
) *Task {
	return &Task{
		courses:      courses,
		prefs:        prefs,
		slots:        slots,
		notifier:     notifier,
		links:        links,
		siteCourseID: siteCourseID,
		logger:       logger.With().Str("component", "digest").Logger(),
	}
}

// Name identifies the task in scheduler logs and locks.
func (t *Task) Name() string {
	return "digest"
}

// Run executes the task, discarding the stats.
func (t *Task) Run(ctx context.Context) error {
	_, err := t.Execute(ctx)
	return err
}

// Execute performs one full digest pass. A dispatch that reached nobody for a
// transient reason keeps its flag for the next run. Storage failures and
// cancellation abort the run.
func (t *Task) Execute(ctx context.Context) (RunStats, error) {
	logger := t.logger.With().Str("run_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)
	started := time.Now()

	logger.Info().Msg("Digest run started")

	stats, err := t.run(ctx, &logger)

	metrics.ObserveDigestDuration(time.Since(started).Seconds())
	if err != nil {
		metrics.IncDigestRun("failure")
		logger.Error().Err(err).Interface("stats", stats).Msg("Digest run aborted")
		return stats, err
	}

	metrics.IncDigestRun("success")
	logger.Info().
		Int("courses", stats.Courses).
		Int("students", stats.Students).
		Int("recommendations", stats.Recommendations).
		Int("postings", stats.Postings).
		Int("dispatch_failures", stats.DispatchFailures).
		Int("partial_deliveries", stats.PartialDeliveries).
		Dur("duration", time.Since(started)).
		Msg("Digest run finished")
	return stats, nil
}

func (t *Task) run(ctx context.Context, logger *zerolog.Logger) (RunStats, error) {
	var stats RunStats

	courses, err := t.courses.ListCourses(ctx)
	if err != nil {
		return stats, fmt.Errorf("list courses: %w", err)
	}

	for _, course := range courses {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if course.ID == t.siteCourseID {
			continue
		}

		subscribed, err := t.courses.IsSubscribed(ctx, course.ID)
		if err != nil {
			return stats, fmt.Errorf("course %d: check subscription: %w", course.ID, err)
		}
		if !subscribed {
			continue
		}

		stats.Courses++
		if err := t.processCourse(ctx, logger, course, &stats); err != nil {
			return stats, fmt.Errorf("course %d: %w", course.ID, err)
		}
	}

	return stats, nil
}

func (t *Task) processCourse(ctx context.Context, logger *zerolog.Logger, course models.Course, stats *RunStats) error {
	log := logger.With().Int64("course_id", course.ID).Str("course", course.ShortName).Logger()

	students, err := t.courses.ListActiveStudents(ctx, course.ID)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	log.Info().Int("students", len(students)).Msg("Notifications for course")
	if len(students) == 0 {
		return nil
	}

	instructors, err := t.courses.ListInstructors(ctx, course.ID)
	if err != nil {
		return fmt.Errorf("list instructors: %w", err)
	}
	if len(instructors) == 0 {
		log.Warn().Msg("Course has no instructors to notify")
	}

	for i := range students {
		if err := ctx.Err(); err != nil {
			return err
		}
		student := &students[i]
		stats.Students++

		studentLog := log.With().Int64("student_id", student.ID).Logger()

		if err := t.notifyRecommendation(ctx, &studentLog, course, instructors, student, stats); err != nil {
			return fmt.Errorf("student %d: %w", student.ID, err)
		}
		if err := t.notifyPostings(ctx, &studentLog, course, instructors, student, stats); err != nil {
			return fmt.Errorf("student %d: %w", student.ID, err)
		}
	}
	return nil
}

func (t *Task) notifyRecommendation(
	ctx context.Context,
	logger *zerolog.Logger,
	course models.Course,
	instructors []models.Instructor,
	student *models.Student,
	stats *RunStats,
) error {
	flag, err := t.prefs.GetPreference(ctx, EndorseNotifyKey(course.ID), "0", student.ID)
	if err != nil {
		return fmt.Errorf("read recommendation flag: %w", err)
	}
	if !flagSet(flag) {
		return nil
	}

	endorser, err := t.prefs.GetPreference(ctx, EndorserKey(course.ID), "0", student.ID)
	if err != nil {
		return fmt.Errorf("read endorser: %w", err)
	}
	instructorName := ""
	if endorserID, _ := strconv.ParseInt(endorser, 10, 64); endorserID > 0 {
		if instructorName, err = t.courses.UserFullName(ctx, endorserID); err != nil {
			return fmt.Errorf("resolve endorser %d: %w", endorserID, err)
		}
	}

	skillTest, err := t.courses.ExerciseName(ctx, course.GraduationExerciseID)
	if err != nil {
		return fmt.Errorf("resolve graduation exercise: %w", err)
	}
	exercise, err := t.courses.ExerciseName(ctx, student.CurrentExerciseID)
	if err != nil {
		return fmt.Errorf("resolve current exercise: %w", err)
	}

	payload := RecommendationPayload{
		CourseID:       course.ID,
		StudentID:      student.ID,
		CourseName:     course.ShortName,
		StudentName:    student.FullName(),
		FirstName:      student.ProfileField("firstname"),
		SkillTest:      skillTest,
		InstructorName: instructorName,
		BookingURL:     t.links.BookingView(course.ID),
		CourseURL:      t.links.CourseView(course.ID),
		AssignURL:      t.links.AssignIndex(course.ID),
		ExerciseURL:    t.links.AssignView(student.CurrentExerciseID),
		Exercise:       exercise,
	}

	if err := t.notifier.SendRecommendationNotification(ctx, instructors, payload); err != nil {
		if keep, err := t.dispatchFailed(ctx, logger, kindRecommendation, err, stats); keep || err != nil {
			return err
		}
	} else {
		metrics.IncNotification(kindRecommendation, "success")
		stats.Recommendations++
		logger.Info().Int("recipients", len(instructors)).Msg("Recommendation notifications sent")
	}

	if err := t.prefs.SetPreference(ctx, EndorseNotifyKey(course.ID), "0", student.ID); err != nil {
		return fmt.Errorf("clear recommendation flag: %w", err)
	}
	return nil
}

func (t *Task) notifyPostings(
	ctx context.Context,
	logger *zerolog.Logger,
	course models.Course,
	instructors []models.Instructor,
	student *models.Student,
	stats *RunStats,
) error {
	pending, err := t.prefs.GetPreference(ctx, PostingNotifyKey(course.ID), "", student.ID)
	if err != nil {
		return fmt.Errorf("read postings flag: %w", err)
	}
	if pending == "" {
		return nil
	}

	slots, err := t.resolveSlots(ctx, logger, pending)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		logger.Info().Str("pending", pending).Msg("Posted slots no longer exist, clearing flag")
		return t.clearPostings(ctx, course.ID, student.ID, pending)
	}

	text, html := FormatPostings(slots)

	exercise, err := t.courses.ExerciseName(ctx, student.NextExerciseID)
	if err != nil {
		return fmt.Errorf("resolve next exercise: %w", err)
	}

	payload := PostingPayload{
		CourseID:     course.ID,
		StudentID:    student.ID,
		CourseURL:    t.links.CourseView(course.ID),
		CourseName:   course.ShortName,
		AssignURL:    t.links.AssignIndex(course.ID),
		StudentName:  student.FullName(),
		FirstName:    student.ProfileField("firstname"),
		PostingsText: text,
		PostingsHTML: html,
		BookingURL:   t.links.Availability(course.ID, student.ID, student.NextExerciseID),
		ExerciseURL:  t.links.AssignView(student.NextExerciseID),
		Exercise:     exercise,
	}

	if err := t.notifier.SendAvailabilityPostingNotification(ctx, instructors, payload); err != nil {
		if keep, err := t.dispatchFailed(ctx, logger, kindPosting, err, stats); keep || err != nil {
			return err
		}
	} else {
		metrics.IncNotification(kindPosting, "success")
		stats.Postings++
		logger.Info().Int("slots", len(slots)).Int("recipients", len(instructors)).Msg("Availability posting notifications sent")
	}

	return t.clearPostings(ctx, course.ID, student.ID, pending)
}

// clearPostings removes the ids that were just handled from the postings flag.
// Ids appended by a concurrent RecordPosting stay for the next run.
func (t *Task) clearPostings(ctx context.Context, courseID, studentID int64, handled string) error {
	key := PostingNotifyKey(courseID)

	for range maxClearAttempts {
		current, err := t.prefs.GetPreference(ctx, key, "", studentID)
		if err != nil {
			return fmt.Errorf("clear postings flag: %w", err)
		}

		var rest string
		switch {
		case current == handled:
		case strings.HasPrefix(current, handled+","):
			rest = current[len(handled)+1:]
		default:
			// Rewritten by someone else, nothing of ours left to clear.
			return nil
		}

		ok, err := t.prefs.CompareAndSetPreference(ctx, key, current, rest, studentID)
		if err != nil {
			return fmt.Errorf("clear postings flag: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("clear postings flag: still changing after %d attempts", maxClearAttempts)
}

// resolveSlots looks up a comma-separated id list, skipping blank, malformed and
// missing ids.
func (t *Task) resolveSlots(ctx context.Context, logger *zerolog.Logger, pending string) ([]models.Slot, error) {
	var slots []models.Slot
	for _, part := range strings.Split(pending, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn().Str("slot_id", part).Msg("Skipping malformed slot id")
			continue
		}

		slot, err := t.slots.GetSlot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get slot %d: %w", id, err)
		}
		if slot == nil {
			continue
		}
		slots = append(slots, *slot)
	}
	return slots, nil
}

// dispatchFailed records a failed send and reports whether the flag must stay set
// for the next run. Only a total failure that a resend could fix keeps it. The run
// continues unless ctx is done.
func (t *Task) dispatchFailed(ctx context.Context, logger *zerolog.Logger, kind string, err error, stats *RunStats) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return true, ctxErr
	}

	var re RetryableError
	if errors.As(err, &re) && !re.Retryable() {
		metrics.IncNotification(kind, "partial")
		stats.PartialDeliveries++
		logger.Warn().Err(err).Str("kind", kind).Msg("Notification missed some recipients, not retrying")
		return false, nil
	}

	metrics.IncNotification(kind, "failure")
	stats.DispatchFailures++
	logger.Error().Err(err).Str("kind", kind).Msg("Notification dispatch failed, flag kept for next run")
	return true, nil
}
