package notify

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"sessionbooking/internal/config"
	"sessionbooking/internal/database"
	"sessionbooking/internal/digest"
	"sessionbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digestCatalog = `
courses:
  - id: 2
    short_name: PPL
    subscribed: true
    graduation_exercise: 12
    exercises:
      - id: 10
        name: Circuits
      - id: 11
        name: Navigation
      - id: 12
        name: Skill Test
    participants:
      - user_id: 100
        username: jdoe
        first_name: Jane
        last_name: Doe
        role: student
        current_exercise: 10
      - user_id: 200
        username: blocked
        telegram_chat_id: 555
        role: instructor
      - user_id: 201
        username: healthy
        telegram_chat_id: 556
        role: instructor
`

type digestStack struct {
	prefs    *database.Preferences
	recorder *digest.Recorder
	task     *digest.Task
	slotID   int64
}

func newDigestStack(t *testing.T, tg telegramClient) *digestStack {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "digest.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := config.ParseCoursesConfig([]byte(digestCatalog))
	require.NoError(t, err)
	require.NoError(t, db.SyncCoursesFromConfig(ctx, cfg))

	vault := database.NewSlotVault(db, &logger)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	year, week := models.ISOYearWeek(start)
	slotID, err := vault.Save(ctx, 100, &models.Slot{
		CourseID: 2, StartTime: start, EndTime: start.Add(2 * time.Hour), Year: year, Week: week,
	})
	require.NoError(t, err)

	links, err := digest.NewLinks("https://lms.example.com")
	require.NoError(t, err)

	prefs := database.NewPreferences(db)
	return &digestStack{
		prefs:    prefs,
		recorder: digest.NewRecorder(prefs, &logger),
		task: digest.NewTask(database.NewParticipants(db), prefs, vault,
			newTestTelegramNotifier(t, tg), links, 1, &logger),
		slotID: slotID,
	}
}

func (s *digestStack) postingFlag(t *testing.T) string {
	t.Helper()
	v, err := s.prefs.GetPreference(context.Background(), digest.PostingNotifyKey(2), "", 100)
	require.NoError(t, err)
	return v
}

func TestDigest_BlockedInstructorDoesNotRepeatForOthers(t *testing.T) {
	tg := newMockTelegramClient()
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	tg.errs[555] = []error{blocked, blocked, blocked}
	s := newDigestStack(t, tg)
	ctx := context.Background()

	require.NoError(t, s.recorder.RecordPosting(ctx, 2, 100, s.slotID))

	stats, err := s.task.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PartialDeliveries)
	assert.Zero(t, stats.DispatchFailures)
	assert.Empty(t, s.postingFlag(t))

	for range 2 {
		_, err := s.task.Execute(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, tg.calls[556])
	assert.Equal(t, 1, tg.calls[555])
}

func TestDigest_TotalTransientFailureRetriesNextRun(t *testing.T) {
	tg := newMockTelegramClient()
	down := errors.New("connection reset")
	tg.errs[555] = []error{down, down, down}
	tg.errs[556] = []error{down, down, down}
	s := newDigestStack(t, tg)
	ctx := context.Background()

	require.NoError(t, s.recorder.RecordPosting(ctx, 2, 100, s.slotID))

	stats, err := s.task.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DispatchFailures)
	assert.Equal(t, strconv.FormatInt(s.slotID, 10), s.postingFlag(t))

	stats, err = s.task.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Postings)
	assert.Empty(t, s.postingFlag(t))
	assert.Len(t, tg.sent, 2)
}
