package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sessionbooking/internal/digest"
	"sessionbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTelegramClient struct {
	mu    sync.Mutex
	sent  []tgbotapi.Chattable
	errs  map[int64][]error // queued errors per chat
	calls map[int64]int
}

func newMockTelegramClient() *mockTelegramClient {
	return &mockTelegramClient{errs: make(map[int64][]error), calls: make(map[int64]int)}
}

func (m *mockTelegramClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var chatID int64
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		chatID = v.ChatID
	case tgbotapi.DocumentConfig:
		chatID = v.ChatID
	}
	m.calls[chatID]++

	if queue := m.errs[chatID]; len(queue) > 0 {
		m.errs[chatID] = queue[1:]
		return tgbotapi.Message{}, queue[0]
	}
	m.sent = append(m.sent, c)
	return tgbotapi.Message{MessageID: len(m.sent)}, nil
}

func newTestTelegramNotifier(t *testing.T, tg telegramClient, admins ...int64) *TelegramNotifier {
	t.Helper()

	logger := zerolog.Nop()
	n, err := NewTelegramNotifierWithClient(tg, TelegramConfig{
		RatePerSec:   1000,
		Burst:        100,
		MaxRetries:   2,
		RetryDelays:  []time.Duration{time.Millisecond},
		AdminChatIDs: admins,
	}, &logger)
	require.NoError(t, err)
	n.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return n
}

var instructors = []models.Instructor{
	{ID: 200, FirstName: "Amelia", LastName: "Earhart", TelegramChatID: 555},
	{ID: 201, FirstName: "Chuck", LastName: "Yeager", TelegramChatID: 556},
	{ID: 202, FirstName: "No", LastName: "Chat"},
}

var posting = digest.PostingPayload{
	CourseID:     2,
	StudentID:    100,
	CourseName:   "PPL",
	StudentName:  "Jane Doe",
	FirstName:    "Jane",
	PostingsText: "\nMonday Mar 10: 09:00z - 11:00z",
	BookingURL:   "https://lms.example.com/local/booking/availability.php?action=book&courseid=2&exid=11&userid=100",
	Exercise:     "Navigation",
}

func TestTelegramNotifier_SendsToInstructorsWithChats(t *testing.T) {
	tg := newMockTelegramClient()
	n := newTestTelegramNotifier(t, tg)

	require.NoError(t, n.SendAvailabilityPostingNotification(context.Background(), instructors, posting))

	require.Len(t, tg.sent, 2)
	msg := tg.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(555), msg.ChatID)
	assert.Contains(t, msg.Text, "PPL: Jane Doe posted new availability.")
	assert.Contains(t, msg.Text, "Monday Mar 10: 09:00z - 11:00z")
	assert.Contains(t, msg.Text, "Book Jane: "+posting.BookingURL)
}

func TestTelegramNotifier_RetriesTransientErrors(t *testing.T) {
	tg := newMockTelegramClient()
	tg.errs[555] = []error{
		errors.New("connection reset"),
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}},
	}
	n := newTestTelegramNotifier(t, tg)

	var waits []time.Duration
	n.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, n.SendAvailabilityPostingNotification(context.Background(), instructors[:1], posting))
	assert.Equal(t, 3, tg.calls[555])
	assert.Equal(t, []time.Duration{time.Millisecond, time.Second}, waits)
}

func TestTelegramNotifier_PermanentErrorIsNotRetried(t *testing.T) {
	tg := newMockTelegramClient()
	tg.errs[555] = []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	n := newTestTelegramNotifier(t, tg)

	err := n.SendAvailabilityPostingNotification(context.Background(), instructors, posting)
	require.Error(t, err)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindPosting, de.Kind)
	assert.Equal(t, []int64{200}, de.Failed)
	assert.Equal(t, 1, de.Delivered)
	assert.Equal(t, 1, de.Permanent)
	assert.False(t, de.Retryable())
	assert.Equal(t, 1, tg.calls[555])
	assert.Len(t, tg.sent, 1, "the other instructor still receives the message")
}

func TestDispatchError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  DispatchError
		want bool
	}{
		{"all transient", DispatchError{Failed: []int64{200, 201}}, true},
		{"transient and permanent", DispatchError{Failed: []int64{200, 201}, Permanent: 1}, true},
		{"all permanent", DispatchError{Failed: []int64{200, 201}, Permanent: 2}, false},
		{"someone delivered", DispatchError{Failed: []int64{200}, Delivered: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestTelegramNotifier_GivesUpAfterMaxRetries(t *testing.T) {
	tg := newMockTelegramClient()
	boom := errors.New("telegram unavailable")
	tg.errs[555] = []error{boom, boom, boom, boom}
	n := newTestTelegramNotifier(t, tg)

	err := n.SendRecommendationNotification(context.Background(), instructors[:1], digest.RecommendationPayload{CourseName: "PPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, tg.calls[555])
}

func TestTelegramNotifier_SendDocument(t *testing.T) {
	tg := newMockTelegramClient()
	n := newTestTelegramNotifier(t, tg, 900, 901)

	require.NoError(t, n.SendDocument(context.Background(), "audit.xlsx", strings.NewReader("data"), "Monthly audit"))

	require.Len(t, tg.sent, 2)
	doc := tg.sent[1].(tgbotapi.DocumentConfig)
	assert.Equal(t, int64(901), doc.ChatID)
	assert.Equal(t, "Monthly audit", doc.Caption)
	file := doc.File.(tgbotapi.FileBytes)
	assert.Equal(t, "audit.xlsx", file.Name)
	assert.Equal(t, []byte("data"), file.Bytes)
}

func TestRenderRecommendation(t *testing.T) {
	text, err := renderRecommendation(digest.RecommendationPayload{
		CourseName:     "PPL",
		StudentName:    "Jane Doe",
		SkillTest:      "Skill Test",
		InstructorName: "Amelia Earhart",
		Exercise:       "Circuits",
		ExerciseURL:    "https://lms.example.com/mod/assign/view.php?id=10",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "PPL: Jane Doe was recommended for the Skill Test by Amelia Earhart.\n\nCurrent exercise: Circuits\n"))
	assert.Contains(t, text, "Exercise: https://lms.example.com/mod/assign/view.php?id=10")

	text, err = renderRecommendation(digest.RecommendationPayload{CourseName: "PPL", StudentName: "Jane Doe", SkillTest: "Skill Test"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "PPL: Jane Doe was recommended for the Skill Test.\n"))
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_PublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	logger := zerolog.Nop()
	n := newKafkaNotifier(w, "booking.notifications", &logger)

	require.NoError(t, n.SendAvailabilityPostingNotification(context.Background(), instructors, posting))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "2:100", string(w.msgs[0].Key))

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, KindPosting, event.Kind)
	assert.Equal(t, int64(2), event.CourseID)
	require.Len(t, event.Recipients, 3)
	assert.Equal(t, "Amelia Earhart", event.Recipients[0].Name)

	var payload digest.PostingPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, posting, payload)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	logger := zerolog.Nop()
	n := newKafkaNotifier(w, "booking.notifications", &logger)

	err := n.SendRecommendationNotification(context.Background(), instructors[:2], digest.RecommendationPayload{CourseID: 2, StudentID: 100})

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []int64{200, 201}, de.Failed)
	assert.ErrorIs(t, err, w.err)
}

func TestKafkaNotifier_NoRecipients(t *testing.T) {
	w := &fakeWriter{}
	logger := zerolog.Nop()
	n := newKafkaNotifier(w, "booking.notifications", &logger)

	require.NoError(t, n.SendAvailabilityPostingNotification(context.Background(), nil, posting))
	assert.Empty(t, w.msgs)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := NewLogNotifier(&logger)

	require.NoError(t, n.SendAvailabilityPostingNotification(context.Background(), instructors[:1], posting))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, KindPosting, line["kind"])
	assert.Contains(t, line["text"], "Jane Doe posted new availability")
}
