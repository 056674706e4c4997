package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sessionbooking/internal/digest"
	"sessionbooking/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	KindRecommendation = "recommendation"
	KindPosting        = "availability_posting"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recipient is an instructor addressed by a NotificationEvent.
type Recipient struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// NotificationEvent is the message published for downstream delivery services.
type NotificationEvent struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	CourseID   int64           `json:"course_id"`
	StudentID  int64           `json:"student_id"`
	Recipients []Recipient     `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// KafkaNotifier publishes notifications to a topic instead of delivering them.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaNotifier creates a synchronous producer for topic.
func NewKafkaNotifier(brokers []string, topic string, logger *zerolog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaNotifier(writer, topic, logger)
}

func newKafkaNotifier(w messageWriter, topic string, logger *zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "kafka_notifier").Str("topic", topic).Logger(),
	}
}

func (n *KafkaNotifier) SendRecommendationNotification(ctx context.Context, recipients []models.Instructor, payload digest.RecommendationPayload) error {
	return n.publish(ctx, KindRecommendation, payload.CourseID, payload.StudentID, recipients, payload)
}

func (n *KafkaNotifier) SendAvailabilityPostingNotification(ctx context.Context, recipients []models.Instructor, payload digest.PostingPayload) error {
	return n.publish(ctx, KindPosting, payload.CourseID, payload.StudentID, recipients, payload)
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) publish(ctx context.Context, kind string, courseID, studentID int64, recipients []models.Instructor, payload any) error {
	if len(recipients) == 0 {
		n.logger.Debug().Str("kind", kind).Int64("course_id", courseID).Msg("No recipients, event not published")
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	event := NotificationEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		CourseID:   courseID,
		StudentID:  studentID,
		Recipients: make([]Recipient, 0, len(recipients)),
		Payload:    data,
		CreatedAt:  time.Now().UTC(),
	}
	for i := range recipients {
		r := &recipients[i]
		event.Recipients = append(event.Recipients, Recipient{
			ID:             r.ID,
			Name:           r.FullName(),
			Email:          r.Email,
			TelegramChatID: r.TelegramChatID,
		})
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d:%d", courseID, studentID)),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return &DispatchError{Kind: kind, Failed: recipientIDs(recipients), Err: fmt.Errorf("write to kafka: %w", err)}
	}

	n.logger.Debug().
		Str("event_id", event.ID).
		Str("kind", kind).
		Int64("course_id", courseID).
		Int64("student_id", studentID).
		Msg("Notification event published")
	return nil
}

func recipientIDs(recipients []models.Instructor) []int64 {
	ids := make([]int64, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}
	return ids
}
