package notify

import (
	"context"

	"sessionbooking/internal/digest"
	"sessionbooking/internal/models"

	"github.com/rs/zerolog"
)

// LogNotifier writes rendered notifications to the log instead of sending them.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log_notifier").Logger()}
}

func (n *LogNotifier) SendRecommendationNotification(ctx context.Context, recipients []models.Instructor, payload digest.RecommendationPayload) error {
	text, err := renderRecommendation(payload)
	if err != nil {
		return err
	}
	n.emit(KindRecommendation, recipients, text)
	return nil
}

func (n *LogNotifier) SendAvailabilityPostingNotification(ctx context.Context, recipients []models.Instructor, payload digest.PostingPayload) error {
	text, err := renderPosting(payload)
	if err != nil {
		return err
	}
	n.emit(KindPosting, recipients, text)
	return nil
}

func (n *LogNotifier) emit(kind string, recipients []models.Instructor, text string) {
	n.logger.Info().
		Str("kind", kind).
		Ints64("recipients", recipientIDs(recipients)).
		Str("text", text).
		Msg("Notification (dry run)")
}
