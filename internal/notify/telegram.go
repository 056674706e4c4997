package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sessionbooking/internal/digest"
	"sessionbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig holds pacing and retry settings for the Telegram notifier.
type TelegramConfig struct {
	// RatePerSec is the sustained message rate across all chats.
	RatePerSec float64
	Burst      int
	MaxRetries int
	// RetryDelays is indexed by attempt; the last delay repeats.
	RetryDelays  []time.Duration
	AdminChatIDs []int64
}

// DefaultTelegramConfig returns the Bot API broadcast limits.
func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		RatePerSec: 20,
		Burst:      30,
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// TelegramNotifier sends digest notifications as Telegram messages to the
// instructors' chats.
type TelegramNotifier struct {
	tg      telegramClient
	limiter *rate.Limiter
	config  TelegramConfig
	logger  zerolog.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, cfg TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return NewTelegramNotifierWithClient(api, cfg, logger)
}

// NewTelegramNotifierWithClient allows injecting a mocked Telegram client for tests.
func NewTelegramNotifierWithClient(tg telegramClient, cfg TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}

	def := DefaultTelegramConfig()
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = def.RatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = def.RetryDelays
	}

	return &TelegramNotifier{
		tg:      tg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		config:  cfg,
		logger:  logger.With().Str("component", "telegram_notifier").Logger(),
		wait:    sleepContext,
	}, nil
}

func (n *TelegramNotifier) SendRecommendationNotification(ctx context.Context, recipients []models.Instructor, payload digest.RecommendationPayload) error {
	text, err := renderRecommendation(payload)
	if err != nil {
		return err
	}
	return n.broadcast(ctx, KindRecommendation, recipients, text)
}

func (n *TelegramNotifier) SendAvailabilityPostingNotification(ctx context.Context, recipients []models.Instructor, payload digest.PostingPayload) error {
	text, err := renderPosting(payload)
	if err != nil {
		return err
	}
	return n.broadcast(ctx, KindPosting, recipients, text)
}

// SendDocument posts a file to every admin chat.
func (n *TelegramNotifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	if len(n.config.AdminChatIDs) == 0 {
		n.logger.Debug().Str("file", filename).Msg("No admin chats configured, document not sent")
		return nil
	}

	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document %s: %w", filename, err)
	}

	de := &DispatchError{Kind: "document"}
	var errs []error
	for _, chatID := range n.config.AdminChatIDs {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: body})
		doc.Caption = caption
		err := n.send(ctx, chatID, doc)
		if de.record(chatID, err) {
			errs = append(errs, err)
		}
	}
	if len(de.Failed) > 0 {
		de.Err = errors.Join(errs...)
		return de
	}
	return nil
}

func (n *TelegramNotifier) broadcast(ctx context.Context, kind string, recipients []models.Instructor, text string) error {
	de := &DispatchError{Kind: kind}
	var errs []error
	for _, r := range recipients {
		if r.TelegramChatID == 0 {
			n.logger.Debug().Int64("instructor_id", r.ID).Str("kind", kind).Msg("Instructor has no telegram chat, skipping")
			continue
		}

		msg := tgbotapi.NewMessage(r.TelegramChatID, text)
		msg.DisableWebPagePreview = true
		err := n.send(ctx, r.TelegramChatID, msg)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
		}
		if de.record(r.ID, err) {
			errs = append(errs, fmt.Errorf("instructor %d: %w", r.ID, err))
		}
	}

	if len(de.Failed) > 0 {
		de.Err = errors.Join(errs...)
		return de
	}
	return nil
}

// send delivers one message, retrying transient failures. A 429 waits for the
// server-provided retry_after; 403 and 400 are not retried.
func (n *TelegramNotifier) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		_, err := n.tg.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err

		if isPermanent(err) {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Telegram rejected message")
			return err
		}
		if attempt == n.config.MaxRetries {
			break
		}

		delay := n.retryDelay(attempt)
		if tgErr, ok := telegramError(err); ok && tgErr.Code == http.StatusTooManyRequests && tgErr.RetryAfter > 0 {
			delay = time.Duration(tgErr.RetryAfter) * time.Second
		}

		n.logger.Info().
			Err(err).
			Int64("chat_id", chatID).
			Int("attempt", attempt+1).
			Int("max_retries", n.config.MaxRetries).
			Dur("delay", delay).
			Msg("Retrying telegram send")

		if err := n.wait(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("send to chat %d after %d attempts: %w", chatID, n.config.MaxRetries+1, lastErr)
}

func (n *TelegramNotifier) retryDelay(attempt int) time.Duration {
	if attempt >= len(n.config.RetryDelays) {
		return n.config.RetryDelays[len(n.config.RetryDelays)-1]
	}
	return n.config.RetryDelays[attempt]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
