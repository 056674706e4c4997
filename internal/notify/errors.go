package notify

import (
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DispatchError reports recipients that did not receive a notification.
type DispatchError struct {
	Kind   string
	Failed []int64
	// Delivered counts recipients that did receive it.
	Delivered int
	// Permanent counts the failures that a resend cannot fix.
	Permanent int
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %d recipient(s) failed, %d delivered: %v",
		e.Kind, len(e.Failed), e.Delivered, e.Err)
}

// Retryable reports whether the whole notification should be sent again. It is
// false once any recipient got it or when every failure is permanent.
func (e *DispatchError) Retryable() bool {
	return e.Delivered == 0 && e.Permanent < len(e.Failed)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// record accounts for one recipient and reports whether the send failed.
func (e *DispatchError) record(recipientID int64, err error) bool {
	if err == nil {
		e.Delivered++
		return false
	}
	e.Failed = append(e.Failed, recipientID)
	if isPermanent(err) {
		e.Permanent++
	}
	return true
}

// telegramError extracts the API error returned by the Bot API client.
func telegramError(err error) (*tgbotapi.Error, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr, true
	}
	return nil, false
}

// isPermanent reports errors that retrying cannot fix: the bot was blocked or the
// request was rejected.
func isPermanent(err error) bool {
	tgErr, ok := telegramError(err)
	if !ok {
		return false
	}
	return tgErr.Code == http.StatusForbidden || tgErr.Code == http.StatusBadRequest
}
