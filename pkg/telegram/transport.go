// Package telegram holds the bot's only coupling to the Telegram Bot API:
// a thin transport the poller and dispatcher talk to, its telego-backed
// implementation, and the notifier draining the bus to the admins.
package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/keenbot/keenbot/pkg/ui"
)

// ErrConflict means another bot instance polls with the same token
// (Telegram error 409). Retrying cannot help; the process must exit and
// let the operator sort out the duplicate.
var ErrConflict = errors.New("another instance is polling with this token")

// CallbackRef identifies an inline button press for answering and editing.
type CallbackRef struct {
	ID        string
	MessageID int
	Data      string
}

// Event is one inbound update, flattened to what the dispatcher needs.
// Callback is nil for plain messages.
type Event struct {
	UpdateID int64
	ChatID   int64
	UserID   int64
	Text     string
	Callback *CallbackRef
}

// Message is one outbound message. Text is HTML.
type Message struct {
	ChatID   int64
	Text     string
	Keyboard *ui.Keyboard
}

// Transport is the wire contract. Poll blocks up to timeout (long poll)
// and returns updates at or after offset.
type Transport interface {
	Poll(ctx context.Context, offset int64, timeout time.Duration) ([]Event, error)
	Send(ctx context.Context, msg Message) (messageID int, err error)
	Edit(ctx context.Context, messageID int, msg Message) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
