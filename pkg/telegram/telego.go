package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"

	"github.com/keenbot/keenbot/pkg/ui"
)

// TelegoTransport implements Transport over the telego client.
type TelegoTransport struct {
	bot *telego.Bot
}

func NewTelegoTransport(token string) (*TelegoTransport, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegoTransport{bot: bot}, nil
}

// Me returns the bot's own username for the startup log line.
func (t *TelegoTransport) Me(ctx context.Context) (string, error) {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return "", wrapErr(err)
	}
	return me.Username, nil
}

func (t *TelegoTransport) Poll(ctx context.Context, offset int64, timeout time.Duration) ([]Event, error) {
	updates, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         int(offset),
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	events := make([]Event, 0, len(updates))
	for _, u := range updates {
		if ev, ok := toEvent(u); ok {
			events = append(events, ev)
		} else {
			// unhandled update kinds still advance the cursor
			events = append(events, Event{UpdateID: int64(u.UpdateID)})
		}
	}
	return events, nil
}

func toEvent(u telego.Update) (Event, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return Event{
			UpdateID: int64(u.UpdateID),
			ChatID:   u.Message.Chat.ID,
			UserID:   u.Message.From.ID,
			Text:     u.Message.Text,
		}, true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		msg := u.CallbackQuery.Message
		return Event{
			UpdateID: int64(u.UpdateID),
			ChatID:   msg.GetChat().ID,
			UserID:   u.CallbackQuery.From.ID,
			Callback: &CallbackRef{
				ID:        u.CallbackQuery.ID,
				MessageID: msg.GetMessageID(),
				Data:      u.CallbackQuery.Data,
			},
		}, true
	}
	return Event{}, false
}

func (t *TelegoTransport) Send(ctx context.Context, msg Message) (int, error) {
	sent, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             telego.ChatID{ID: msg.ChatID},
		Text:               msg.Text,
		ParseMode:          telego.ModeHTML,
		ReplyMarkup:        toMarkup(msg.Keyboard),
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return sent.MessageID, nil
}

func (t *TelegoTransport) Edit(ctx context.Context, messageID int, msg Message) error {
	_, err := t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      telego.ChatID{ID: msg.ChatID},
		MessageID:   messageID,
		Text:        msg.Text,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: toMarkup(msg.Keyboard),
	})
	if err != nil {
		// editing to identical content is a no-op, not a failure
		var apiErr *telegoapi.Error
		if errors.As(err, &apiErr) && apiErr.ErrorCode == 400 {
			return nil
		}
		return wrapErr(err)
	}
	return nil
}

func (t *TelegoTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	err := t.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func toMarkup(kb *ui.Keyboard) *telego.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		btns := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := telego.InlineKeyboardButton{Text: b.Text}
			if b.URL != "" {
				btn.URL = b.URL
			} else {
				btn.CallbackData = b.Data
			}
			btns = append(btns, btn)
		}
		rows = append(rows, btns)
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func wrapErr(err error) error {
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) && apiErr.ErrorCode == 409 {
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Description)
	}
	return err
}
