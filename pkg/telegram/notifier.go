package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/store"
	"github.com/keenbot/keenbot/pkg/ui"
)

// NotificationLog persists delivered notifications for /history.
type NotificationLog interface {
	SaveNotification(ctx context.Context, category, message string, at time.Time, keep int) error
}

// Notifier drains bus notifications and fans them out to every admin.
type Notifier struct {
	transport Transport
	bus       *bus.Bus
	admins    []int64
	log       NotificationLog
	keep      int
	now       func() time.Time
}

func NewNotifier(transport Transport, b *bus.Bus, admins []int64, log NotificationLog, keep int, now func() time.Time) *Notifier {
	return &Notifier{
		transport: transport,
		bus:       b,
		admins:    admins,
		log:       log,
		keep:      keep,
		now:       now,
	}
}

// Run consumes until the bus closes or ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		note, ok := n.bus.ConsumeNotification(ctx)
		if !ok {
			return
		}
		n.deliver(ctx, note)
	}
}

func (n *Notifier) deliver(ctx context.Context, note bus.Notification) {
	msg := Message{Text: formatNotification(note), Keyboard: actionKeyboard(note)}
	for _, admin := range n.admins {
		msg.ChatID = admin
		if _, err := n.transport.Send(ctx, msg); err != nil {
			logger.WarnCF("notifier", "send failed", map[string]interface{}{
				"admin": admin, "category": note.Category, "error": err.Error(),
			})
		}
	}
	if n.log != nil {
		if err := n.log.SaveNotification(ctx, note.Category, note.Title, n.now(), n.keep); err != nil {
			logger.WarnCF("notifier", "history save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func formatNotification(n bus.Notification) string {
	icon := "⚠️"
	if n.Recovery {
		icon = "✅"
	}
	var b strings.Builder
	b.WriteString(icon + " " + ui.Bold(n.Title))
	if n.Body != "" {
		b.WriteString("\n" + ui.Pre(ui.Tail(n.Body, 3000)))
	}
	if n.Hint != "" {
		b.WriteString("\n" + ui.Esc(n.Hint))
	}
	return b.String()
}

func actionKeyboard(n bus.Notification) *ui.Keyboard {
	if len(n.Actions) == 0 {
		return nil
	}
	row := make([]ui.Button, 0, len(n.Actions))
	for _, a := range n.Actions {
		row = append(row, ui.Btn(a.Text, a.Data))
	}
	kb := &ui.Keyboard{}
	kb.Rows = append(kb.Rows, row)
	return kb
}

var _ NotificationLog = (*store.Store)(nil)
