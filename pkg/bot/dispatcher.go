// Package bot is the chat command surface: it authenticates the sender,
// routes slash commands and inline-button callbacks to module handlers and
// renders the reply screens.
package bot

import (
	"context"
	"strings"

	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/config"
	"github.com/keenbot/keenbot/pkg/drivers"
	"github.com/keenbot/keenbot/pkg/jobs"
	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/monitor"
	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/store"
	"github.com/keenbot/keenbot/pkg/telegram"
	"github.com/keenbot/keenbot/pkg/ui"
)

// Deps are the collaborators the handlers act on. Store may be nil (history
// then reports unavailable).
type Deps struct {
	Cfg     *config.Config
	Runner  *shell.Runner
	Jobs    *jobs.Registry
	Store   *store.Store
	Bus     *bus.Bus
	Monitor *monitor.Monitor
	Router  *drivers.Router
	Opkg    *drivers.Opkg
	Nfqws   *drivers.Nfqws
	Hydra   *drivers.Hydra
	Magi    *drivers.MagiTrickle
	Awg     *drivers.Awg
	Speed   *drivers.Speedtest
}

// Request is one routed inbound event.
type Request struct {
	Ev     telegram.Event
	Cmd    string
	Params map[string]string
	Args   []string
}

// Screen is a handler's reply. Empty Text means nothing to render (the
// handler already acknowledged some other way, e.g. via Toast only).
type Screen struct {
	Text     string
	Keyboard *ui.Keyboard
	// Toast is shown as the callback answer popup; ignored for commands.
	Toast string
}

// handlerFunc handles every command of one module or one slash command.
type handlerFunc func(ctx context.Context, req *Request) Screen

// Dispatcher implements telegram.Handler. Routing tables are plain maps so
// tests can substitute spies.
type Dispatcher struct {
	cfg       *config.Config
	transport telegram.Transport

	modules  map[string]handlerFunc
	commands map[string]handlerFunc
}

func NewDispatcher(transport telegram.Transport, deps Deps) *Dispatcher {
	h := newHandlers(deps)
	d := &Dispatcher{
		cfg:       deps.Cfg,
		transport: transport,
	}
	d.modules = map[string]handlerFunc{
		"h":  h.home,
		"r":  h.router,
		"o":  h.opkg,
		"nq": h.nfqws,
		"hy": h.hydra,
		"mt": h.magitrickle,
		"aw": h.awg,
		"sp": h.speedtest,
		"st": h.storage,
	}
	d.commands = map[string]handlerFunc{
		"/start":     h.start,
		"/help":      h.help,
		"/menu":      func(ctx context.Context, req *Request) Screen { req.Cmd = "m"; return h.home(ctx, req) },
		"/status":    func(ctx context.Context, req *Request) Screen { req.Cmd = "status"; return h.router(ctx, req) },
		"/routes":    func(ctx context.Context, req *Request) Screen { req.Cmd = "routes"; return h.router(ctx, req) },
		"/rules":     func(ctx context.Context, req *Request) Screen { req.Cmd = "rules"; return h.router(ctx, req) },
		"/dhcp":      func(ctx context.Context, req *Request) Screen { req.Cmd = "dhcp"; return h.router(ctx, req) },
		"/diag":      func(ctx context.Context, req *Request) Screen { req.Cmd = "diag"; return h.router(ctx, req) },
		"/reboot":    func(ctx context.Context, req *Request) Screen { req.Cmd = "reboot"; return h.router(ctx, req) },
		"/opkg":      h.opkgCommand,
		"/speedtest": func(ctx context.Context, req *Request) Screen { req.Cmd = "run"; return h.speedtest(ctx, req) },
		"/jobs":      h.jobsList,
		"/history":   h.history,
		"/debug":     h.debug,
		"/cleanup":   func(ctx context.Context, req *Request) Screen { req.Cmd = "cleanup"; return h.storage(ctx, req) },
		"/clearlog":  h.clearlog,
	}
	return d
}

// Handle routes one event. Non-admin senders get a fixed denial and nothing
// else; group chats additionally need to be allow-listed. Updates may be
// redelivered after a crash (the poller is at-least-once): reads replay
// harmlessly, destructive actions sit behind confirm taps that Telegram
// does not resend.
func (d *Dispatcher) Handle(ctx context.Context, ev telegram.Event) {
	if !d.authorized(ev) {
		logger.WarnCF("bot", "unauthorized", map[string]interface{}{
			"user": ev.UserID, "chat": ev.ChatID,
		})
		if ev.Callback != nil {
			_ = d.transport.AnswerCallback(ctx, ev.Callback.ID, "Not authorized")
		} else if strings.HasPrefix(ev.Text, "/") {
			_, _ = d.transport.Send(ctx, telegram.Message{ChatID: ev.ChatID, Text: "Not authorized."})
		}
		return
	}
	if ev.Callback != nil {
		d.handleCallback(ctx, ev)
		return
	}
	if strings.HasPrefix(ev.Text, "/") {
		d.handleCommand(ctx, ev)
	}
}

func (d *Dispatcher) authorized(ev telegram.Event) bool {
	if !d.cfg.IsAdmin(ev.UserID) {
		return false
	}
	// direct chat with the admin, or an allow-listed group
	return ev.ChatID == ev.UserID || d.cfg.ChatAllowed(ev.ChatID)
}

func (d *Dispatcher) handleCallback(ctx context.Context, ev telegram.Event) {
	mod, cmd, params := ui.ParseCallback(ev.Callback.Data)
	if mod == "noop" {
		_ = d.transport.AnswerCallback(ctx, ev.Callback.ID, "")
		return
	}
	handler, ok := d.modules[mod]
	if !ok {
		_ = d.transport.AnswerCallback(ctx, ev.Callback.ID, "Unknown action")
		return
	}
	req := &Request{Ev: ev, Cmd: cmd, Params: params}
	screen := handler(ctx, req)
	_ = d.transport.AnswerCallback(ctx, ev.Callback.ID, screen.Toast)
	if screen.Text == "" {
		return
	}
	msg := telegram.Message{ChatID: ev.ChatID, Text: screen.Text, Keyboard: screen.Keyboard}
	if err := d.transport.Edit(ctx, ev.Callback.MessageID, msg); err != nil {
		logger.WarnCF("bot", "edit failed, sending new message", map[string]interface{}{
			"error": err.Error(),
		})
		_, _ = d.transport.Send(ctx, msg)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev telegram.Event) {
	fields := strings.Fields(ev.Text)
	name := strings.ToLower(fields[0])
	// group chats address commands as /status@botname
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	handler, ok := d.commands[name]
	if !ok {
		_, _ = d.transport.Send(ctx, telegram.Message{
			ChatID: ev.ChatID,
			Text:   "Unknown command. Try /help.",
		})
		return
	}
	req := &Request{Ev: ev, Params: map[string]string{}, Args: fields[1:]}
	screen := handler(ctx, req)
	if screen.Text == "" {
		return
	}
	_, _ = d.transport.Send(ctx, telegram.Message{
		ChatID:   ev.ChatID,
		Text:     screen.Text,
		Keyboard: screen.Keyboard,
	})
}
