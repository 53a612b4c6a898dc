package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/jobs"
	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/ui"
)

// Handlers implements every module screen. One method per module; each
// switches on the request command.
type Handlers struct {
	deps Deps
}

func newHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// startJob launches a background operation and acknowledges immediately.
// Completion is announced through the bus, so it reaches every admin and
// any websocket tap.
func (h *Handlers) startJob(ctx context.Context, key, title string, fn func(context.Context) shell.Result) Screen {
	ok := h.deps.Jobs.StartFunc(ctx, key, fn, func(j jobs.Job) {
		h.deps.Bus.PublishNotification(jobNotification(title, j))
		h.deps.Bus.PublishEvent(bus.Event{
			Type:   "job.finished",
			Source: "jobs",
			Data: map[string]interface{}{
				"key": j.Key, "status": string(j.Status), "rc": j.Result.ExitCode,
			},
		})
	})
	if !ok {
		return Screen{
			Toast: "Already running",
			Text:  fmt.Sprintf("⏳ %s is already running, result will arrive when it finishes.", ui.Esc(title)),
		}
	}
	return Screen{
		Text:     fmt.Sprintf("🚀 %s started. I will report the result here.", ui.Esc(title)),
		Keyboard: ui.Rows(ui.Row(ui.HomeButton())),
	}
}

func jobNotification(title string, j jobs.Job) bus.Notification {
	n := bus.Notification{
		Category: "job:" + j.Key,
		Body:     ui.Tail(j.Result.Output, 3000),
	}
	switch j.Status {
	case jobs.StatusSucceeded:
		n.Title = title + " finished"
		n.Recovery = true
	case jobs.StatusTimedOut:
		n.Title = fmt.Sprintf("%s timed out after %s", title, j.Result.Duration.Round(timeRound))
	default:
		n.Title = fmt.Sprintf("%s failed (rc=%d)", title, j.Result.ExitCode)
	}
	return n
}

// home is the root menu (module "h").
func (h *Handlers) home(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "jobs":
		return h.jobsList(ctx, req)
	case "history":
		return h.history(ctx, req)
	}
	snap := h.deps.Monitor.Snapshot()
	var b strings.Builder
	b.WriteString("🛰 " + ui.Bold("Keenbot") + "\n")
	if !snap.CheckedAt.IsZero() {
		b.WriteString(fmt.Sprintf("disk: %d MB free · load: %.2f · net: %s\n",
			snap.DiskFreeMB, snap.Load1, okIcon(snap.InternetOK)))
		if len(snap.Alerts) > 0 {
			b.WriteString("⚠️ alerts: " + ui.Esc(strings.Join(snap.Alerts, ", ")) + "\n")
		}
	}
	b.WriteString("Pick a section:")
	rows := [][]ui.Button{
		ui.Row(ui.Btn("📡 Router", "r|m"), ui.Btn("📦 Opkg", "o|m")),
		ui.Row(ui.Btn("🚧 nfqws2", "nq|m"), ui.Btn("🐍 HydraRoute", "hy|m")),
		ui.Row(ui.Btn("🔐 AWG", "aw|m"), ui.Btn("⚡️ Speedtest", "sp|m")),
		ui.Row(ui.Btn("💾 Storage", "st|m"), ui.Btn("🧾 History", "h|history")),
	}
	if h.deps.Magi != nil && h.deps.Magi.Available(ctx) {
		rows = append(rows, ui.Row(ui.Btn("🪄 MagiTrickle", "mt|m")))
	}
	return Screen{Text: b.String(), Keyboard: &ui.Keyboard{Rows: rows}}
}

func (h *Handlers) start(ctx context.Context, req *Request) Screen {
	s := h.home(ctx, req)
	s.Text = "Hello! I manage this router.\n\n" + s.Text
	return s
}

func (h *Handlers) help(context.Context, *Request) Screen {
	lines := []string{
		ui.Bold("Commands"),
		"/menu – main menu",
		"/status – system overview",
		"/routes – routing tables",
		"/rules – firewall rules",
		"/dhcp – DHCP clients",
		"/diag – collect diagnostics",
		"/opkg update|upgrade|install|remove|info|search – packages",
		"/speedtest – measure the WAN link",
		"/jobs – running background jobs",
		"/history – recent jobs and alerts",
		"/cleanup – free disk space",
		"/clearlog – truncate the bot log",
		"/debug on|off – verbose logging",
		"/reboot – reboot the router",
	}
	return Screen{Text: strings.Join(lines, "\n"), Keyboard: ui.Rows(ui.Row(ui.HomeButton()))}
}

func (h *Handlers) jobsList(context.Context, *Request) Screen {
	js := h.deps.Jobs.List()
	if len(js) == 0 {
		return Screen{Text: "No jobs yet.", Keyboard: ui.Rows(ui.Row(ui.HomeButton()))}
	}
	var lines []string
	for _, j := range js {
		lines = append(lines, formatJobLine(j))
	}
	return Screen{
		Text:     ui.Bold("Jobs") + "\n" + strings.Join(lines, "\n"),
		Keyboard: ui.Rows(ui.Row(ui.HomeButton())),
	}
}

func (h *Handlers) history(ctx context.Context, _ *Request) Screen {
	if h.deps.Store == nil {
		return Screen{Text: "History is unavailable: no persistent store configured.", Keyboard: ui.Rows(ui.Row(ui.HomeButton()))}
	}
	var b strings.Builder
	if recs, err := h.deps.Store.RecentJobs(ctx, 10); err == nil && len(recs) > 0 {
		b.WriteString(ui.Bold("Recent jobs") + "\n")
		for _, j := range recs {
			b.WriteString(fmt.Sprintf("%s %s · rc=%d · %s\n",
				statusIcon(j.Status), ui.Esc(j.Key), j.ExitCode,
				j.FinishedAt.Local().Format("02.01 15:04")))
		}
	}
	if notes, err := h.deps.Store.RecentNotifications(ctx, 10); err == nil && len(notes) > 0 {
		b.WriteString("\n" + ui.Bold("Recent alerts") + "\n")
		for _, n := range notes {
			b.WriteString(fmt.Sprintf("· [%s] %s · %s\n",
				ui.Esc(n.Category), ui.Esc(n.Message),
				n.SentAt.Local().Format("02.01 15:04")))
		}
	}
	if b.Len() == 0 {
		b.WriteString("History is empty.")
	}
	return Screen{Text: b.String(), Keyboard: ui.Rows(ui.Row(ui.HomeButton()))}
}

func (h *Handlers) debug(_ context.Context, req *Request) Screen {
	if len(req.Args) != 1 || (req.Args[0] != "on" && req.Args[0] != "off") {
		return Screen{Text: fmt.Sprintf("Debug logging is %s. Usage: /debug on|off", onOff(h.deps.Cfg.Debug))}
	}
	on := req.Args[0] == "on"
	h.deps.Cfg.Debug = on
	logger.SetDebug(on)
	if err := h.deps.Cfg.Save(); err != nil {
		logger.WarnCF("bot", "config save failed", map[string]interface{}{"error": err.Error()})
	}
	return Screen{Text: "Debug logging " + onOff(on) + "."}
}

func (h *Handlers) clearlog(ctx context.Context, _ *Request) Screen {
	res := h.deps.Runner.Sh(ctx, fmt.Sprintf(": > %s", h.deps.Cfg.LogPath), 0)
	if !res.OK() {
		return Screen{Text: "Failed to truncate log:\n" + ui.Pre(res.Output)}
	}
	return Screen{Text: "Bot log truncated."}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func okIcon(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
