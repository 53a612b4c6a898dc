package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/keenbot/keenbot/pkg/drivers"
	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/ui"
)

// nfqws handles module "nq": the DPI bypass service.
func (h *Handlers) nfqws(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.nfqwsMenu(ctx)
	case "start", "stop", "restart":
		st := serviceAction(ctx, h.deps.Nfqws.InitService, req.Cmd)
		s := h.nfqwsMenu(ctx)
		s.Toast = actionToast(req.Cmd, st)
		return s
	case "logs":
		tail := h.deps.Nfqws.LogTail(ctx, 40)
		if tail == "" {
			return Screen{Text: "No nfqws2 log found.", Keyboard: ui.Rows(ui.BackRow("nq|m"))}
		}
		return Screen{Text: ui.Bold("🧾 nfqws2 log") + "\n" + ui.Pre(ui.Tail(tail, 3000)), Keyboard: ui.Rows(ui.BackRow("nq|m"))}
	case "cfg":
		return h.nfqwsConfig(req)
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) nfqwsMenu(ctx context.Context) Screen {
	st := h.deps.Nfqws.Status(ctx)
	var b strings.Builder
	b.WriteString(ui.Bold("🚧 nfqws2") + "\n")
	b.WriteString(serviceLine(st))

	kb := &ui.Keyboard{}
	if st.Installed {
		kb.Rows = append(kb.Rows, serviceButtons("nq", st.Running))
		kb.Rows = append(kb.Rows, ui.Row(ui.Btn("🧾 Logs", "nq|logs")))
		if files := h.deps.Nfqws.ConfigFiles(); len(files) > 0 {
			row := []ui.Button{}
			for _, f := range files {
				if len(row) == 2 {
					kb.Rows = append(kb.Rows, row)
					row = []ui.Button{}
				}
				row = append(row, ui.Btn("📄 "+f, ui.FormatCallback("nq", "cfg", map[string]string{"f": f})))
			}
			if len(row) > 0 {
				kb.Rows = append(kb.Rows, row)
			}
		}
		if url := h.deps.Nfqws.WebURL(h.deps.Router.GuessIPv4(ctx)); url != "" {
			kb.Rows = append(kb.Rows, ui.Row(ui.URLBtn("🌐 Web UI", url)))
		}
	} else {
		b.WriteString("\nInstall with /opkg install nfqws2")
	}
	kb.Rows = append(kb.Rows, ui.Row(ui.HomeButton()))
	return Screen{Text: b.String(), Keyboard: kb}
}

func (h *Handlers) nfqwsConfig(req *Request) Screen {
	name := req.Params["f"]
	content, err := h.deps.Nfqws.ShowConfig(name)
	if err != nil {
		return Screen{Toast: "Cannot read config", Text: "Cannot read " + ui.Code(name) + ": " + ui.Esc(err.Error()), Keyboard: ui.Rows(ui.BackRow("nq|m"))}
	}
	return Screen{
		Text:     ui.Bold("📄 "+ui.Esc(name)) + "\n" + ui.Pre(ui.Tail(content, 3000)),
		Keyboard: ui.Rows(ui.BackRow("nq|m")),
	}
}

// hydra handles module "hy": HydraRoute policy routing.
func (h *Handlers) hydra(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.hydraMenu(ctx)
	case "start", "stop", "restart":
		st := serviceAction(ctx, h.deps.Hydra.InitService, req.Cmd)
		s := h.hydraMenu(ctx)
		s.Toast = actionToast(req.Cmd, st)
		return s
	case "lists":
		lists := h.deps.Hydra.DomainLists(ctx)
		if len(lists) == 0 {
			return Screen{Text: "No domain lists found.", Keyboard: ui.Rows(ui.BackRow("hy|m"))}
		}
		return Screen{
			Text:     ui.Bold("🗂 Domain lists") + "\n" + ui.Pre(strings.Join(lists, "\n")),
			Keyboard: ui.Rows(ui.BackRow("hy|m")),
		}
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) hydraMenu(ctx context.Context) Screen {
	st := h.deps.Hydra.Status(ctx)
	var b strings.Builder
	b.WriteString(ui.Bold("🐍 HydraRoute") + "\n")
	b.WriteString(serviceLine(st))

	kb := &ui.Keyboard{}
	if st.Installed {
		kb.Rows = append(kb.Rows, serviceButtons("hy", st.Running))
		kb.Rows = append(kb.Rows, ui.Row(ui.Btn("🗂 Lists", "hy|lists")))
		if url := h.deps.Hydra.WebURL(h.deps.Router.GuessIPv4(ctx)); url != "" {
			kb.Rows = append(kb.Rows, ui.Row(ui.URLBtn("🌐 Web UI", url)))
		}
	} else {
		b.WriteString("\nInstall with /opkg install hrneo")
	}
	kb.Rows = append(kb.Rows, ui.Row(ui.HomeButton()))
	return Screen{Text: b.String(), Keyboard: kb}
}

// magitrickle handles module "mt". The tool is shadowed entirely by
// HydraRoute when both are installed, matching the driver's availability.
func (h *Handlers) magitrickle(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.magitrickleMenu(ctx)
	case "start", "stop", "restart":
		st := serviceAction(ctx, h.deps.Magi.InitService, req.Cmd)
		s := h.magitrickleMenu(ctx)
		s.Toast = actionToast(req.Cmd, st)
		return s
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) magitrickleMenu(ctx context.Context) Screen {
	if h.deps.Hydra.Installed(ctx) {
		return Screen{
			Text:     ui.Bold("🪄 MagiTrickle") + "\nIgnored while HydraRoute is installed.",
			Keyboard: ui.Rows(ui.Row(ui.HomeButton())),
		}
	}
	st := h.deps.Magi.Status(ctx)
	var b strings.Builder
	b.WriteString(ui.Bold("🪄 MagiTrickle") + "\n")
	b.WriteString(serviceLine(st))

	kb := &ui.Keyboard{}
	if st.Installed {
		kb.Rows = append(kb.Rows, serviceButtons("mt", st.Running))
	} else {
		b.WriteString("\nInstall with /opkg install magitrickle")
	}
	kb.Rows = append(kb.Rows, ui.Row(ui.HomeButton()))
	return Screen{Text: b.String(), Keyboard: kb}
}

// awg handles module "aw": AmneziaWG tunnels through the local manager API.
func (h *Handlers) awg(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.awgMenu(ctx)
	case "up", "down", "restart":
		return h.awgAction(ctx, req)
	case "ip":
		ip, err := h.deps.Awg.PublicIP(ctx)
		if err != nil {
			return Screen{Toast: "Failed", Text: "Public IP lookup failed: " + ui.Esc(err.Error()), Keyboard: ui.Rows(ui.BackRow("aw|m"))}
		}
		return Screen{Text: "🌍 Public IP: " + ui.Code(ip), Keyboard: ui.Rows(ui.BackRow("aw|m"))}
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) awgMenu(ctx context.Context) Screen {
	if !h.deps.Awg.Available(ctx) {
		return Screen{
			Text:     ui.Bold("🔐 AWG") + "\nThe AWG manager is not responding. Is it installed and running?",
			Keyboard: ui.Rows(ui.Row(ui.HomeButton())),
		}
	}
	tunnels, err := h.deps.Awg.Tunnels(ctx)
	if err != nil {
		return Screen{Text: "🔐 AWG: " + ui.Esc(err.Error()), Keyboard: ui.Rows(ui.Row(ui.HomeButton()))}
	}
	var b strings.Builder
	b.WriteString(ui.Bold("🔐 AWG tunnels") + "\n")
	kb := &ui.Keyboard{}
	if len(tunnels) == 0 {
		b.WriteString("No tunnels configured.")
	}
	for _, t := range tunnels {
		b.WriteString(fmt.Sprintf("%s %s", okIcon(t.Active), ui.Esc(t.Name)))
		if t.Handshake != "" {
			b.WriteString(" · hs " + ui.Esc(t.Handshake))
		}
		b.WriteString("\n")
		verb, label := "up", "▶️ Up"
		if t.Active {
			verb, label = "down", "⏹ Down"
		}
		kb.Rows = append(kb.Rows, ui.Row(
			ui.Btn(label+" "+t.Name, ui.FormatCallback("aw", verb, map[string]string{"t": t.Name})),
			ui.Btn("🔄 "+t.Name, ui.FormatCallback("aw", "restart", map[string]string{"t": t.Name})),
		))
	}
	kb.Rows = append(kb.Rows, ui.Row(ui.Btn("🌍 Public IP", "aw|ip")))
	kb.Rows = append(kb.Rows, ui.Row(ui.HomeButton()))
	return Screen{Text: b.String(), Keyboard: kb}
}

func (h *Handlers) awgAction(ctx context.Context, req *Request) Screen {
	name := req.Params["t"]
	if name == "" {
		return Screen{Toast: "No tunnel given"}
	}
	var err error
	switch req.Cmd {
	case "up":
		err = h.deps.Awg.TunnelUp(ctx, name)
	case "down":
		err = h.deps.Awg.TunnelDown(ctx, name)
	case "restart":
		err = h.deps.Awg.RestartTunnel(ctx, name)
	}
	s := h.awgMenu(ctx)
	if err != nil {
		s.Toast = "Failed: " + err.Error()
	} else {
		s.Toast = req.Cmd + " done"
	}
	return s
}

// speedtest handles module "sp".
func (h *Handlers) speedtest(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return Screen{
			Text:     ui.Bold("⚡️ Speedtest") + "\nMeasures the WAN link; takes about a minute.",
			Keyboard: ui.Rows(ui.Row(ui.Btn("🚀 Run", "sp|run")), ui.Row(ui.HomeButton())),
		}
	case "run":
		return h.startJob(ctx, "speedtest", "Speedtest", func(ctx context.Context) shell.Result {
			r, err := h.deps.Speed.Run(ctx)
			if err != nil {
				return shell.Result{ExitCode: 1, Output: err.Error() + "\n" + r.Raw}
			}
			return shell.Result{ExitCode: 0, Output: r.String()}
		})
	default:
		return Screen{Toast: "Unknown action"}
	}
}

// storage handles module "st": /opt disk usage and cleanup.
func (h *Handlers) storage(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return Screen{
			Text: ui.Bold("💾 Storage") + "\n" + ui.Pre(h.deps.Router.OptStatus(ctx)),
			Keyboard: ui.Rows(
				ui.Row(ui.Btn("📊 Top dirs", "st|top"), ui.Btn("🧹 Cleanup", "st|cleanup")),
				ui.Row(ui.HomeButton()),
			),
		}
	case "top":
		return Screen{
			Text:     ui.Bold("📊 Biggest under /opt (KB)") + "\n" + ui.Pre(h.deps.Router.OptTop(ctx, 2, 15)),
			Keyboard: ui.Rows(ui.BackRow("st|m")),
		}
	case "cleanup":
		if req.Params["confirm"] != "1" {
			return Screen{
				Text:     "🧹 Truncate service logs and clear opkg list caches?",
				Keyboard: ui.Confirm("st|cleanup|confirm=1", "st|m"),
			}
		}
		var paths []string
		for _, lw := range h.deps.Cfg.Notify.LogFiles {
			paths = append(paths, lw.Path)
		}
		report := h.deps.Router.Cleanup(ctx, paths)
		return Screen{Text: ui.Bold("🧹 Cleanup") + "\n" + ui.Pre(report), Keyboard: ui.Rows(ui.BackRow("st|m"))}
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func serviceAction(ctx context.Context, svc *drivers.InitService, verb string) drivers.ServiceStatus {
	switch verb {
	case "start":
		return svc.Start(ctx)
	case "stop":
		return svc.Stop(ctx)
	default:
		return svc.Restart(ctx)
	}
}

func serviceLine(st drivers.ServiceStatus) string {
	if !st.Installed {
		return "Not installed."
	}
	line := okIcon(st.Running)
	if st.Running {
		line += " running"
	} else {
		line += " stopped"
	}
	if st.Version != "" {
		line += " · v" + ui.Esc(st.Version)
	}
	if st.Detail != "" {
		line += "\n" + ui.Pre(ui.Tail(st.Detail, 500))
	}
	return line
}

func serviceButtons(mod string, running bool) []ui.Button {
	if running {
		return ui.Row(ui.Btn("⏹ Stop", mod+"|stop"), ui.Btn("🔄 Restart", mod+"|restart"))
	}
	return ui.Row(ui.Btn("▶️ Start", mod+"|start"))
}

func actionToast(verb string, st drivers.ServiceStatus) string {
	if !st.Installed {
		return "Not installed"
	}
	return verb + ": " + map[bool]string{true: "running", false: "stopped"}[st.Running]
}
