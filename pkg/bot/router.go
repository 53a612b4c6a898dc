package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/ui"
)

// router handles module "r": system status, routes, firewall, DHCP,
// diagnostics and reboot.
func (h *Handlers) router(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.routerMenu()
	case "status":
		return h.routerStatus(ctx)
	case "routes":
		return h.routerRoutes(ctx, req)
	case "rules":
		return h.routerRules(ctx, req)
	case "dhcp":
		return h.routerDhcp(ctx)
	case "internet":
		return h.routerInternet(ctx)
	case "diag":
		return h.routerDiag(ctx)
	case "reboot":
		return h.routerReboot(ctx, req)
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) routerMenu() Screen {
	return Screen{
		Text: ui.Bold("📡 Router"),
		Keyboard: ui.Rows(
			ui.Row(ui.Btn("ℹ️ Status", "r|status"), ui.Btn("🌐 Internet", "r|internet")),
			ui.Row(ui.Btn("🗺 Routes", "r|routes"), ui.Btn("🧱 Firewall", "r|rules")),
			ui.Row(ui.Btn("🖧 DHCP", "r|dhcp"), ui.Btn("🩺 Diagnostics", "r|diag")),
			ui.Row(ui.Btn("♻️ Reboot", "r|reboot")),
			ui.Row(ui.HomeButton()),
		),
	}
}

func (h *Handlers) routerStatus(ctx context.Context) Screen {
	info := h.deps.Router.SystemInfo(ctx)
	snap := h.deps.Monitor.Snapshot()

	var b strings.Builder
	b.WriteString(ui.Bold("ℹ️ System status") + "\n")
	b.WriteString(ui.Pre(info))
	if !snap.CheckedAt.IsZero() {
		b.WriteString(fmt.Sprintf("\nmonitor: load %.2f · %d MB free · net %s",
			snap.Load1, snap.DiskFreeMB, okIcon(snap.InternetOK)))
		for name, st := range snap.Services {
			if st.Installed {
				b.WriteString(fmt.Sprintf("\n%s %s", okIcon(st.Running), ui.Esc(name)))
			}
		}
		if snap.Upgradable > 0 {
			b.WriteString(fmt.Sprintf("\n📦 %d updates pending", snap.Upgradable))
		}
	}
	return Screen{Text: b.String(), Keyboard: ui.Rows(ui.BackRow("r|m"))}
}

func pageParam(req *Request) int {
	p, err := strconv.Atoi(req.Params["page"])
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// paged renders one page of lines with a pager keyboard routing back to
// mod|cmd.
func paged(title string, lines []string, mod, cmd string, page int) Screen {
	if len(lines) == 0 {
		return Screen{Text: title + "\n(empty)", Keyboard: ui.Rows(ui.BackRow(mod + "|m"))}
	}
	p := ui.PaginateLines(lines, page)
	return Screen{
		Text: title + "\n" + ui.Pre(p.Text),
		Keyboard: ui.Rows(
			ui.PagerRow(mod, cmd, p.Page, p.Pages),
			ui.BackRow(mod+"|m"),
		),
	}
}

func (h *Handlers) routerRoutes(ctx context.Context, req *Request) Screen {
	v4, v6 := h.deps.Router.Routes(ctx)
	lines := append([]string{"# IPv4"}, v4...)
	if len(v6) > 0 {
		lines = append(lines, "", "# IPv6")
		lines = append(lines, v6...)
	}
	return paged(ui.Bold("🗺 Routes"), lines, "r", "routes", pageParam(req))
}

func (h *Handlers) routerRules(ctx context.Context, req *Request) Screen {
	v4, v6 := h.deps.Router.FirewallRules(ctx)
	lines := append([]string{"# iptables"}, v4...)
	if len(v6) > 0 {
		lines = append(lines, "", "# ip6tables")
		lines = append(lines, v6...)
	}
	return paged(ui.Bold("🧱 Firewall"), lines, "r", "rules", pageParam(req))
}

func (h *Handlers) routerDhcp(ctx context.Context) Screen {
	clients := h.deps.Router.DhcpClients(ctx)
	if len(clients) == 0 {
		return Screen{Text: "No DHCP leases found.", Keyboard: ui.Rows(ui.BackRow("r|m"))}
	}
	var lines []string
	for _, c := range clients {
		name := c.Hostname
		if name == "*" || name == "" {
			name = "(unnamed)"
		}
		lines = append(lines, fmt.Sprintf("%-15s %s %s", c.IP, c.MAC, name))
	}
	return Screen{
		Text:     ui.Bold(fmt.Sprintf("🖧 DHCP clients (%d)", len(clients))) + "\n" + ui.Pre(strings.Join(lines, "\n")),
		Keyboard: ui.Rows(ui.BackRow("r|m")),
	}
}

func (h *Handlers) routerInternet(ctx context.Context) Screen {
	ok, detail := h.deps.Router.InternetCheck(ctx)
	title := "🌐 Internet: "
	if ok {
		title += "reachable ✅"
	} else {
		title += "unreachable ❌"
	}
	return Screen{
		Text:     ui.Bold(title) + "\n" + ui.Pre(ui.Tail(detail, 2000)),
		Keyboard: ui.Rows(ui.BackRow("r|m")),
	}
}

// diagScript collects a support bundle in one shot. Each section is best
// effort so a missing tool does not abort the rest.
const diagScript = `
echo "=== uname ==="; uname -a
echo "=== uptime ==="; uptime
echo "=== meminfo ==="; head -n 5 /proc/meminfo
echo "=== loadavg ==="; cat /proc/loadavg
echo "=== df ==="; df -h
echo "=== mounts ==="; mount | grep -E "/opt|/tmp"
echo "=== top procs ==="; ps w 2>/dev/null | head -n 25
echo "=== opkg arch ==="; opkg print-architecture 2>/dev/null
echo "=== init.d ==="; ls -l /opt/etc/init.d/ 2>/dev/null
echo "=== syslog tail ==="; logread 2>/dev/null | tail -n 40
`

func (h *Handlers) routerDiag(ctx context.Context) Screen {
	return h.startJob(ctx, "diag", "Diagnostics", func(ctx context.Context) shell.Result {
		return h.deps.Runner.Run(ctx, shell.Command{Script: diagScript, Timeout: 60 * time.Second})
	})
}

func (h *Handlers) routerReboot(ctx context.Context, req *Request) Screen {
	if req.Params["confirm"] != "1" {
		return Screen{
			Text:     "♻️ Reboot the router? Connectivity will drop for a minute or two.",
			Keyboard: ui.Confirm("r|reboot|confirm=1", "r|m"),
		}
	}
	res := h.deps.Router.Reboot(ctx)
	if !res.OK() {
		return Screen{Text: formatResult("Reboot", res), Keyboard: ui.Rows(ui.BackRow("r|m"))}
	}
	return Screen{Text: "♻️ Reboot issued. See you on the other side."}
}
