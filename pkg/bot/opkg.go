package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/ui"
)

// opkg handles module "o": package list maintenance and upgrades. Index
// mutations run as jobs; install and remove go through a confirm tap.
func (h *Handlers) opkg(ctx context.Context, req *Request) Screen {
	switch req.Cmd {
	case "m":
		return h.opkgMenu()
	case "update":
		return h.startJob(ctx, "opkg_update", "opkg update", func(ctx context.Context) shell.Result {
			return h.deps.Opkg.Update(ctx)
		})
	case "upgradable":
		return h.opkgUpgradable(ctx, req)
	case "upgrade":
		return h.opkgUpgrade(ctx, req)
	case "installed":
		return h.opkgInstalled(ctx, req)
	case "install":
		return h.opkgInstall(ctx, req)
	case "remove":
		return h.opkgRemove(ctx, req)
	default:
		return Screen{Toast: "Unknown action"}
	}
}

func (h *Handlers) opkgMenu() Screen {
	return Screen{
		Text: ui.Bold("📦 Opkg") + "\nAlso: /opkg install|remove|info|search &lt;pkg&gt;",
		Keyboard: ui.Rows(
			ui.Row(ui.Btn("🔄 Update lists", "o|update"), ui.Btn("📋 Upgradable", "o|upgradable")),
			ui.Row(ui.Btn("⬆️ Upgrade all", "o|upgrade"), ui.Btn("📚 Installed", "o|installed")),
			ui.Row(ui.HomeButton()),
		),
	}
}

func (h *Handlers) opkgUpgradable(ctx context.Context, req *Request) Screen {
	lines, res := h.deps.Opkg.ListUpgradable(ctx)
	if !res.OK() {
		return Screen{Text: formatResult("opkg list-upgradable", res), Keyboard: ui.Rows(ui.BackRow("o|m"))}
	}
	if len(lines) == 0 {
		return Screen{Text: "✅ Everything is up to date.", Keyboard: ui.Rows(ui.BackRow("o|m"))}
	}
	s := paged(ui.Bold(fmt.Sprintf("📋 %d upgradable", len(lines))), lines, "o", "upgradable", pageParam(req))
	s.Keyboard.Rows = append([][]ui.Button{ui.Row(ui.Btn("⬆️ Upgrade all", "o|upgrade"))}, s.Keyboard.Rows...)
	return s
}

func (h *Handlers) opkgUpgrade(ctx context.Context, req *Request) Screen {
	if req.Params["confirm"] != "1" {
		return Screen{
			Text:     "⬆️ Upgrade all pending packages? Services may restart.",
			Keyboard: ui.Confirm("o|upgrade|confirm=1", "o|m"),
		}
	}
	return h.startJob(ctx, "opkg_upgrade", "opkg upgrade", func(ctx context.Context) shell.Result {
		return h.deps.Opkg.Upgrade(ctx)
	})
}

func (h *Handlers) opkgInstalled(ctx context.Context, req *Request) Screen {
	lines, res := h.deps.Opkg.ListInstalled(ctx)
	if !res.OK() {
		return Screen{Text: formatResult("opkg list-installed", res), Keyboard: ui.Rows(ui.BackRow("o|m"))}
	}
	return paged(ui.Bold(fmt.Sprintf("📚 %d installed", len(lines))), lines, "o", "installed", pageParam(req))
}

func (h *Handlers) opkgInstall(ctx context.Context, req *Request) Screen {
	pkg := req.Params["pkg"]
	if pkg == "" {
		return Screen{Toast: "No package given"}
	}
	if req.Params["confirm"] != "1" {
		return Screen{
			Text:     fmt.Sprintf("Install %s?", ui.Code(pkg)),
			Keyboard: ui.Confirm(ui.FormatCallback("o", "install", map[string]string{"pkg": pkg, "confirm": "1"}), "o|m"),
		}
	}
	return h.startJob(ctx, "opkg_install_"+pkg, "Install "+pkg, func(ctx context.Context) shell.Result {
		return h.deps.Opkg.Install(ctx, pkg)
	})
}

func (h *Handlers) opkgRemove(ctx context.Context, req *Request) Screen {
	pkg := req.Params["pkg"]
	if pkg == "" {
		return Screen{Toast: "No package given"}
	}
	if req.Params["confirm"] != "1" {
		return Screen{
			Text:     fmt.Sprintf("Remove %s?", ui.Code(pkg)),
			Keyboard: ui.Confirm(ui.FormatCallback("o", "remove", map[string]string{"pkg": pkg, "confirm": "1"}), "o|m"),
		}
	}
	return h.startJob(ctx, "opkg_remove_"+pkg, "Remove "+pkg, func(ctx context.Context) shell.Result {
		return h.deps.Opkg.Remove(ctx, pkg)
	})
}

// opkgCommand is the /opkg slash entry: "/opkg info htop", "/opkg search dns".
func (h *Handlers) opkgCommand(ctx context.Context, req *Request) Screen {
	if len(req.Args) == 0 {
		return h.opkgMenu()
	}
	sub := strings.ToLower(req.Args[0])
	arg := ""
	if len(req.Args) > 1 {
		arg = req.Args[1]
	}
	switch sub {
	case "update":
		req.Cmd = "update"
		return h.opkg(ctx, req)
	case "upgrade":
		req.Cmd = "upgrade"
		return h.opkg(ctx, req)
	case "install", "remove":
		if arg == "" {
			return Screen{Text: fmt.Sprintf("Usage: /opkg %s <package>", sub)}
		}
		req.Cmd = sub
		req.Params["pkg"] = arg
		return h.opkg(ctx, req)
	case "info":
		if arg == "" {
			return Screen{Text: "Usage: /opkg info <package>"}
		}
		res := h.deps.Opkg.Info(ctx, arg)
		return Screen{Text: formatResult("opkg info "+arg, res), Keyboard: ui.Rows(ui.BackRow("o|m"))}
	case "search":
		if arg == "" {
			return Screen{Text: "Usage: /opkg search <term>"}
		}
		lines, res := h.deps.Opkg.Search(ctx, arg)
		if !res.OK() && len(lines) == 0 {
			return Screen{Text: fmt.Sprintf("Nothing found for %s.", ui.Code(arg)), Keyboard: ui.Rows(ui.BackRow("o|m"))}
		}
		return paged(ui.Bold("🔎 "+ui.Esc(arg)), lines, "o", "m", 1)
	default:
		return Screen{Text: "Usage: /opkg update|upgrade|install|remove|info|search"}
	}
}
