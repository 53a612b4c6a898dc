package drivers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

// Hydra controls HydraRoute (domain-based policy routing). Same init.d
// contract as the rest, plus its domain lists and web UI.
type Hydra struct {
	*InitService
	runner  *shell.Runner
	webPort int
}

func NewHydra(runner *shell.Runner, webPort int) *Hydra {
	return &Hydra{
		InitService: NewInitService(runner, "hydraroute",
			[]string{`^S\d+hrneo$`, `^S\d+hydra`, `hydra`},
			[]string{"hrneo", "hydraroute"}),
		runner:  runner,
		webPort: webPort,
	}
}

func (h *Hydra) WebURL(routerIP string) string {
	if routerIP == "" || h.webPort <= 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d/", routerIP, h.webPort)
}

// DomainLists summarizes the configured domain list files: name and entry
// count per file.
func (h *Hydra) DomainLists(ctx context.Context) []string {
	var out []string
	for _, dir := range []string{"/opt/etc/HydraRoute", "/opt/etc/hydraroute"} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		res := h.runner.Sh(ctx,
			fmt.Sprintf(`for f in %s/*.list %s/*.txt; do [ -f "$f" ] && echo "$(basename "$f"): $(grep -c . "$f") entries"; done 2>/dev/null`, dir, dir),
			10*time.Second)
		if res.OK() && res.Output != "" {
			out = append(out, splitLines(res.Output)...)
		}
		break
	}
	return out
}
