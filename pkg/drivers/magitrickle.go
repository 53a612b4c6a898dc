package drivers

import (
	"context"

	"github.com/keenbot/keenbot/pkg/shell"
)

// MagiTrickle controls the MagiTrickle policy router. It covers the same
// ground as HydraRoute, so when both are installed HydraRoute wins and
// MagiTrickle reports itself unavailable instead of fighting over routes.
type MagiTrickle struct {
	*InitService
	hydra *Hydra
}

func NewMagiTrickle(runner *shell.Runner, hydra *Hydra) *MagiTrickle {
	return &MagiTrickle{
		InitService: NewInitService(runner, "magitrickle",
			[]string{`magitrickle`},
			[]string{"magitrickle"}),
		hydra: hydra,
	}
}

// Available reports installed and not shadowed by HydraRoute.
func (m *MagiTrickle) Available(ctx context.Context) bool {
	return m.Installed(ctx) && !m.hydra.Installed(ctx)
}

func (m *MagiTrickle) Status(ctx context.Context) ServiceStatus {
	if m.hydra.Installed(ctx) {
		return ServiceStatus{Detail: "ignored while HydraRoute is installed"}
	}
	return m.InitService.Status(ctx)
}
