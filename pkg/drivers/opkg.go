package drivers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

// Opkg wraps the Entware package manager. Index mutations (update, upgrade,
// install, remove) are long-running and meant to run through the job
// registry; the list/info calls are quick reads.
type Opkg struct {
	runner *shell.Runner
}

func NewOpkg(runner *shell.Runner) *Opkg {
	return &Opkg{runner: runner}
}

// Update refreshes the package lists. Fresh Entware installs ship plain
// wget which cannot fetch the https feeds; when the failure points at
// wget, install wget-ssl once and retry.
func (o *Opkg) Update(ctx context.Context) shell.Result {
	res := o.runner.Sh(ctx, "opkg update 2>&1", 120*time.Second)
	if res.OK() || !needsWgetSSL(res.Output) {
		return res
	}
	fix := o.runner.Sh(ctx, "opkg install wget-ssl 2>&1", 120*time.Second)
	if !fix.OK() {
		res.Output += "\n" + fix.Output
		return res
	}
	return o.runner.Sh(ctx, "opkg update 2>&1", 120*time.Second)
}

func needsWgetSSL(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "wget") &&
		(strings.Contains(lower, "ssl") || strings.Contains(lower, "https") ||
			strings.Contains(lower, "failed to download"))
}

// ListUpgradable returns "name old new" lines, one per pending upgrade.
func (o *Opkg) ListUpgradable(ctx context.Context) ([]string, shell.Result) {
	res := o.runner.Sh(ctx, "opkg list-upgradable 2>/dev/null", 60*time.Second)
	return splitLines(res.Output), res
}

// Upgrade applies all pending upgrades.
func (o *Opkg) Upgrade(ctx context.Context) shell.Result {
	return o.runner.Sh(ctx,
		"opkg list-upgradable 2>/dev/null | awk '{print $1}' | xargs -r opkg upgrade 2>&1",
		600*time.Second)
}

func (o *Opkg) Install(ctx context.Context, pkg string) shell.Result {
	if !validPkgName(pkg) {
		return shell.Result{ExitCode: shell.ExitSpawnFailure, Output: "invalid package name: " + pkg}
	}
	return o.runner.Sh(ctx, fmt.Sprintf("opkg install %s 2>&1", pkg), 300*time.Second)
}

func (o *Opkg) Remove(ctx context.Context, pkg string) shell.Result {
	if !validPkgName(pkg) {
		return shell.Result{ExitCode: shell.ExitSpawnFailure, Output: "invalid package name: " + pkg}
	}
	return o.runner.Sh(ctx, fmt.Sprintf("opkg remove %s 2>&1", pkg), 120*time.Second)
}

func (o *Opkg) Info(ctx context.Context, pkg string) shell.Result {
	if !validPkgName(pkg) {
		return shell.Result{ExitCode: shell.ExitSpawnFailure, Output: "invalid package name: " + pkg}
	}
	return o.runner.Sh(ctx, fmt.Sprintf("opkg info %s 2>/dev/null", pkg), 30*time.Second)
}

// Search greps the full package list for a substring.
func (o *Opkg) Search(ctx context.Context, term string) ([]string, shell.Result) {
	if !validPkgName(term) {
		r := shell.Result{ExitCode: shell.ExitSpawnFailure, Output: "invalid search term: " + term}
		return nil, r
	}
	res := o.runner.Sh(ctx, fmt.Sprintf("opkg list 2>/dev/null | grep -i -- %s", term), 60*time.Second)
	return splitLines(res.Output), res
}

func (o *Opkg) ListInstalled(ctx context.Context) ([]string, shell.Result) {
	res := o.runner.Sh(ctx, "opkg list-installed 2>/dev/null", 60*time.Second)
	return splitLines(res.Output), res
}

// validPkgName rejects anything that could break out of the shell line.
// Package names and search terms are [A-Za-z0-9._+-] only.
func validPkgName(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '+' || r == '-':
		default:
			return false
		}
	}
	return true
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
