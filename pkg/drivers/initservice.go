package drivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

const initDir = "/opt/etc/init.d"

// InitService wraps a /opt/etc/init.d script. Entware packages name their
// scripts inconsistently (S51nfqws2, S99hrneo, mixed case), so the script is
// located by a list of regex patterns; the package version comes from opkg.
type InitService struct {
	name     string
	runner   *shell.Runner
	patterns []*regexp.Regexp
	pkgNames []string
	initDir  string
}

func NewInitService(runner *shell.Runner, name string, scriptPatterns, pkgNames []string) *InitService {
	pats := make([]*regexp.Regexp, 0, len(scriptPatterns))
	for _, p := range scriptPatterns {
		pats = append(pats, regexp.MustCompile("(?i)"+p))
	}
	return &InitService{
		name:     name,
		runner:   runner,
		patterns: pats,
		pkgNames: pkgNames,
		initDir:  initDir,
	}
}

func (s *InitService) Name() string { return s.name }

func (s *InitService) findScript() string {
	entries, err := os.ReadDir(s.initDir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, rx := range s.patterns {
		for _, n := range names {
			if rx.MatchString(n) {
				return filepath.Join(s.initDir, n)
			}
		}
	}
	return ""
}

// Installed reports whether the tool is present at all (init script found or
// any known package installed).
func (s *InitService) Installed(ctx context.Context) bool {
	if s.findScript() != "" {
		return true
	}
	for _, pkg := range s.pkgNames {
		res := s.runner.Probe(ctx, fmt.Sprintf("opkg status %s >/dev/null 2>&1 && echo yes || echo no", pkg), 5*time.Second, 10*time.Second)
		if strings.TrimSpace(res.Output) == "yes" {
			return true
		}
	}
	return false
}

func (s *InitService) version(ctx context.Context) string {
	for _, pkg := range s.pkgNames {
		res := s.runner.Probe(ctx,
			fmt.Sprintf(`opkg status %s 2>/dev/null | awk -F': ' '/^Version: /{print $2; exit}'`, pkg),
			10*time.Second, 10*time.Second)
		if v := strings.TrimSpace(res.Output); v != "" {
			return v
		}
	}
	return ""
}

func (s *InitService) Status(ctx context.Context) ServiceStatus {
	script := s.findScript()
	if script == "" {
		return ServiceStatus{Detail: "init script not found"}
	}
	res := s.runner.Sh(ctx, fmt.Sprintf("sh %s status 2>/dev/null || true", script), 10*time.Second)
	detail := strings.TrimSpace(res.Output)
	lower := strings.ToLower(detail)
	running := strings.Contains(lower, "running") || strings.Contains(lower, "alive")
	if !running {
		// status targets are unreliable across packages; fall back to pidof
		running = s.pidofGuess(ctx, script)
	}
	return ServiceStatus{
		Installed: true,
		Running:   running,
		Version:   s.version(ctx),
		Detail:    detail,
	}
}

func (s *InitService) Start(ctx context.Context) ServiceStatus   { return s.action(ctx, "start") }
func (s *InitService) Stop(ctx context.Context) ServiceStatus    { return s.action(ctx, "stop") }
func (s *InitService) Restart(ctx context.Context) ServiceStatus { return s.action(ctx, "restart") }

func (s *InitService) action(ctx context.Context, verb string) ServiceStatus {
	script := s.findScript()
	if script == "" {
		return ServiceStatus{Detail: "init script not found"}
	}
	res := s.runner.Sh(ctx, fmt.Sprintf("sh %s %s 2>&1 || true", script, verb), 30*time.Second)
	return ServiceStatus{
		Installed: true,
		Running:   s.pidofGuess(ctx, script),
		Version:   s.version(ctx),
		Detail:    strings.TrimSpace(res.Output),
	}
}

// pidofGuess derives the binary name from the script name (strip the SNN
// prefix) and checks for a live process.
func (s *InitService) pidofGuess(ctx context.Context, script string) bool {
	guess := guessBinary(filepath.Base(script))
	if guess == "" {
		return false
	}
	res := s.runner.Sh(ctx, fmt.Sprintf("pidof %s 2>/dev/null || true", guess), 5*time.Second)
	return strings.TrimSpace(res.Output) != ""
}

var initPrefix = regexp.MustCompile(`^S\d+`)

func guessBinary(scriptName string) string {
	return initPrefix.ReplaceAllString(scriptName, "")
}
