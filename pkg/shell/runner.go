// Package shell executes external commands with timeouts, bounded output
// capture and process-group cleanup. Every router operation (service
// probes, opkg, diagnostics) goes through the Runner.
package shell

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/keenbot/keenbot/pkg/logger"
)

const (
	// ExitTimeout mirrors the shell convention for killed-on-timeout (cf. timeout(1)).
	ExitTimeout = 124
	// ExitSpawnFailure is reported when the process could not be started at all.
	ExitSpawnFailure = 127

	truncationMarker = "\n… output truncated"
	killGrace        = 2 * time.Second
)

// Command describes one invocation. Exactly one of Argv or Script is set:
// Argv runs the program directly, Script runs via /bin/sh -c (BusyBox ash).
type Command struct {
	Argv   []string
	Script string

	// Timeout bounds the whole invocation; zero means the Runner default.
	Timeout time.Duration
	// MaxOutput caps captured combined output; zero means the Runner default.
	MaxOutput int
	// CacheTTL, when positive, allows serving a recent identical invocation
	// from cache. Only cheap read-only probes opt in.
	CacheTTL time.Duration
}

// Result is the outcome of one invocation. Failures are values here, never
// errors escalated to the caller: the runner always returns.
type Result struct {
	Cmd       string
	ExitCode  int
	Output    string
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
	// Err is set only for spawn-level failures (binary missing, permission
	// denied); ExitCode is ExitSpawnFailure in that case.
	Err error
}

// OK reports plain success.
func (r Result) OK() bool { return r.ExitCode == 0 && !r.TimedOut && r.Err == nil }

type cacheEntry struct {
	at  time.Time
	res Result
}

// Runner executes commands with an Entware-aware environment. Safe for
// concurrent use.
type Runner struct {
	defaultTimeout time.Duration
	defaultMax     int
	env            []string

	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time
}

// New creates a Runner. Init scripts on Entware routers often run with a
// minimal PATH, so /opt/bin and /opt/sbin are prepended unconditionally.
func New(defaultTimeout time.Duration, defaultMaxOutput int) *Runner {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	if defaultMaxOutput <= 0 {
		defaultMaxOutput = 64 * 1024
	}
	env := os.Environ()
	path := os.Getenv("PATH")
	if !strings.Contains(":"+path+":", ":/opt/bin:") {
		env = append(env, "PATH=/opt/bin:/opt/sbin:"+path)
	}
	return &Runner{
		defaultTimeout: defaultTimeout,
		defaultMax:     defaultMaxOutput,
		env:            env,
		cache:          make(map[string]cacheEntry),
		now:            time.Now,
	}
}

// Run executes the command and returns within Timeout plus a small grace
// period under all conditions.
func (r *Runner) Run(ctx context.Context, c Command) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	maxOut := c.MaxOutput
	if maxOut <= 0 {
		maxOut = r.defaultMax
	}

	key := cacheKey(c)
	if c.CacheTTL > 0 {
		if res, ok := r.cached(key, c.CacheTTL); ok {
			return res
		}
	}

	argv := c.Argv
	if c.Script != "" {
		argv = []string{"/bin/sh", "-c", c.Script}
	}
	if len(argv) == 0 {
		return Result{ExitCode: ExitSpawnFailure, Err: errors.New("empty command")}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Env = r.env
	// Own process group so a timed-out shell pipeline dies with its children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGrace

	out := &capBuffer{max: maxOut}
	cmd.Stdout = out
	cmd.Stderr = out

	printable := printableCmd(c, argv)
	logger.DebugCF("shell", "run", map[string]interface{}{"cmd": printable, "timeout": timeout.String()})

	start := r.now()
	err := cmd.Run()
	res := Result{
		Cmd:       printable,
		Output:    out.String(),
		Duration:  r.now().Sub(start),
		Truncated: out.truncated,
	}
	if out.truncated {
		res.Output += truncationMarker
	}

	switch {
	case cctx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = ExitTimeout
	case err == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = ExitSpawnFailure
			res.Err = err
		}
	}

	if c.CacheTTL > 0 && !res.TimedOut && res.Err == nil {
		r.store(key, res)
	}
	return res
}

// Sh is shorthand for a Script command.
func (r *Runner) Sh(ctx context.Context, script string, timeout time.Duration) Result {
	return r.Run(ctx, Command{Script: script, Timeout: timeout})
}

// Probe runs a cheap read-only script with a short cache, for status screens
// that refresh on every keyboard tap.
func (r *Runner) Probe(ctx context.Context, script string, timeout, ttl time.Duration) Result {
	return r.Run(ctx, Command{Script: script, Timeout: timeout, CacheTTL: ttl})
}

// Exists reports whether an executable is reachable via PATH.
func (r *Runner) Exists(exe string) bool {
	_, err := exec.LookPath(exe)
	return err == nil
}

func (r *Runner) cached(key string, ttl time.Duration) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[key]
	if !ok || r.now().Sub(e.at) > ttl {
		return Result{}, false
	}
	return e.res, true
}

func (r *Runner) store(key string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cacheEntry{at: r.now(), res: res}
}

func cacheKey(c Command) string {
	if c.Script != "" {
		return "sh\x00" + c.Script
	}
	return strings.Join(c.Argv, "\x00")
}

func printableCmd(c Command, argv []string) string {
	if c.Script != "" {
		return c.Script
	}
	return strings.Join(argv, " ")
}

// capBuffer captures writes up to max bytes and drops the rest, remembering
// that truncation happened. Stdout and stderr share one buffer, so writes
// must be serialized.
type capBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	max       int
	truncated bool
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *capBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
