// Package monitor runs the background health checks: disk, CPU load,
// service liveness, internet reachability, log errors and pending opkg
// upgrades. Findings go out as bus notifications; repeats are throttled by
// the per-category cooldown gate.
package monitor

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/keenbot/keenbot/pkg/bus"
	"github.com/keenbot/keenbot/pkg/config"
	"github.com/keenbot/keenbot/pkg/drivers"
	"github.com/keenbot/keenbot/pkg/logger"
)

// Announcer persists which upgrade set was already reported, so a restart
// does not repeat the same "updates available" message.
type Announcer interface {
	Announced(ctx context.Context, category, fingerprint string) (bool, error)
	MarkAnnounced(ctx context.Context, category, fingerprint string) error
}

// Snapshot is the cached health view served to /status without re-probing.
type Snapshot struct {
	CheckedAt  time.Time                        `json:"checked_at"`
	DiskFreeMB int                              `json:"disk_free_mb"`
	Load1      float64                          `json:"load1"`
	Services   map[string]drivers.ServiceStatus `json:"services"`
	InternetOK bool                             `json:"internet_ok"`
	Upgradable int                              `json:"upgradable"`
	Alerts     []string                         `json:"alerts,omitempty"`
}

type Monitor struct {
	cfg      *config.Config
	router   *drivers.Router
	services []drivers.Service
	opkg     *drivers.Opkg
	bus      *bus.Bus
	ann      Announcer

	gate    *Gate
	scanner *LogScanner
	cron    *gronx.Gronx
	now     func() time.Time

	lastInternet time.Time
	lastCronTick time.Time

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg *config.Config, router *drivers.Router, services []drivers.Service, opkg *drivers.Opkg, b *bus.Bus, ann Announcer) *Monitor {
	return &Monitor{
		cfg:      cfg,
		router:   router,
		services: services,
		opkg:     opkg,
		bus:      b,
		ann:      ann,
		gate:     NewGate(cfg.Notify.CooldownFor),
		scanner:  NewLogScanner(),
		cron:     gronx.New(),
		now:      time.Now,
	}
}

// Snapshot returns the last completed probe round.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Notify.Enabled {
		logger.InfoC("monitor", "notifications disabled, monitor idle")
		<-ctx.Done()
		return
	}
	var paths []string
	for _, lw := range m.cfg.Notify.LogFiles {
		paths = append(paths, lw.Path)
	}
	m.scanner.Prime(paths)

	interval := time.Duration(m.cfg.Notify.MonitorIntervalSec) * time.Second
	logger.InfoCF("monitor", "started", map[string]interface{}{
		"interval": interval.String(),
	})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.now()
	snap := Snapshot{
		CheckedAt:  now,
		Services:   make(map[string]drivers.ServiceStatus),
		InternetOK: true,
	}

	if m.cfg.Notify.Disk {
		m.checkDisk(ctx, now, &snap)
	}
	if m.cfg.Notify.CPU {
		m.checkCPU(now, &snap)
	}
	if m.cfg.Notify.Services {
		m.checkServices(ctx, now, &snap)
	}
	if m.cfg.Notify.Internet {
		m.checkInternet(ctx, now, &snap)
	}
	if m.cfg.Notify.LogErrors {
		m.checkLogs(now)
	}
	if m.cfg.Notify.Updates {
		m.checkUpdates(ctx, now, &snap)
	}

	m.mu.Lock()
	// carry forward values a skipped check left at zero
	if snap.Upgradable == 0 {
		snap.Upgradable = m.snap.Upgradable
	}
	m.snap = snap
	m.mu.Unlock()
}

func (m *Monitor) checkDisk(ctx context.Context, now time.Time, snap *Snapshot) {
	free, err := m.router.DiskFreeMB(ctx, "/opt")
	if err != nil {
		logger.WarnCF("monitor", "disk probe failed", map[string]interface{}{"error": err.Error()})
		return
	}
	snap.DiskFreeMB = free
	if free < m.cfg.Notify.DiskFreeMBThreshold {
		snap.Alerts = append(snap.Alerts, "disk")
		m.alert("disk", now, bus.Notification{
			Category: "disk",
			Title:    "Low disk space on /opt",
			Body:     fmt.Sprintf("%d MB free, threshold %d MB", free, m.cfg.Notify.DiskFreeMBThreshold),
			Actions: []bus.Action{
				{Text: "📊 Storage", Data: "st|m"},
				{Text: "🧹 Cleanup", Data: "st|cleanup"},
			},
		})
	} else if m.gate.Clear("disk") {
		m.recover("disk", fmt.Sprintf("Disk space recovered: %d MB free on /opt", free))
	}
}

func (m *Monitor) checkCPU(now time.Time, snap *Snapshot) {
	load, err := m.router.LoadAvg()
	if err != nil {
		return
	}
	snap.Load1 = load
	if load > m.cfg.Notify.CPULoadThreshold {
		snap.Alerts = append(snap.Alerts, "cpu")
		m.alert("cpu", now, bus.Notification{
			Category: "cpu",
			Title:    "High CPU load",
			Body:     fmt.Sprintf("load1 %.2f, threshold %.2f", load, m.cfg.Notify.CPULoadThreshold),
		})
	} else if m.gate.Clear("cpu") {
		m.recover("cpu", fmt.Sprintf("CPU load back to normal: %.2f", load))
	}
}

func (m *Monitor) checkServices(ctx context.Context, now time.Time, snap *Snapshot) {
	for _, svc := range m.services {
		st := svc.Status(ctx)
		snap.Services[svc.Name()] = st
		category := "service:" + svc.Name()
		if st.Installed && !st.Running {
			snap.Alerts = append(snap.Alerts, category)
			m.alert(category, now, bus.Notification{
				Category: category,
				Title:    fmt.Sprintf("Service %s is down", svc.Name()),
				Body:     strings.TrimSpace(st.Detail),
				Actions: []bus.Action{
					{Text: "▶️ Start", Data: callbackFor(svc.Name(), "start")},
					{Text: "🔄 Restart", Data: callbackFor(svc.Name(), "restart")},
				},
			})
		} else if st.Running && m.gate.Clear(category) {
			m.recover(category, fmt.Sprintf("Service %s is running again", svc.Name()))
		}
	}
}

// callbackFor maps a service name to its menu module's action callback.
func callbackFor(service, verb string) string {
	switch service {
	case "nfqws2":
		return "nq|" + verb
	case "hydraroute":
		return "hy|" + verb
	case "magitrickle":
		return "mt|" + verb
	default:
		return "noop"
	}
}

func (m *Monitor) checkInternet(ctx context.Context, now time.Time, snap *Snapshot) {
	interval := time.Duration(m.cfg.Notify.InternetCheckIntervalSec) * time.Second
	if !m.lastInternet.IsZero() && now.Sub(m.lastInternet) < interval {
		snap.InternetOK = !m.gate.Alerted("internet")
		return
	}
	m.lastInternet = now
	ok, detail := m.router.InternetCheck(ctx)
	snap.InternetOK = ok
	if !ok {
		snap.Alerts = append(snap.Alerts, "internet")
		m.alert("internet", now, bus.Notification{
			Category: "internet",
			Title:    "Internet unreachable",
			Body:     strings.TrimSpace(detail),
			Hint:     "ICMP and DNS probes both failed",
		})
	} else if m.gate.Clear("internet") {
		m.recover("internet", "Internet connectivity restored")
	}
}

func (m *Monitor) checkLogs(now time.Time) {
	for _, lw := range m.cfg.Notify.LogFiles {
		hits, err := m.scanner.Scan(lw.Path)
		if err != nil {
			logger.WarnCF("monitor", "log scan failed", map[string]interface{}{
				"path": lw.Path, "error": err.Error(),
			})
			continue
		}
		if len(hits) == 0 {
			continue
		}
		category := "log:" + lw.Tag
		m.alert(category, now, bus.Notification{
			Category: category,
			Title:    fmt.Sprintf("Errors in %s log", lw.Tag),
			Body:     strings.Join(hits, "\n"),
			Hint:     lw.Path,
		})
	}
}

func (m *Monitor) checkUpdates(ctx context.Context, now time.Time, snap *Snapshot) {
	// evaluate the cron expression at most once per minute
	minute := now.Truncate(time.Minute)
	if minute.Equal(m.lastCronTick) {
		return
	}
	m.lastCronTick = minute
	due, err := m.cron.IsDue(m.cfg.Notify.OpkgCheckCron, minute)
	if err != nil {
		logger.WarnCF("monitor", "bad opkg check cron", map[string]interface{}{
			"cron": m.cfg.Notify.OpkgCheckCron, "error": err.Error(),
		})
		return
	}
	if !due {
		return
	}
	if res := m.opkg.Update(ctx); !res.OK() {
		logger.WarnCF("monitor", "opkg update failed", map[string]interface{}{"rc": res.ExitCode})
		return
	}
	lines, res := m.opkg.ListUpgradable(ctx)
	if !res.OK() {
		return
	}
	snap.Upgradable = len(lines)
	if len(lines) == 0 {
		m.gate.Clear("opkg-updates")
		return
	}
	if m.ann != nil {
		fp := fingerprint(lines)
		if seen, err := m.ann.Announced(ctx, "opkg-updates", fp); err == nil && seen {
			return
		}
		if err := m.ann.MarkAnnounced(ctx, "opkg-updates", fp); err != nil {
			logger.WarnCF("monitor", "mark announced failed", map[string]interface{}{"error": err.Error()})
		}
	}
	body := strings.Join(lines, "\n")
	if len(lines) > 15 {
		body = strings.Join(lines[:15], "\n") + fmt.Sprintf("\n... and %d more", len(lines)-15)
	}
	m.alert("opkg-updates", now, bus.Notification{
		Category: "opkg-updates",
		Title:    fmt.Sprintf("%d package updates available", len(lines)),
		Body:     body,
		Actions: []bus.Action{
			{Text: "⬆️ Upgrade all", Data: "o|upgrade"},
			{Text: "📋 Details", Data: "o|upgradable"},
		},
	})
}

func (m *Monitor) alert(category string, now time.Time, n bus.Notification) {
	if !m.gate.Fire(category, now) {
		return
	}
	logger.InfoCF("monitor", "alert", map[string]interface{}{
		"category": category, "title": n.Title,
	})
	m.bus.PublishNotification(n)
}

func (m *Monitor) recover(category, msg string) {
	logger.InfoCF("monitor", "recovered", map[string]interface{}{"category": category})
	m.bus.PublishNotification(bus.Notification{
		Category: category,
		Title:    msg,
		Recovery: true,
	})
}

// fingerprint hashes the sorted upgradable list so the same pending set is
// announced only once across restarts.
func fingerprint(lines []string) string {
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	h := sha1.Sum([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("%x", h)
}
