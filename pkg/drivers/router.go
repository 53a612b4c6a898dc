package drivers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

// DhcpClient is one dnsmasq lease entry.
type DhcpClient struct {
	MAC       string `json:"mac"`
	IP        string `json:"ip"`
	Hostname  string `json:"hostname"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Router exposes read-mostly system probes: info, routes, firewall, leases,
// resource levels and the outbound reachability check used by the monitor.
type Router struct {
	runner *shell.Runner
}

func NewRouter(runner *shell.Runner) *Router {
	return &Router{runner: runner}
}

// SystemInfo assembles the /status screen: kernel, uptime, memory, /opt
// disk, firmware (ndmc on Keenetic) and opkg architectures. Best effort;
// missing probes are simply omitted.
func (r *Router) SystemInfo(ctx context.Context) string {
	var lines []string
	if out := r.probe(ctx, "uname -a", 10); out != "" {
		lines = append(lines, "uname: "+out)
	}
	if out := r.probe(ctx, "uptime 2>/dev/null", 5); out != "" {
		lines = append(lines, out)
	}
	if total, avail, err := readMeminfo("/proc/meminfo"); err == nil && total > 0 {
		lines = append(lines, fmt.Sprintf("RAM: %d MB free / %d MB total", avail/1024, total/1024))
	}
	if out := r.probe(ctx, "df -h /opt 2>/dev/null | tail -n +2", 10); out != "" {
		lines = append(lines, "/opt: "+out)
	}
	if r.runner.Exists("ndmc") {
		if out := r.probe(ctx, "ndmc -c 'show version' 2>/dev/null | head -n 5", 30); out != "" {
			lines = append(lines, "firmware:")
			for _, l := range strings.Split(out, "\n") {
				lines = append(lines, "  "+l)
			}
		}
	}
	if out := r.probe(ctx, "opkg print-architecture 2>/dev/null | head -n 5", 30); out != "" {
		lines = append(lines, "opkg architectures:")
		for _, l := range strings.Split(out, "\n") {
			lines = append(lines, "  "+l)
		}
	}
	if len(lines) == 0 {
		return "N/A"
	}
	return strings.Join(lines, "\n")
}

// Routes returns the IPv4 and IPv6 routing tables.
func (r *Router) Routes(ctx context.Context) (v4, v6 []string) {
	if out := r.probe(ctx, "ip -4 route 2>/dev/null || true", 3); out != "" {
		v4 = strings.Split(out, "\n")
	}
	if out := r.probe(ctx, "ip -6 route 2>/dev/null || true", 3); out != "" {
		v6 = strings.Split(out, "\n")
	}
	return v4, v6
}

// FirewallRules dumps iptables/ip6tables in -S form.
func (r *Router) FirewallRules(ctx context.Context) (v4, v6 []string) {
	if out := r.probe(ctx, "iptables -S 2>/dev/null || true", 3); out != "" {
		v4 = strings.Split(out, "\n")
	}
	if out := r.probe(ctx, "ip6tables -S 2>/dev/null || true", 3); out != "" {
		v6 = strings.Split(out, "\n")
	}
	return v4, v6
}

var leaseCandidates = []string{
	"/tmp/dhcp.leases",
	"/tmp/dnsmasq.leases",
	"/var/lib/misc/dnsmasq.leases",
	"/tmp/var/lib/misc/dnsmasq.leases",
	"/opt/var/lib/misc/dnsmasq.leases",
}

// DhcpClients parses the dnsmasq leases file, sorted by IP.
func (r *Router) DhcpClients(ctx context.Context) []DhcpClient {
	for _, p := range leaseCandidates {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return parseLeases(string(data))
	}
	return nil
}

// parseLeases handles the dnsmasq format: <expiry> <mac> <ip> <hostname> <clientid>.
func parseLeases(data string) []DhcpClient {
	var clients []DhcpClient
	for _, ln := range strings.Split(data, "\n") {
		fields := strings.Fields(strings.TrimSpace(ln))
		if len(fields) < 4 {
			continue
		}
		c := DhcpClient{
			MAC:      strings.ToLower(fields[1]),
			IP:       fields[2],
			Hostname: fields[3],
		}
		if ts, err := strconv.ParseInt(fields[0], 10, 64); err == nil && ts > 0 {
			c.ExpiresAt = time.Unix(ts, 0).UTC().Format(time.RFC3339)
		}
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return ipKey(clients[i].IP) < ipKey(clients[j].IP)
	})
	return clients
}

func ipKey(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	var b strings.Builder
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ip
		}
		fmt.Fprintf(&b, "%03d.", n)
	}
	return b.String()
}

// LoadAvg returns the 1-minute load average.
func (r *Router) LoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	return parseLoadAvg(string(data))
}

func parseLoadAvg(data string) (float64, error) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty /proc/loadavg")
	}
	return strconv.ParseFloat(fields[0], 64)
}

// DiskFreeMB reports free megabytes on the given mount via busybox df -k.
func (r *Router) DiskFreeMB(ctx context.Context, mount string) (int, error) {
	res := r.runner.Sh(ctx, fmt.Sprintf("df -k %s 2>/dev/null | tail -n +2", mount), 10*time.Second)
	if !res.OK() {
		return 0, fmt.Errorf("df %s: rc=%d %s", mount, res.ExitCode, res.Output)
	}
	return parseDfFreeKB(res.Output)
}

// parseDfFreeKB extracts the "Available" column (4th) of df -k output.
func parseDfFreeKB(out string) (int, error) {
	for _, ln := range strings.Split(out, "\n") {
		fields := strings.Fields(ln)
		if len(fields) < 4 {
			continue
		}
		kb, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		return kb / 1024, nil
	}
	return 0, fmt.Errorf("unparseable df output: %q", out)
}

// InternetCheck probes outbound reachability: ICMP first, DNS as backup.
// Returns ok plus the raw probe output for the notification body.
func (r *Router) InternetCheck(ctx context.Context) (bool, string) {
	ping := r.runner.Sh(ctx, "ping -c 1 -W 3 1.1.1.1 2>&1 || ping -c 1 -W 3 8.8.8.8 2>&1", 10*time.Second)
	if ping.OK() {
		return true, ping.Output
	}
	dns := r.runner.Sh(ctx, "nslookup api.telegram.org 2>&1", 8*time.Second)
	return dns.OK(), ping.Output + "\n" + dns.Output
}

// Reboot asks the firmware first (clean shutdown of router services), then
// falls back to a plain reboot.
func (r *Router) Reboot(ctx context.Context) shell.Result {
	if r.runner.Exists("ndmc") {
		return r.runner.Sh(ctx, "ndmc -c 'system reboot' 2>/dev/null", 5*time.Second)
	}
	return r.runner.Sh(ctx, "reboot", 5*time.Second)
}

// OptStatus is the /opt storage screen: df plus the mount line.
func (r *Router) OptStatus(ctx context.Context) string {
	var parts []string
	if out := r.probe(ctx, "df -h /opt 2>/dev/null", 5); out != "" {
		parts = append(parts, out)
	}
	if out := r.probe(ctx, "mount 2>/dev/null", 5); out != "" {
		for _, ln := range strings.Split(out, "\n") {
			if strings.Contains(ln, " on /opt ") {
				parts = append(parts, "", "mount:", strings.TrimSpace(ln))
				break
			}
		}
	}
	return strings.Join(parts, "\n")
}

// OptTop lists the biggest directories under /opt. BusyBox du uses -d,
// coreutils uses --max-depth; try both.
func (r *Router) OptTop(ctx context.Context, depth, n int) string {
	cmds := []string{
		fmt.Sprintf("du -k -d %d /opt 2>/dev/null | sort -nr | head -n %d", depth, n),
		fmt.Sprintf("du -k --max-depth %d /opt 2>/dev/null | sort -nr | head -n %d", depth, n),
	}
	for _, cmd := range cmds {
		res := r.runner.Sh(ctx, cmd, 60*time.Second)
		if res.OK() && res.Output != "" {
			return res.Output
		}
	}
	return "du/sort/head failed"
}

// Cleanup truncates known log files and clears opkg lists. Best effort;
// returns a line per action.
func (r *Router) Cleanup(ctx context.Context, logPaths []string) string {
	var actions []string
	for _, p := range logPaths {
		res := r.runner.Sh(ctx, fmt.Sprintf(": > %s 2>/dev/null || true", p), 10*time.Second)
		if res.OK() {
			actions = append(actions, "truncated: "+p)
		} else {
			actions = append(actions, "truncate failed: "+p)
		}
	}
	r.runner.Sh(ctx, "rm -f /opt/var/opkg-lists/* 2>/dev/null || true", 15*time.Second)
	actions = append(actions, "cleared: /opt/var/opkg-lists/*")
	return strings.Join(actions, "\n")
}

// GuessIPv4 returns the first non-loopback IPv4 on any interface, used to
// build web UI links for the components.
func (r *Router) GuessIPv4(ctx context.Context) string {
	out := r.probe(ctx, "ip -4 addr show 2>/dev/null || true", 5)
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimSpace(ln)
		if !strings.HasPrefix(ln, "inet ") {
			continue
		}
		fields := strings.Fields(ln)
		if len(fields) < 2 {
			continue
		}
		ip, _, _ := strings.Cut(fields[1], "/")
		if ip == "" || strings.HasPrefix(ip, "127.") {
			continue
		}
		return ip
	}
	return ""
}

func (r *Router) probe(ctx context.Context, script string, ttlSec int) string {
	res := r.runner.Probe(ctx, script, 6*time.Second, time.Duration(ttlSec)*time.Second)
	return strings.TrimSpace(res.Output)
}
