package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

// Speedtest measures the WAN link. Prefers the speedtest-go package when
// installed; otherwise times a fixed download through curl or wget as a
// rough estimate. Always run through the job registry, a full test takes
// a minute.
type Speedtest struct {
	runner *shell.Runner
}

func NewSpeedtest(runner *shell.Runner) *Speedtest {
	return &Speedtest{runner: runner}
}

// SpeedResult is the parsed outcome of one measurement.
type SpeedResult struct {
	DownMbps float64
	UpMbps   float64
	PingMs   float64
	Server   string
	Rough    bool
	Raw      string
}

func (r SpeedResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "down: %.1f Mbit/s", r.DownMbps)
	if r.UpMbps > 0 {
		fmt.Fprintf(&b, "\nup: %.1f Mbit/s", r.UpMbps)
	}
	if r.PingMs > 0 {
		fmt.Fprintf(&b, "\nping: %.0f ms", r.PingMs)
	}
	if r.Server != "" {
		fmt.Fprintf(&b, "\nserver: %s", r.Server)
	}
	if r.Rough {
		b.WriteString("\n(rough estimate via file download)")
	}
	return b.String()
}

func (s *Speedtest) Run(ctx context.Context) (SpeedResult, error) {
	if s.runner.Exists("speedtest-go") {
		return s.runSpeedtestGo(ctx)
	}
	return s.runRough(ctx)
}

func (s *Speedtest) runSpeedtestGo(ctx context.Context) (SpeedResult, error) {
	res := s.runner.Sh(ctx, "speedtest-go --json 2>/dev/null", 180*time.Second)
	if !res.OK() {
		return SpeedResult{Raw: res.Output}, fmt.Errorf("speedtest-go: rc=%d", res.ExitCode)
	}
	return parseSpeedtestGo(res.Output)
}

// parseSpeedtestGo reads the speedtest-go --json document. Speeds are
// reported in Mbps already.
func parseSpeedtestGo(out string) (SpeedResult, error) {
	// the binary may print log lines before the JSON document
	start := strings.IndexByte(out, '{')
	if start < 0 {
		return SpeedResult{Raw: out}, fmt.Errorf("speedtest-go: no JSON in output")
	}
	var doc struct {
		Servers []struct {
			Name    string  `json:"name"`
			Sponsor string  `json:"sponsor"`
			DLSpeed float64 `json:"dl_speed"`
			ULSpeed float64 `json:"ul_speed"`
			Latency float64 `json:"latency"`
		} `json:"servers"`
	}
	if err := json.Unmarshal([]byte(out[start:]), &doc); err != nil {
		return SpeedResult{Raw: out}, fmt.Errorf("speedtest-go: %w", err)
	}
	if len(doc.Servers) == 0 {
		return SpeedResult{Raw: out}, fmt.Errorf("speedtest-go: no servers in result")
	}
	sv := doc.Servers[0]
	r := SpeedResult{
		DownMbps: sv.DLSpeed,
		UpMbps:   sv.ULSpeed,
		PingMs:   sv.Latency / float64(time.Millisecond),
		Server:   strings.TrimSpace(sv.Sponsor + " " + sv.Name),
		Raw:      out,
	}
	// latency may already be in ms depending on version; normalize absurd values
	if r.PingMs < 0.001 && sv.Latency > 0 {
		r.PingMs = sv.Latency
	}
	return r, nil
}

// runRough times a 10 MB download from a well-connected mirror.
func (s *Speedtest) runRough(ctx context.Context) (SpeedResult, error) {
	const url = "https://speed.cloudflare.com/__down?bytes=10000000"
	var script string
	switch {
	case s.runner.Exists("curl"):
		script = fmt.Sprintf(`curl -s -o /dev/null -w '%%{speed_download}' --max-time 60 '%s'`, url)
	case s.runner.Exists("wget"):
		script = fmt.Sprintf(`start=$(date +%%s); wget -q -O /dev/null '%s'; end=$(date +%%s); echo $((10000000 / (end - start + 1)))`, url)
	default:
		return SpeedResult{}, fmt.Errorf("speedtest: no speedtest-go, curl or wget available")
	}
	res := s.runner.Sh(ctx, script, 90*time.Second)
	if !res.OK() {
		return SpeedResult{Raw: res.Output}, fmt.Errorf("speedtest: download failed rc=%d", res.ExitCode)
	}
	bytesPerSec := parseFloatLoose(res.Output)
	if bytesPerSec <= 0 {
		return SpeedResult{Raw: res.Output}, fmt.Errorf("speedtest: unparseable rate %q", res.Output)
	}
	return SpeedResult{DownMbps: bytesPerSec * 8 / 1e6, Rough: true, Raw: res.Output}, nil
}

func parseFloatLoose(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return v
}
