package drivers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLeases(t *testing.T) {
	data := `1767225600 aa:bb:cc:dd:ee:ff 192.168.1.50 laptop 01:aa:bb:cc:dd:ee:ff
1767225700 11:22:33:44:55:66 192.168.1.7 phone *
garbage line
1767225800 AA:00:00:00:00:01 192.168.1.100 * *
`
	clients := parseLeases(data)
	if len(clients) != 3 {
		t.Fatalf("got %d clients, want 3", len(clients))
	}
	// sorted numerically by IP: .7 before .50 before .100
	if clients[0].IP != "192.168.1.7" || clients[1].IP != "192.168.1.50" || clients[2].IP != "192.168.1.100" {
		t.Errorf("bad sort order: %v %v %v", clients[0].IP, clients[1].IP, clients[2].IP)
	}
	if clients[0].Hostname != "phone" {
		t.Errorf("hostname = %q", clients[0].Hostname)
	}
	if clients[2].MAC != "aa:00:00:00:00:01" {
		t.Errorf("MAC should be lowercased, got %q", clients[2].MAC)
	}
	if clients[0].ExpiresAt == "" {
		t.Error("expiry timestamp not parsed")
	}
}

func TestParseLoadAvg(t *testing.T) {
	v, err := parseLoadAvg("1.42 0.80 0.51 2/158 30921\n")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1.42 {
		t.Errorf("got %v, want 1.42", v)
	}
	if _, err := parseLoadAvg(""); err == nil {
		t.Error("empty input should fail")
	}
}

func TestParseDfFreeKB(t *testing.T) {
	out := "/dev/sda1  15097800  2048000  12285704  14% /opt"
	mb, err := parseDfFreeKB(out)
	if err != nil {
		t.Fatal(err)
	}
	if mb != 12285704/1024 {
		t.Errorf("got %d MB", mb)
	}
	if _, err := parseDfFreeKB("no numbers here"); err == nil {
		t.Error("garbage should fail")
	}
}

func TestReadMeminfo(t *testing.T) {
	p := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:  262144 kB\nMemFree:  32768 kB\nMemAvailable:  65536 kB\nBuffers: 100 kB\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	total, avail, err := readMeminfo(p)
	if err != nil {
		t.Fatal(err)
	}
	if total != 262144 || avail != 65536 {
		t.Errorf("got total=%d avail=%d", total, avail)
	}
}

func TestReadMeminfoFallsBackToMemFree(t *testing.T) {
	p := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(p, []byte("MemTotal: 131072 kB\nMemFree: 8192 kB\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, avail, err := readMeminfo(p)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 8192 {
		t.Errorf("avail = %d, want MemFree fallback 8192", avail)
	}
}

func TestGuessBinary(t *testing.T) {
	tests := []struct{ script, want string }{
		{"S51nfqws2", "nfqws2"},
		{"S99hrneo", "hrneo"},
		{"rc.unslung", "rc.unslung"},
		{"S10", ""},
	}
	for _, tt := range tests {
		if got := guessBinary(tt.script); got != tt.want {
			t.Errorf("guessBinary(%q) = %q, want %q", tt.script, got, tt.want)
		}
	}
}

func TestValidPkgName(t *testing.T) {
	good := []string{"nfqws2", "wget-ssl", "lib_foo", "python3.11", "a+b"}
	for _, s := range good {
		if !validPkgName(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	bad := []string{"", "a b", "pkg;rm -rf /", "$(reboot)", "a|b", "name\nother"}
	for _, s := range bad {
		if validPkgName(s) {
			t.Errorf("%q should be rejected", s)
		}
	}
}

func TestNeedsWgetSSL(t *testing.T) {
	if !needsWgetSSL("wget: SSL support not available") {
		t.Error("ssl failure should trigger retry")
	}
	if !needsWgetSSL("Failed to download https://bin.entware.net/... wget returned 1") {
		t.Error("download failure mentioning wget should trigger retry")
	}
	if needsWgetSSL("Signature check failed") {
		t.Error("unrelated failure must not trigger retry")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var tunnels []AwgTunnel
	ok := `{"success":true,"data":[{"name":"wg0","active":true,"rx_bytes":100}]}`
	if err := decodeEnvelope([]byte(ok), &tunnels); err != nil {
		t.Fatal(err)
	}
	if len(tunnels) != 1 || tunnels[0].Name != "wg0" || !tunnels[0].Active {
		t.Errorf("bad decode: %+v", tunnels)
	}

	errBody := `{"error":"not_found","message":"tunnel wg9 does not exist"}`
	err := decodeEnvelope([]byte(errBody), nil)
	if err == nil || err.Error() != "awg: tunnel wg9 does not exist" {
		t.Errorf("error envelope → %v", err)
	}

	if err := decodeEnvelope([]byte(`{"success":true}`), nil); err != nil {
		t.Errorf("empty data with nil out should pass, got %v", err)
	}
	if err := decodeEnvelope([]byte("not json"), nil); err == nil {
		t.Error("garbage must fail")
	}
}

func TestParseSpeedtestGo(t *testing.T) {
	out := `some log line
{"servers":[{"name":"Amsterdam","sponsor":"ACME","dl_speed":94.2,"ul_speed":38.7,"latency":12500000}]}`
	r, err := parseSpeedtestGo(out)
	if err != nil {
		t.Fatal(err)
	}
	if r.DownMbps != 94.2 || r.UpMbps != 38.7 {
		t.Errorf("speeds: %+v", r)
	}
	if r.Server != "ACME Amsterdam" {
		t.Errorf("server = %q", r.Server)
	}
	if _, err := parseSpeedtestGo("no json at all"); err == nil {
		t.Error("missing JSON must fail")
	}
	if _, err := parseSpeedtestGo(`{"servers":[]}`); err == nil {
		t.Error("empty server list must fail")
	}
}

func TestFindScriptPicksPatternOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"S51nfqws2", "S99other", "readme"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	s := NewInitService(nil, "nfqws2", []string{`^S\d+nfqws2?$`, `nfqws`}, nil)
	s.initDir = dir
	got := s.findScript()
	if filepath.Base(got) != "S51nfqws2" {
		t.Errorf("findScript = %q", got)
	}

	s2 := NewInitService(nil, "missing", []string{`^S\d+missing$`}, nil)
	s2.initDir = dir
	if s2.findScript() != "" {
		t.Error("no match should return empty")
	}
}

func TestMagiTrickleShadowedByHydra(t *testing.T) {
	writeScript := func(dir, name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	hydra := &Hydra{InitService: NewInitService(nil, "hydraroute", []string{`^S\d+hrneo$`}, nil)}
	hdir := t.TempDir()
	writeScript(hdir, "S99hrneo")
	hydra.initDir = hdir

	magi := NewMagiTrickle(nil, hydra)
	mdir := t.TempDir()
	writeScript(mdir, "S99magitrickle")
	magi.initDir = mdir

	ctx := context.Background()
	if magi.Available(ctx) {
		t.Error("available while HydraRoute is installed")
	}
	if st := magi.Status(ctx); st.Installed {
		t.Errorf("status reports installed while shadowed: %+v", st)
	}

	// with HydraRoute gone the service is visible again
	hydra.initDir = t.TempDir()
	if !magi.Available(ctx) {
		t.Error("not available without HydraRoute")
	}
}
