package drivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/keenbot/keenbot/pkg/shell"
)

// Nfqws controls the nfqws2 DPI bypass tool: the init.d service plus its
// config directory and the bundled web UI.
type Nfqws struct {
	*InitService
	runner  *shell.Runner
	webPort int
	confDir string
}

func NewNfqws(runner *shell.Runner, webPort int) *Nfqws {
	return &Nfqws{
		InitService: NewInitService(runner, "nfqws2",
			[]string{`^S\d+nfqws2?$`, `nfqws`},
			[]string{"nfqws2", "nfqws"}),
		runner:  runner,
		webPort: webPort,
		confDir: "/opt/etc/nfqws2",
	}
}

// WebURL builds the web UI link from the router's LAN address. Empty when
// the address could not be determined.
func (n *Nfqws) WebURL(routerIP string) string {
	if routerIP == "" || n.webPort <= 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d/", routerIP, n.webPort)
}

// ConfigFiles lists the .conf and .list files under the config dir.
func (n *Nfqws) ConfigFiles() []string {
	entries, err := os.ReadDir(n.confDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".conf" || ext == ".list" || ext == ".txt" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// ShowConfig returns the contents of one config file. The name must be a
// bare filename from ConfigFiles, not a path.
func (n *Nfqws) ShowConfig(name string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("bad config name: %q", name)
	}
	data, err := os.ReadFile(filepath.Join(n.confDir, name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LogTail returns the last lines of the service log, if any exists.
func (n *Nfqws) LogTail(ctx context.Context, lines int) string {
	for _, p := range []string{"/opt/var/log/nfqws2.log", "/opt/var/log/nfqws.log"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		res := n.runner.Sh(ctx, fmt.Sprintf("tail -n %d %s 2>/dev/null", lines, p), 10*time.Second)
		if res.OK() {
			return res.Output
		}
	}
	return ""
}
