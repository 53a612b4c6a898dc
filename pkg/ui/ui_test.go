package ui

import (
	"strings"
	"testing"
)

func TestCallbackCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		mod     string
		cmd     string
		params  map[string]string
	}{
		{"module menu", "o|m", "o", "m", map[string]string{}},
		{"bare module", "r", "r", "m", map[string]string{}},
		{"command", "nq|restart", "nq", "restart", map[string]string{}},
		{"params", "o|upgrade|confirm=1", "o", "upgrade", map[string]string{"confirm": "1"}},
		{"multi params", "r|routes|page=2&v=6", "r", "routes", map[string]string{"page": "2", "v": "6"}},
		{"valueless param", "o|search|raw", "o", "search", map[string]string{"raw": ""}},
		{"noop", "noop", "noop", "noop", map[string]string{}},
		{"empty", "", "", "", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, cmd, params := ParseCallback(tt.data)
			if mod != tt.mod || cmd != tt.cmd {
				t.Errorf("ParseCallback(%q) = %q,%q want %q,%q", tt.data, mod, cmd, tt.mod, tt.cmd)
			}
			if len(params) != len(tt.params) {
				t.Fatalf("params = %v, want %v", params, tt.params)
			}
			for k, v := range tt.params {
				if params[k] != v {
					t.Errorf("param %s = %q, want %q", k, params[k], v)
				}
			}
		})
	}
}

func TestFormatCallbackStableOrder(t *testing.T) {
	got := FormatCallback("r", "routes", map[string]string{"v": "6", "page": "2"})
	if got != "r|routes|page=2&v=6" {
		t.Errorf("got %q", got)
	}
	mod, cmd, params := ParseCallback(got)
	if mod != "r" || cmd != "routes" || params["page"] != "2" || params["v"] != "6" {
		t.Errorf("round trip failed: %q %q %v", mod, cmd, params)
	}
}

func TestChunkLinesRespectsLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 100))
	}
	pages := ChunkLines(lines, 1000)
	if len(pages) < 2 {
		t.Fatal("expected multiple pages")
	}
	for i, p := range pages {
		if len(p) > 1000 {
			t.Errorf("page %d len = %d, over limit", i, len(p))
		}
	}
}

func TestPaginateLinesClamps(t *testing.T) {
	lines := []string{"a", "b"}
	p := PaginateLines(lines, 99)
	if p.Page != p.Pages {
		t.Errorf("page clamped to %d of %d", p.Page, p.Pages)
	}
	p = PaginateLines(lines, -1)
	if p.Page != 1 {
		t.Errorf("negative page → %d, want 1", p.Page)
	}
	p = PaginateLines(nil, 1)
	if p.Pages != 1 || p.Text != "" {
		t.Errorf("empty input → %+v", p)
	}
}

func TestEscEscapesHTML(t *testing.T) {
	if got := Esc("<b>&"); got != "&lt;b&gt;&amp;" {
		t.Errorf("got %q", got)
	}
}

func TestPagerRowEdges(t *testing.T) {
	row := PagerRow("r", "routes", 1, 1)
	if len(row) != 1 {
		t.Errorf("single page should render only the counter, got %d buttons", len(row))
	}
	row = PagerRow("r", "routes", 2, 3)
	if len(row) != 3 {
		t.Errorf("middle page should have prev+counter+next, got %d", len(row))
	}
}
