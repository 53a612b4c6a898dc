package shell

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesExitCodeAndOutput(t *testing.T) {
	r := New(5*time.Second, 64*1024)

	tests := []struct {
		name     string
		cmd      Command
		wantCode int
		wantOut  string
	}{
		{
			name:     "argv success",
			cmd:      Command{Argv: []string{"echo", "hello"}},
			wantCode: 0,
			wantOut:  "hello",
		},
		{
			name:     "script non-zero exit",
			cmd:      Command{Script: "echo oops; exit 3"},
			wantCode: 3,
			wantOut:  "oops",
		},
		{
			name:     "stderr captured",
			cmd:      Command{Script: "echo err 1>&2"},
			wantCode: 0,
			wantOut:  "err",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Run(context.Background(), tt.cmd)
			if res.ExitCode != tt.wantCode {
				t.Errorf("exit code = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if !strings.Contains(res.Output, tt.wantOut) {
				t.Errorf("output %q does not contain %q", res.Output, tt.wantOut)
			}
			if res.TimedOut {
				t.Error("unexpected timeout")
			}
		})
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	r := New(5*time.Second, 64*1024)

	start := time.Now()
	res := r.Run(context.Background(), Command{
		Script:  "echo before; sleep 9999; echo after",
		Timeout: 1 * time.Second,
	})
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if res.ExitCode != ExitTimeout {
		t.Errorf("exit code = %d, want %d", res.ExitCode, ExitTimeout)
	}
	// timeout + kill grace, with slack for slow CI
	if elapsed > 5*time.Second {
		t.Errorf("returned after %v, want bounded by timeout+grace", elapsed)
	}
	if !strings.Contains(res.Output, "before") {
		t.Errorf("partial output lost: %q", res.Output)
	}
	if strings.Contains(res.Output, "after") {
		t.Errorf("process survived the timeout: %q", res.Output)
	}
}

func TestRunSpawnFailureIsAValue(t *testing.T) {
	r := New(5*time.Second, 64*1024)
	res := r.Run(context.Background(), Command{Argv: []string{"/nonexistent/binary-xyz"}})
	if res.Err == nil {
		t.Fatal("expected spawn error in Result.Err")
	}
	if res.ExitCode != ExitSpawnFailure {
		t.Errorf("exit code = %d, want %d", res.ExitCode, ExitSpawnFailure)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	r := New(5*time.Second, 64*1024)
	res := r.Run(context.Background(), Command{
		Script:    "yes x | head -c 10000",
		MaxOutput: 512,
	})
	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if len(res.Output) > 512+len(truncationMarker) {
		t.Errorf("output len = %d, want <= %d", len(res.Output), 512+len(truncationMarker))
	}
	if !strings.Contains(res.Output, "truncated") {
		t.Error("missing truncation marker")
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := New(time.Second, 1024)
	res := r.Run(context.Background(), Command{})
	if res.Err == nil || res.ExitCode != ExitSpawnFailure {
		t.Errorf("empty command: got %+v, want spawn failure", res)
	}
}

func TestProbeCacheServesRecentResult(t *testing.T) {
	r := New(5*time.Second, 64*1024)
	now := time.Now()
	r.now = func() time.Time { return now }

	res1 := r.Run(context.Background(), Command{Script: "date +%N", CacheTTL: 3 * time.Second})
	res2 := r.Run(context.Background(), Command{Script: "date +%N", CacheTTL: 3 * time.Second})
	if res1.Output != res2.Output {
		t.Error("expected cached result within TTL")
	}

	now = now.Add(5 * time.Second)
	res3 := r.Run(context.Background(), Command{Script: "date +%N", CacheTTL: 3 * time.Second})
	if res3.Output == res1.Output {
		t.Error("expected cache miss after TTL")
	}
}
