package bot

import (
	"fmt"
	"time"

	"github.com/keenbot/keenbot/pkg/jobs"
	"github.com/keenbot/keenbot/pkg/shell"
	"github.com/keenbot/keenbot/pkg/ui"
)

const timeRound = 100 * time.Millisecond

// formatResult renders a command outcome for chat: verdict line plus the
// captured output in a code block.
func formatResult(title string, res shell.Result) string {
	var verdict string
	switch {
	case res.TimedOut:
		verdict = fmt.Sprintf("⏱ timed out after %s", res.Duration.Round(timeRound))
	case res.Err != nil:
		verdict = "❌ could not start: " + res.Err.Error()
	case res.ExitCode != 0:
		verdict = fmt.Sprintf("❌ failed, rc=%d", res.ExitCode)
	default:
		verdict = fmt.Sprintf("✅ done in %s", res.Duration.Round(timeRound))
	}
	out := ui.Bold(title) + "\n" + ui.Esc(verdict)
	if res.Output != "" {
		out += "\n" + ui.Pre(ui.Tail(res.Output, 3000))
	}
	return out
}

func formatJobLine(j jobs.Job) string {
	line := fmt.Sprintf("%s %s", statusIcon(string(j.Status)), ui.Esc(j.Key))
	if j.Done() {
		line += fmt.Sprintf(" · rc=%d · %s", j.Result.ExitCode, j.Result.Duration.Round(timeRound))
	} else {
		line += " · running since " + j.StartedAt.Local().Format("15:04:05")
	}
	return line
}

func statusIcon(status string) string {
	switch status {
	case string(jobs.StatusRunning):
		return "⏳"
	case string(jobs.StatusSucceeded):
		return "✅"
	case string(jobs.StatusTimedOut):
		return "⏱"
	default:
		return "❌"
	}
}
