package ui

import "fmt"

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is rows of buttons, transport-agnostic; the Telegram adapter
// converts it to the wire format.
type Keyboard struct {
	Rows [][]Button
}

func Btn(text, data string) Button        { return Button{Text: text, Data: data} }
func URLBtn(text, url string) Button      { return Button{Text: text, URL: url} }
func Rows(rows ...[]Button) *Keyboard     { return &Keyboard{Rows: rows} }
func Row(buttons ...Button) []Button      { return buttons }

// HomeButton navigates back to the main menu from anywhere.
func HomeButton() Button { return Btn("🏠 Menu", "h|m") }

// BackRow is the standard footer: back to a screen plus home.
func BackRow(backData string) []Button {
	return Row(Btn("◀️ Back", backData), HomeButton())
}

// Confirm renders the two-step confirmation used before destructive actions
// (installs, upgrades, reboot).
func Confirm(doData, cancelData string) *Keyboard {
	return Rows(
		Row(Btn("✅ Confirm", doData), Btn("✖️ Cancel", cancelData)),
	)
}

// PagerRow renders prev/next buttons for a paginated listing. mod|cmd route
// back to the listing handler with the page param set.
func PagerRow(mod, cmd string, page, pages int) []Button {
	row := []Button{}
	if page > 1 {
		row = append(row, Btn("⬅️", FormatCallback(mod, cmd, map[string]string{"page": fmt.Sprint(page - 1)})))
	}
	row = append(row, Btn(fmt.Sprintf("%d/%d", page, pages), "noop"))
	if page < pages {
		row = append(row, Btn("➡️", FormatCallback(mod, cmd, map[string]string{"page": fmt.Sprint(page + 1)})))
	}
	return row
}

// NoticeActions builds the keyboard attached to monitor notifications:
// a primary shortcut plus optional restart/logs actions.
func NoticeActions(primaryData, restartData, logsData string) *Keyboard {
	row := []Button{}
	if primaryData != "" {
		row = append(row, Btn("🔎 Open", primaryData))
	}
	if restartData != "" {
		row = append(row, Btn("🔄 Restart", restartData))
	}
	if logsData != "" {
		row = append(row, Btn("🧾 Logs", logsData))
	}
	if len(row) == 0 {
		return nil
	}
	return Rows(row, Row(HomeButton()))
}
