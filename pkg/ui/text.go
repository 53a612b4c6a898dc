package ui

import (
	"fmt"
	"html"
	"strings"
)

// Telegram caps messages at 4096 chars; leave margin for headers/markup.
const pageCharLimit = 3500

func Esc(s string) string  { return html.EscapeString(s) }
func Pre(s string) string  { return "<pre>" + Esc(s) + "</pre>" }
func Bold(s string) string { return "<b>" + Esc(s) + "</b>" }
func Code(s string) string { return "<code>" + Esc(s) + "</code>" }

// TruncLines keeps the first max lines and notes how many were dropped.
func TruncLines(lines []string, max int) []string {
	if max <= 0 || len(lines) <= max {
		return lines
	}
	out := make([]string, 0, max+1)
	out = append(out, lines[:max]...)
	return append(out, fmt.Sprintf("... (%d more)", len(lines)-max))
}

// Tail returns the last n characters, used to show the end of long output.
func Tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Page is one page of a chunked listing.
type Page struct {
	Text  string
	Page  int
	Pages int
}

// ChunkLines splits lines into message-sized pages.
func ChunkLines(lines []string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = pageCharLimit
	}
	var pages []string
	var buf []string
	cur := 0
	for _, line := range lines {
		ln := strings.TrimRight(line, "\n")
		add := len(ln) + 1
		if len(buf) > 0 && cur+add > maxChars {
			pages = append(pages, strings.Join(buf, "\n"))
			buf = []string{ln}
			cur = add
		} else {
			buf = append(buf, ln)
			cur += add
		}
	}
	if len(buf) > 0 {
		pages = append(pages, strings.Join(buf, "\n"))
	}
	if len(pages) == 0 {
		pages = []string{""}
	}
	return pages
}

// PaginateLines returns the requested page (1-based, clamped).
func PaginateLines(lines []string, page int) Page {
	pages := ChunkLines(lines, pageCharLimit)
	total := len(pages)
	p := page
	if p < 1 {
		p = 1
	}
	if p > total {
		p = total
	}
	return Page{Text: pages[p-1], Page: p, Pages: total}
}
