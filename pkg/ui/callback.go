// Package ui holds the chat-facing presentation layer: inline keyboards, the
// callback payload codec and pagination helpers. Pure formatting, no
// Telegram client types and no subprocess calls.
package ui

import (
	"sort"
	"strings"
)

// Callback payloads use the compact "mod|cmd|k=v&k2=v2" form to fit
// Telegram's 64-byte callback_data limit.

// ParseCallback splits a callback payload into module, command and params.
// A missing command defaults to "m" (the module's menu screen).
func ParseCallback(data string) (mod, cmd string, params map[string]string) {
	params = map[string]string{}
	if data == "" {
		return "", "", params
	}
	if data == "noop" {
		return "noop", "noop", params
	}
	parts := strings.SplitN(data, "|", 3)
	mod = parts[0]
	cmd = "m"
	if len(parts) > 1 && parts[1] != "" {
		cmd = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		for _, seg := range strings.Split(parts[2], "&") {
			if seg == "" {
				continue
			}
			if k, v, ok := strings.Cut(seg, "="); ok {
				params[k] = v
			} else {
				params[seg] = ""
			}
		}
	}
	return mod, cmd, params
}

// FormatCallback is the inverse of ParseCallback. Params are emitted in
// sorted key order so payloads are stable.
func FormatCallback(mod, cmd string, params map[string]string) string {
	if len(params) == 0 {
		if cmd == "" || cmd == "m" {
			return mod + "|m"
		}
		return mod + "|" + cmd
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	segs := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := params[k]; v != "" {
			segs = append(segs, k+"="+v)
		} else {
			segs = append(segs, k)
		}
	}
	if cmd == "" {
		cmd = "m"
	}
	return mod + "|" + cmd + "|" + strings.Join(segs, "&")
}
