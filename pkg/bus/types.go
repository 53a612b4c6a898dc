package bus

// Notification is an admin-facing alert produced by the health monitor or a
// completed background job. The Telegram notifier fans it out to every admin.
type Notification struct {
	Category string   `json:"category"` // disk, cpu, service:<name>, internet, log:<tag>, opkg-updates, job:<key>
	Title    string   `json:"title"`
	Body     string   `json:"body,omitempty"`
	Hint     string   `json:"hint,omitempty"`
	Actions  []Action `json:"actions,omitempty"`
	Recovery bool     `json:"recovery,omitempty"`
}

// Action is an inline-keyboard shortcut attached to a notification.
type Action struct {
	Text string `json:"text"`
	Data string `json:"data"` // callback payload, same codec as menu buttons
}

// Event is a typed observability record flowing to websocket taps:
// monitor samples, job lifecycle, poller state changes.
type Event struct {
	Type   string      `json:"type"`   // e.g. "job.finished", "monitor.alert"
	Source string      `json:"source"` // e.g. "monitor", "jobs", "poller"
	Data   interface{} `json:"data"`
}
