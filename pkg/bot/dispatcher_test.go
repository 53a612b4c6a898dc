package bot

import (
	"context"
	"testing"
	"time"

	"github.com/keenbot/keenbot/pkg/config"
	"github.com/keenbot/keenbot/pkg/telegram"
	"github.com/keenbot/keenbot/pkg/ui"
)

type spyTransport struct {
	sent     []telegram.Message
	edited   []telegram.Message
	answered []string
}

func (s *spyTransport) Poll(context.Context, int64, time.Duration) ([]telegram.Event, error) {
	return nil, nil
}

func (s *spyTransport) Send(_ context.Context, m telegram.Message) (int, error) {
	s.sent = append(s.sent, m)
	return len(s.sent), nil
}

func (s *spyTransport) Edit(_ context.Context, _ int, m telegram.Message) error {
	s.edited = append(s.edited, m)
	return nil
}

func (s *spyTransport) AnswerCallback(_ context.Context, _ string, text string) error {
	s.answered = append(s.answered, text)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Token = "test-token"
	cfg.Admins = []int64{42}
	cfg.AllowedChats = []int64{-1001}
	return cfg
}

func testDispatcher(tr telegram.Transport) *Dispatcher {
	return NewDispatcher(tr, Deps{Cfg: testConfig()})
}

func TestDispatcherRejectsNonAdmin(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	called := false
	d.commands["/status"] = func(context.Context, *Request) Screen {
		called = true
		return Screen{Text: "leaked"}
	}

	d.Handle(context.Background(), telegram.Event{ChatID: 7, UserID: 7, Text: "/status"})
	if called {
		t.Fatal("handler ran for non-admin")
	}
	// a fixed denial and nothing else: no handler output, no keyboard
	if len(tr.sent) != 1 || tr.sent[0].Text != "Not authorized." {
		t.Fatalf("non-admin replies: %v", tr.sent)
	}
	if tr.sent[0].ChatID != 7 || tr.sent[0].Keyboard != nil {
		t.Errorf("denial leaked extra content: %+v", tr.sent[0])
	}

	// callback from a non-admin still gets the spinner cleared
	d.Handle(context.Background(), telegram.Event{
		ChatID: 7, UserID: 7,
		Callback: &telegram.CallbackRef{ID: "cb1", Data: "r|status"},
	})
	if len(tr.answered) != 1 || tr.answered[0] != "Not authorized" {
		t.Errorf("callback answers: %v", tr.answered)
	}
}

func TestDispatcherGroupChatNeedsAllowList(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	var chats []int64
	d.commands["/status"] = func(_ context.Context, req *Request) Screen {
		chats = append(chats, req.Ev.ChatID)
		return Screen{}
	}

	// admin in a random group: dropped
	d.Handle(context.Background(), telegram.Event{ChatID: -555, UserID: 42, Text: "/status"})
	// admin in the allow-listed group: handled
	d.Handle(context.Background(), telegram.Event{ChatID: -1001, UserID: 42, Text: "/status"})
	// admin in direct chat: handled
	d.Handle(context.Background(), telegram.Event{ChatID: 42, UserID: 42, Text: "/status"})

	if len(chats) != 2 || chats[0] != -1001 || chats[1] != 42 {
		t.Errorf("handled chats %v", chats)
	}
}

func TestDispatcherRoutesCallback(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	var got *Request
	d.modules["r"] = func(_ context.Context, req *Request) Screen {
		got = req
		return Screen{Text: "routes page 2", Toast: "ok"}
	}

	d.Handle(context.Background(), telegram.Event{
		ChatID: 42, UserID: 42,
		Callback: &telegram.CallbackRef{ID: "cb9", MessageID: 33, Data: "r|routes|page=2"},
	})

	if got == nil || got.Cmd != "routes" || got.Params["page"] != "2" {
		t.Fatalf("routed request: %+v", got)
	}
	if len(tr.answered) != 1 || tr.answered[0] != "ok" {
		t.Errorf("callback answer: %v", tr.answered)
	}
	if len(tr.edited) != 1 || tr.edited[0].Text != "routes page 2" {
		t.Errorf("edits: %v", tr.edited)
	}
	if len(tr.sent) != 0 {
		t.Errorf("callback reply must edit, not send: %v", tr.sent)
	}
}

func TestDispatcherNoopCallback(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	d.Handle(context.Background(), telegram.Event{
		ChatID: 42, UserID: 42,
		Callback: &telegram.CallbackRef{ID: "cb2", Data: "noop"},
	})
	if len(tr.answered) != 1 || len(tr.edited) != 0 {
		t.Errorf("noop: answered=%v edited=%v", tr.answered, tr.edited)
	}
}

func TestDispatcherStripsBotMention(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	called := false
	d.commands["/status"] = func(context.Context, *Request) Screen {
		called = true
		return Screen{Text: "ok"}
	}
	d.Handle(context.Background(), telegram.Event{ChatID: 42, UserID: 42, Text: "/STATUS@keenbot now"})
	if !called {
		t.Fatal("mention-suffixed command not routed")
	}
}

func TestDispatcherUnknownCommand(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	d.Handle(context.Background(), telegram.Event{ChatID: 42, UserID: 42, Text: "/frobnicate"})
	if len(tr.sent) != 1 || tr.sent[0].Text != "Unknown command. Try /help." {
		t.Errorf("unknown command reply: %v", tr.sent)
	}
}

func TestDispatcherPassesArgs(t *testing.T) {
	tr := &spyTransport{}
	d := testDispatcher(tr)
	var args []string
	d.commands["/opkg"] = func(_ context.Context, req *Request) Screen {
		args = req.Args
		return Screen{}
	}
	d.Handle(context.Background(), telegram.Event{ChatID: 42, UserID: 42, Text: "/opkg install htop"})
	if len(args) != 2 || args[0] != "install" || args[1] != "htop" {
		t.Errorf("args %v", args)
	}
}

func TestRebootRequiresConfirmation(t *testing.T) {
	h := newHandlers(Deps{Cfg: testConfig()})
	s := h.router(context.Background(), &Request{Cmd: "reboot", Params: map[string]string{}})
	if s.Keyboard == nil {
		t.Fatal("no confirm keyboard")
	}
	found := false
	for _, row := range s.Keyboard.Rows {
		for _, b := range row {
			if b.Data == "r|reboot|confirm=1" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("confirm button missing: %+v", s.Keyboard.Rows)
	}
}

func TestOpkgInstallConfirmCallback(t *testing.T) {
	h := newHandlers(Deps{Cfg: testConfig()})
	s := h.opkg(context.Background(), &Request{Cmd: "install", Params: map[string]string{"pkg": "htop"}})
	if s.Keyboard == nil {
		t.Fatal("no confirm keyboard")
	}
	data := s.Keyboard.Rows[0][0].Data
	mod, cmd, params := ui.ParseCallback(data)
	if mod != "o" || cmd != "install" || params["pkg"] != "htop" || params["confirm"] != "1" {
		t.Errorf("confirm payload %q parsed to %s %s %v", data, mod, cmd, params)
	}
}
