package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeTransport struct {
	batches [][]Event
	errs    []error
	offsets []int64
	calls   int
	// done is invoked once the scripted batches are exhausted; tests wire it
	// to their context cancel so Run winds down like a real shutdown.
	done func()
}

func (f *fakeTransport) Poll(ctx context.Context, offset int64, _ time.Duration) ([]Event, error) {
	f.offsets = append(f.offsets, offset)
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.batches) {
		return f.batches[i], nil
	}
	if f.done != nil {
		f.done()
	}
	return nil, context.Canceled
}

func (f *fakeTransport) Send(context.Context, Message) (int, error)       { return 0, nil }
func (f *fakeTransport) Edit(context.Context, int, Message) error         { return nil }
func (f *fakeTransport) AnswerCallback(context.Context, string, string) error { return nil }

type recordingHandler struct {
	seen []int64
}

func (h *recordingHandler) Handle(_ context.Context, ev Event) {
	h.seen = append(h.seen, ev.UpdateID)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPollerAdvancesCursorAfterDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTransport{
		batches: [][]Event{
			{{UpdateID: 10, ChatID: 1, UserID: 1, Text: "/status"}},
			{{UpdateID: 11, ChatID: 1, UserID: 1, Text: "/menu"}, {UpdateID: 12, ChatID: 1, UserID: 1}},
		},
		done: cancel,
	}
	h := &recordingHandler{}
	p := NewPoller(ft, h, time.Second)
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run ended with %v", err)
	}

	if len(h.seen) != 3 || h.seen[0] != 10 || h.seen[2] != 12 {
		t.Errorf("handled updates %v", h.seen)
	}
	// poll 1 at offset 0, poll 2 past update 10, poll 3 past update 12
	if len(ft.offsets) < 3 || ft.offsets[1] != 11 || ft.offsets[2] != 13 {
		t.Errorf("offsets %v", ft.offsets)
	}
}

func TestPollerSkipsHandlerForEmptyEvents(t *testing.T) {
	// update kinds the transport cannot map still advance the cursor
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTransport{
		batches: [][]Event{{{UpdateID: 7}}},
		done:    cancel,
	}
	h := &recordingHandler{}
	p := NewPoller(ft, h, time.Second)
	p.Run(ctx)
	if len(h.seen) != 0 {
		t.Errorf("empty event reached handler: %v", h.seen)
	}
	if len(ft.offsets) < 2 || ft.offsets[1] != 8 {
		t.Errorf("cursor did not advance past unmapped update: %v", ft.offsets)
	}
}

func TestPollerBacksOffAndRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTransport{
		errs: []error{
			errors.New("transient 1"),
			errors.New("transient 2"),
			nil,
		},
		batches: [][]Event{nil, nil, {{UpdateID: 1, ChatID: 9, UserID: 9, Text: "hi"}}},
		done:    cancel,
	}
	h := &recordingHandler{}
	p := NewPoller(ft, h, time.Second)

	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}
	p.Run(ctx)

	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("backoff delays %v", delays)
	}
	if len(h.seen) != 1 {
		t.Errorf("update after recovery not handled: %v", h.seen)
	}
}

func TestPollerRequestTimeoutIsTransient(t *testing.T) {
	// a transport error wrapping DeadlineExceeded while our ctx is live must
	// back off and retry, not end the loop with a nil error
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTransport{
		errs:    []error{fmt.Errorf("poll: %w", context.DeadlineExceeded)},
		batches: [][]Event{nil, {{UpdateID: 3, ChatID: 5, UserID: 5, Text: "/menu"}}},
		done:    cancel,
	}
	h := &recordingHandler{}
	p := NewPoller(ft, h, time.Second)

	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run ended with %v", err)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Errorf("backoff delays %v", delays)
	}
	if len(h.seen) != 1 || h.seen[0] != 3 {
		t.Errorf("update after timeout not handled: %v", h.seen)
	}
}

func TestPollerConflictIsFatal(t *testing.T) {
	ft := &fakeTransport{errs: []error{ErrConflict}}
	p := NewPoller(ft, &recordingHandler{}, time.Second)
	err := p.Run(context.Background())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if ft.calls != 1 {
		t.Errorf("conflict must not be retried, polled %d times", ft.calls)
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ft := &fakeTransport{}
	p := NewPoller(ft, &recordingHandler{}, time.Second)
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestFormatNotification(t *testing.T) {
	got := formatNotification(busNotification("Low disk", "df <out>", false))
	if want := "⚠️ <b>Low disk</b>\n<pre>df &lt;out&gt;</pre>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	got = formatNotification(busNotification("Back up", "", true))
	if want := "✅ <b>Back up</b>"; got != want {
		t.Errorf("recovery: got %q, want %q", got, want)
	}
}
