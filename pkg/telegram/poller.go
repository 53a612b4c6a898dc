package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/keenbot/keenbot/pkg/logger"
)

const (
	backoffInitial = 2 * time.Second
	backoffCap     = 60 * time.Second
)

// Handler consumes one inbound event. Called synchronously in update order;
// long work must be handed off to the job registry by the handler itself.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Poller is the single reader of the update stream. It owns the offset
// cursor: the cursor advances past an update only after the handler
// returned, so a crash replays the unprocessed tail rather than losing it.
type Poller struct {
	transport Transport
	handler   Handler
	timeout   time.Duration

	offset int64
	sleep  func(ctx context.Context, d time.Duration) bool
}

func NewPoller(transport Transport, handler Handler, pollTimeout time.Duration) *Poller {
	return &Poller{
		transport: transport,
		handler:   handler,
		timeout:   pollTimeout,
		sleep:     sleepCtx,
	}
}

// Run polls until ctx is cancelled or a fatal transport error occurs.
// A 409 conflict is fatal: a second poller with the same token would
// otherwise steal updates back and forth forever.
func (p *Poller) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		events, err := p.transport.Poll(ctx, p.offset, p.timeout)
		switch {
		// only our own cancellation ends the loop; a transport error that
		// merely wraps a request timeout falls through to the backoff branch
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrConflict):
			logger.ErrorCF("poller", "token conflict, shutting down", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		case err != nil:
			delay := backoffDelay(attempt)
			attempt++
			logger.WarnCF("poller", "poll failed, backing off", map[string]interface{}{
				"error": err.Error(),
				"delay": delay.String(),
			})
			if !p.sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		attempt = 0
		for _, ev := range events {
			if ev.ChatID != 0 {
				p.handler.Handle(ctx, ev)
			}
			if ev.UpdateID >= p.offset {
				p.offset = ev.UpdateID + 1
			}
		}
	}
}

// backoffDelay doubles from 2s and saturates at 60s.
func backoffDelay(attempt int) time.Duration {
	d := backoffInitial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
