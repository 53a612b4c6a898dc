package api

import (
	"context"

	"github.com/keenbot/keenbot/pkg/bus"
)

// EventBridge forwards bus events (job lifecycle, monitor alerts) to
// connected websocket clients.
type EventBridge struct {
	events <-chan bus.Event
	hub    *WSHub
}

func NewEventBridge(b *bus.Bus, hub *WSHub) *EventBridge {
	return &EventBridge{
		events: b.SubscribeEvents("api-ws"),
		hub:    hub,
	}
}

// Run pumps events until the bus closes or ctx is cancelled.
func (e *EventBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			e.hub.Broadcast(ev.Type, ev.Data)
		}
	}
}
