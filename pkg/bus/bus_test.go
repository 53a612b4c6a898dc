package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNotificationQueueDropsOldestUnderPressure(t *testing.T) {
	b := New()
	defer b.Close()

	for i := 0; i < 150; i++ {
		b.PublishNotification(Notification{Category: "disk", Title: fmt.Sprintf("n%d", i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := b.ConsumeNotification(ctx)
	if !ok {
		t.Fatal("consume failed")
	}
	// queue capacity is 100; the first 50 must have been dropped
	if first.Title == "n0" {
		t.Error("oldest notification should have been dropped")
	}
}

func TestEventFanOut(t *testing.T) {
	b := New()
	defer b.Close()

	a := b.SubscribeEvents("a")
	c := b.SubscribeEvents("c")

	b.PublishEvent(Event{Type: "monitor.alert", Source: "monitor"})

	for name, ch := range map[string]<-chan Event{"a": a, "c": c} {
		select {
		case e := <-ch:
			if e.Type != "monitor.alert" {
				t.Errorf("%s: type = %q", name, e.Type)
			}
		case <-time.After(time.Second):
			t.Errorf("%s: no event received", name)
		}
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := New()
	b.Close()
	b.PublishNotification(Notification{Category: "cpu"})
	b.PublishEvent(Event{Type: "x"})
}

func TestPublishRacingCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := New()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.PublishNotification(Notification{Category: "disk"})
				b.PublishEvent(Event{Type: "tick"})
			}
		}()
		b.Close()
		wg.Wait()
	}
}
