package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"aquakeep/internal/event"
	"aquakeep/internal/eventbus"
	logx "aquakeep/pkg/logx"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureSender) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSender) snapshot() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestForwardsReminderDue(t *testing.T) {
	bus := eventbus.New()
	sender := &captureSender{}
	f := NewForwarder(Config{Enabled: true, Workers: 1}, bus, sender, logx.Nop())
	f.Start(context.Background())
	defer f.Stop()

	bus.Publish(eventbus.Message{
		Topic: event.TopicReminderDue,
		Data: event.ReminderDueMessage{
			EventID:    "e1",
			UserID:     "u1",
			ReminderID: "r1",
			Channel:    event.ChannelEmail,
			EventTitle: "Water change",
			TimeBefore: "1 hour",
		},
	})

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })
	n := sender.snapshot()[0]
	if n.UserID != "u1" || n.Channel != event.ChannelEmail || n.ReminderID != "r1" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.Body != "Water change is due in 1 hour" {
		t.Fatalf("unexpected body: %q", n.Body)
	}
}

func TestForwardsOverdue(t *testing.T) {
	bus := eventbus.New()
	sender := &captureSender{}
	f := NewForwarder(Config{Enabled: true, Workers: 1}, bus, sender, logx.Nop())
	f.Start(context.Background())
	defer f.Stop()

	bus.Publish(eventbus.Message{
		Topic: event.TopicOverdue,
		Data: event.OverdueMessage{
			EventID:       "e1",
			UserID:        "u1",
			Type:          event.TypeFilterCleaning,
			ScheduledDate: time.Now().Add(-time.Hour),
		},
	})

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })
	if got := sender.snapshot()[0].Channel; got != event.ChannelInApp {
		t.Fatalf("overdue channel = %s, want in_app", got)
	}
}

func TestDisabledDeliversNothing(t *testing.T) {
	bus := eventbus.New()
	sender := &captureSender{}
	f := NewForwarder(Config{Enabled: false, Workers: 1}, bus, sender, logx.Nop())
	f.Start(context.Background())
	defer f.Stop()

	bus.Publish(eventbus.Message{
		Topic: event.TopicReminderDue,
		Data:  event.ReminderDueMessage{EventID: "e1", UserID: "u1", EventTitle: "t", TimeBefore: "1 hour"},
	})

	time.Sleep(100 * time.Millisecond)
	if got := sender.snapshot(); len(got) != 0 {
		t.Fatalf("disabled forwarder delivered %d notification(s)", len(got))
	}
}

func TestIgnoresUnrelatedTopics(t *testing.T) {
	bus := eventbus.New()
	sender := &captureSender{}
	f := NewForwarder(Config{Enabled: true, Workers: 1}, bus, sender, logx.Nop())
	f.Start(context.Background())
	defer f.Stop()

	bus.Publish(eventbus.Message{Topic: event.TopicCreated, Data: event.CreatedMessage{EventID: "e1"}})
	bus.Publish(eventbus.Message{
		Topic: event.TopicReminderDue,
		Data:  event.ReminderDueMessage{EventID: "e2", UserID: "u1", EventTitle: "t", TimeBefore: "5 minutes"},
	})

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })
	if got := sender.snapshot()[0].EventID; got != "e2" {
		t.Fatalf("forwarded wrong message: %+v", sender.snapshot())
	}
}
