package notify

import (
	"context"
	"time"

	"aquakeep/internal/event"
	logx "aquakeep/pkg/logx"
)

// Notification is a rendered, channel-addressed message ready for delivery.
type Notification struct {
	UserID     string
	Channel    event.Channel
	Title      string
	Body       string
	EventID    string
	ReminderID string
	At         time.Time
}

// Sender delivers one notification. Implementations are expected to be safe
// for concurrent use; the forwarder calls Send from multiple workers.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log instead of delivering them.
// It is the default sink when no real transport is configured.
type LogSender struct {
	Log logx.Logger
}

func (s LogSender) Send(_ context.Context, n Notification) error {
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("notification",
		logx.String("user", n.UserID),
		logx.String("channel", string(n.Channel)),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.String("event", n.EventID))
	return nil
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, n Notification) error

func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
