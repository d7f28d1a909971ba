package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aquakeep/internal/event"
	"aquakeep/internal/eventbus"
	logx "aquakeep/pkg/logx"
)

// Config controls the notification forwarder.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int
	// RatePerSec caps outbound deliveries across all workers; 0 disables
	// the limiter.
	RatePerSec float64
	Burst      int
}

// Forwarder bridges the in-process bus to a delivery Sender. It subscribes
// to the reminder and overdue topics, renders notifications and pushes them
// through a small worker pool behind a shared rate limiter.
//
// Delivery failures are logged and dropped; the engine's own retry path is
// the unsent reminder flag, not this queue.
type Forwarder struct {
	mu sync.Mutex

	cfg    Config
	bus    eventbus.Bus
	sender Sender
	log    logx.Logger

	limiter *rate.Limiter

	queue  chan Notification
	unsub  func()
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewForwarder(cfg Config, bus eventbus.Bus, sender Sender, log logx.Logger) *Forwarder {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	f := &Forwarder{cfg: cfg, bus: bus, sender: sender, log: log}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return f
}

func (f *Forwarder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cfg.Enabled {
		f.log.Info("notify forwarder disabled")
		return
	}
	if f.stopCh != nil || f.bus == nil {
		return
	}
	f.stopCh = make(chan struct{})

	size := f.cfg.QueueSize
	if size <= 0 {
		size = 128
	}
	f.queue = make(chan Notification, size)

	workers := f.cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	ch, unsub := f.bus.Subscribe(size)
	f.unsub = unsub

	stopCh := f.stopCh
	queue := f.queue

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.consume(ctx, stopCh, ch, queue)
	}()

	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer f.wg.Done()
			f.worker(ctx, stopCh, queue)
		}()
	}
	f.log.Info("notify forwarder started", logx.Int("workers", workers), logx.Int("queue", size))
}

func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.stopCh == nil {
		f.mu.Unlock()
		return
	}
	close(f.stopCh)
	f.stopCh = nil
	if f.unsub != nil {
		f.unsub()
		f.unsub = nil
	}
	f.mu.Unlock()

	f.wg.Wait()
	f.log.Info("notify forwarder stopped")
}

func (f *Forwarder) consume(ctx context.Context, stopCh <-chan struct{}, ch <-chan eventbus.Message, queue chan<- Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			n, ok := render(m)
			if !ok {
				continue
			}
			select {
			case queue <- n:
			default:
				f.log.Warn("notify queue full; dropping notification",
					logx.String("user", n.UserID),
					logx.String("event", n.EventID))
			}
		}
	}
}

func (f *Forwarder) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case n := <-queue:
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if err := f.sender.Send(ctx, n); err != nil {
				f.log.Warn("notification send failed",
					logx.String("user", n.UserID),
					logx.String("channel", string(n.Channel)),
					logx.Err(err))
			}
		}
	}
}

// render maps a bus message to a notification. Topics without a user-facing
// rendering are skipped.
func render(m eventbus.Message) (Notification, bool) {
	switch m.Topic {
	case event.TopicReminderDue:
		d, ok := m.Data.(event.ReminderDueMessage)
		if !ok {
			return Notification{}, false
		}
		return Notification{
			UserID:     d.UserID,
			Channel:    d.Channel,
			Title:      "Upcoming: " + d.EventTitle,
			Body:       fmt.Sprintf("%s is due in %s", d.EventTitle, d.TimeBefore),
			EventID:    d.EventID,
			ReminderID: d.ReminderID,
			At:         m.Time,
		}, true
	case event.TopicOverdue:
		d, ok := m.Data.(event.OverdueMessage)
		if !ok {
			return Notification{}, false
		}
		return Notification{
			UserID:  d.UserID,
			Channel: event.ChannelInApp,
			Title:   "Maintenance overdue",
			Body: fmt.Sprintf("A %s task scheduled for %s is overdue",
				d.Type, d.ScheduledDate.Format(time.RFC1123)),
			EventID: d.EventID,
			At:      m.Time,
		}, true
	}
	return Notification{}, false
}
