package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery channel of a reminder.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

const (
	// DefaultTimeBefore is used when a reminder is created without an offset.
	DefaultTimeBefore = 60
	// MinTimeBefore is the smallest user-supplied offset, in minutes.
	MinTimeBefore = 5
)

// Reminder is a notification attached to an event, fired a configurable
// number of minutes before its scheduled date. Reminders never exist outside
// their owning event.
type Reminder struct {
	ID         string     `json:"id"`
	Channel    Channel    `json:"channel"`
	TimeBefore int        `json:"timeBefore"` // minutes before event
	Sent       bool       `json:"sent"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewReminder builds an unsent reminder. A zero timeBefore falls back to
// DefaultTimeBefore.
func NewReminder(channel Channel, timeBefore int) *Reminder {
	if timeBefore <= 0 {
		timeBefore = DefaultTimeBefore
	}
	if channel == "" {
		channel = ChannelEmail
	}
	return &Reminder{
		ID:         uuid.NewString(),
		Channel:    channel,
		TimeBefore: timeBefore,
		CreatedAt:  timeNow(),
	}
}

// ReminderTime is the moment this reminder should fire for the given event
// date.
func (r *Reminder) ReminderTime(eventDate time.Time) time.Time {
	return eventDate.Add(-time.Duration(r.TimeBefore) * time.Minute)
}

// ShouldSend reports whether the reminder is due. There is deliberately no
// upper bound: a reminder whose window has long passed stays due until it is
// marked sent; the batch job bounds how far back it looks.
func (r *Reminder) ShouldSend(eventDate time.Time) bool {
	if r.Sent {
		return false
	}
	return !timeNow().Before(r.ReminderTime(eventDate))
}

func (r *Reminder) MarkSent() {
	now := timeNow()
	r.Sent = true
	r.SentAt = &now
	r.Error = ""
}

// MarkFailed records a send error. Sent stays false so the next batch pass
// retries the reminder.
func (r *Reminder) MarkFailed(errMsg string) {
	r.Error = errMsg
}

// Clone returns a copy with a fresh id and reset send state, used when a
// recurring event spawns its successor.
func (r *Reminder) Clone() *Reminder {
	return &Reminder{
		ID:         uuid.NewString(),
		Channel:    r.Channel,
		TimeBefore: r.TimeBefore,
		CreatedAt:  timeNow(),
	}
}

// ReadableTimeBefore renders the offset for display: "30 minutes", "2 hours",
// "1 day", "1 day 18 hours", "1 day 1 hour 30 minutes".
func (r *Reminder) ReadableTimeBefore() string {
	m := r.TimeBefore
	if m < 60 {
		return plural(m, "minute")
	}

	hours := m / 60
	minutes := m % 60

	if hours < 24 && minutes == 0 {
		return plural(hours, "hour")
	}
	if hours == 24 && minutes == 0 {
		return "1 day"
	}

	days := hours / 24
	remHours := hours % 24

	if days > 0 && remHours == 0 && minutes == 0 {
		return plural(days, "day")
	}

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if remHours > 0 {
		parts = append(parts, plural(remHours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
