package event

import (
	"time"

	"aquakeep/internal/eventbus"
)

// Bus topics published by the domain service. External consumers
// (notification forwarding, analytics) subscribe to these; the engine never
// delivers anything itself.
const (
	TopicCreated          eventbus.Topic = "event.created"
	TopicUpdated          eventbus.Topic = "event.updated"
	TopicDeleted          eventbus.Topic = "event.deleted"
	TopicCompleted        eventbus.Topic = "event.completed"
	TopicCancelled        eventbus.Topic = "event.cancelled"
	TopicRescheduled      eventbus.Topic = "event.rescheduled"
	TopicOverdue          eventbus.Topic = "event.overdue"
	TopicRecurringCreated eventbus.Topic = "event.recurring.created"
	TopicReminderAdded    eventbus.Topic = "reminder.added"
	TopicReminderRemoved  eventbus.Topic = "reminder.removed"
	TopicReminderDue      eventbus.Topic = "reminder.due"
)

type CreatedMessage struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	AquariumID    string    `json:"aquariumId"`
	Type          Type      `json:"type"`
	ScheduledDate time.Time `json:"scheduledDate"`
}

type UpdatedMessage struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

type DeletedMessage struct {
	EventID    string `json:"eventId"`
	UserID     string `json:"userId"`
	AquariumID string `json:"aquariumId"`
}

type CompletedMessage struct {
	EventID     string    `json:"eventId"`
	UserID      string    `json:"userId"`
	AquariumID  string    `json:"aquariumId"`
	Type        Type      `json:"type"`
	CompletedAt time.Time `json:"completedAt"`
}

type CancelledMessage struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason,omitempty"`
}

type RescheduledMessage struct {
	EventID string    `json:"eventId"`
	UserID  string    `json:"userId"`
	OldDate time.Time `json:"oldDate"`
	NewDate time.Time `json:"newDate"`
}

type OverdueMessage struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	AquariumID    string    `json:"aquariumId"`
	Type          Type      `json:"type"`
	ScheduledDate time.Time `json:"scheduledDate"`
}

type RecurringCreatedMessage struct {
	OriginalEventID string    `json:"originalEventId"`
	NewEventID      string    `json:"newEventId"`
	UserID          string    `json:"userId"`
	ScheduledDate   time.Time `json:"scheduledDate"`
}

type ReminderAddedMessage struct {
	EventID    string  `json:"eventId"`
	UserID     string  `json:"userId"`
	ReminderID string  `json:"reminderId"`
	Channel    Channel `json:"channel"`
}

type ReminderRemovedMessage struct {
	EventID    string `json:"eventId"`
	UserID     string `json:"userId"`
	ReminderID string `json:"reminderId"`
}

type ReminderDueMessage struct {
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	ReminderID string    `json:"reminderId"`
	Channel    Channel   `json:"channel"`
	EventTitle string    `json:"eventTitle"`
	EventDate  time.Time `json:"eventDate"`
	TimeBefore string    `json:"timeBefore"`
}
