package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeNow is swapped out in tests that need a fixed clock.
var timeNow = time.Now

// Type categorizes a maintenance event.
type Type string

const (
	TypeWaterChange            Type = "water_change"
	TypeFilterCleaning         Type = "filter_cleaning"
	TypeWaterTest              Type = "water_test"
	TypeMedication             Type = "medication"
	TypeEquipmentMaintenance   Type = "equipment_maintenance"
	TypeFeeding                Type = "feeding"
	TypeTemperatureMeasurement Type = "temperature_measurement"
	TypePhotoUpload            Type = "photo_upload"
	TypeCustom                 Type = "custom"
)

func (t Type) Valid() bool {
	switch t {
	case TypeWaterChange, TypeFilterCleaning, TypeWaterTest, TypeMedication,
		TypeEquipmentMaintenance, TypeFeeding, TypeTemperatureMeasurement,
		TypePhotoUpload, TypeCustom:
		return true
	}
	return false
}

// Status is the lifecycle state of an event.
//
// Transitions: SCHEDULED -> COMPLETED | CANCELLED | OVERDUE,
// OVERDUE -> SCHEDULED (reschedule only) | COMPLETED | CANCELLED.
// COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusOverdue   Status = "OVERDUE"
)

// Frequency is the unit of a recurrence pattern.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// RecurrencePattern describes how an event repeats after completion.
//
// Interval defaults to 1 when zero. The DaysOfWeek/DayOfMonth/MonthOfYear
// hints refine schedule projections (see Projection) but do not affect
// NextOccurrence arithmetic.
type RecurrencePattern struct {
	Frequency   Frequency `json:"frequency"`
	Interval    int       `json:"interval,omitempty"`
	DaysOfWeek  []int     `json:"daysOfWeek,omitempty"`  // 0-6, Sunday-Saturday
	DayOfMonth  int       `json:"dayOfMonth,omitempty"`  // 1-31
	MonthOfYear int       `json:"monthOfYear,omitempty"` // 1-12
}

func (p RecurrencePattern) interval() int {
	if p.Interval < 1 {
		return 1
	}
	return p.Interval
}

// Event is a scheduled maintenance action tied to one aquarium and one owner.
//
// All methods are pure in-memory mutations; persisting the result is the
// caller's responsibility.
type Event struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	AquariumID  string `json:"aquariumId"`
	Type        Type   `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	ScheduledDate time.Time `json:"scheduledDate"`
	Duration      int       `json:"duration,omitempty"` // minutes

	Recurring         bool               `json:"recurring"`
	RecurrencePattern *RecurrencePattern `json:"recurrencePattern,omitempty"`
	RecurrenceEndDate *time.Time         `json:"recurrenceEndDate,omitempty"`

	Reminders []*Reminder `json:"reminders"`

	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
	Notes       string     `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New builds a SCHEDULED event with a fresh id and timestamps.
func New(userID, aquariumID string, typ Type, title string, scheduledDate time.Time) *Event {
	now := timeNow()
	return &Event{
		ID:            uuid.NewString(),
		UserID:        userID,
		AquariumID:    aquariumID,
		Type:          typ,
		Title:         title,
		ScheduledDate: scheduledDate,
		Status:        StatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsOverdue reports whether a still-scheduled event's date has passed.
func (e *Event) IsOverdue() bool {
	return e.Status == StatusScheduled && e.ScheduledDate.Before(timeNow())
}

// IsDue reports whether the event is scheduled within the next hour
// (inclusive on both ends).
func (e *Event) IsDue() bool {
	if e.Status != StatusScheduled {
		return false
	}
	now := timeNow()
	d := e.ScheduledDate
	return !d.Before(now) && !d.After(now.Add(time.Hour))
}

// Complete marks the event done. Notes are appended, newline-joined, never
// overwritten.
func (e *Event) Complete(by, notes string) {
	now := timeNow()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	e.CompletedBy = by
	if notes != "" {
		e.appendNote(notes)
	}
	e.UpdatedAt = now
}

// Cancel marks the event cancelled, recording the reason in the notes.
func (e *Event) Cancel(reason string) {
	e.Status = StatusCancelled
	if reason != "" {
		e.appendNote("Cancelled: " + reason)
	}
	e.UpdatedAt = timeNow()
}

// Reschedule moves the event to a new date and returns it to SCHEDULED.
// This is the only transition out of OVERDUE back to SCHEDULED.
func (e *Event) Reschedule(newDate time.Time) {
	e.ScheduledDate = newDate
	e.Status = StatusScheduled
	e.UpdatedAt = timeNow()
}

func (e *Event) AddReminder(r *Reminder) {
	e.Reminders = append(e.Reminders, r)
	e.UpdatedAt = timeNow()
}

// RemoveReminder deletes the reminder with the given id, reporting whether
// it was present.
func (e *Event) RemoveReminder(reminderID string) bool {
	n := 0
	found := false
	for _, r := range e.Reminders {
		if r.ID == reminderID {
			found = true
			continue
		}
		e.Reminders[n] = r
		n++
	}
	if !found {
		return false
	}
	e.Reminders = e.Reminders[:n]
	e.UpdatedAt = timeNow()
	return true
}

// Reminder returns the reminder with the given id, or nil.
func (e *Event) Reminder(reminderID string) *Reminder {
	for _, r := range e.Reminders {
		if r.ID == reminderID {
			return r
		}
	}
	return nil
}

// NextOccurrence computes the next date of a recurring event.
//
// The base date is CompletedAt when set, else ScheduledDate; it is advanced
// by interval units of the pattern's frequency. Returns the zero time when
// the event is not recurring, has no pattern, or the computed date falls
// strictly after RecurrenceEndDate (a next date exactly equal to the end
// date is still eligible).
func (e *Event) NextOccurrence() time.Time {
	if !e.Recurring || e.RecurrencePattern == nil {
		return time.Time{}
	}

	base := e.ScheduledDate
	if e.CompletedAt != nil {
		base = *e.CompletedAt
	}

	p := e.RecurrencePattern
	n := p.interval()
	var next time.Time
	switch p.Frequency {
	case Daily:
		next = base.AddDate(0, 0, n)
	case Weekly:
		next = base.AddDate(0, 0, 7*n)
	case Monthly:
		next = base.AddDate(0, n, 0)
	case Yearly:
		next = base.AddDate(n, 0, 0)
	default:
		return time.Time{}
	}

	if e.RecurrenceEndDate != nil && next.After(*e.RecurrenceEndDate) {
		return time.Time{}
	}
	return next
}

// ShouldCreateNextOccurrence reports whether completing this event should
// spawn a successor.
func (e *Event) ShouldCreateNextOccurrence() bool {
	if !e.Recurring || e.Status != StatusCompleted {
		return false
	}
	return !e.NextOccurrence().IsZero()
}

// NextEvent synthesizes the successor of a completed recurring event: a
// fresh id, the computed next date, SCHEDULED status, cleared completion
// fields and reminders cloned with their send state reset.
func (e *Event) NextEvent() *Event {
	next := e.NextOccurrence()
	if next.IsZero() {
		return nil
	}
	now := timeNow()
	succ := &Event{
		ID:                uuid.NewString(),
		UserID:            e.UserID,
		AquariumID:        e.AquariumID,
		Type:              e.Type,
		Title:             e.Title,
		Description:       e.Description,
		ScheduledDate:     next,
		Duration:          e.Duration,
		Recurring:         e.Recurring,
		RecurrencePattern: e.RecurrencePattern,
		RecurrenceEndDate: e.RecurrenceEndDate,
		Status:            StatusScheduled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	succ.Reminders = make([]*Reminder, 0, len(e.Reminders))
	for _, r := range e.Reminders {
		succ.Reminders = append(succ.Reminders, r.Clone())
	}
	return succ
}

func (e *Event) appendNote(note string) {
	if strings.TrimSpace(e.Notes) == "" {
		e.Notes = note
		return
	}
	e.Notes = e.Notes + "\n" + note
}
