package event

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"aquakeep/internal/eventbus"
	logx "aquakeep/pkg/logx"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500

	// dueReminderWindow is the repository prefilter for ProcessReminders.
	dueReminderWindow = time.Hour
)

// Service drives the event lifecycle: validation, quota enforcement, state
// transitions, successor synthesis for recurring events and the two periodic
// batch jobs. It owns no transport; every externally visible effect is a
// message on the bus.
type Service struct {
	repo Repository
	bus  eventbus.Bus
	log  logx.Logger

	limMu  sync.RWMutex
	limits Limits
}

func NewService(repo Repository, bus eventbus.Bus, limits Limits, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if limits.EventsPerAquarium == nil && limits.RemindersPerEvent == nil {
		limits = DefaultLimits()
	}
	return &Service{repo: repo, bus: bus, limits: limits, log: log}
}

// SetLimits swaps the quota tables, used on config hot-reload.
func (s *Service) SetLimits(l Limits) {
	if l.EventsPerAquarium == nil && l.RemindersPerEvent == nil {
		l = DefaultLimits()
	}
	s.limMu.Lock()
	s.limits = l
	s.limMu.Unlock()
}

func (s *Service) quotas() Limits {
	s.limMu.RLock()
	defer s.limMu.RUnlock()
	return s.limits
}

// ---- Inputs ----

// CreateInput carries the caller-supplied fields of a new event. Reminders
// may be empty; tier-appropriate defaults are attached then.
type CreateInput struct {
	Type              Type
	Title             string
	Description       string
	ScheduledDate     time.Time
	Duration          *int // minutes
	Recurring         bool
	RecurrencePattern *RecurrencePattern
	RecurrenceEndDate *time.Time
	Reminders         []ReminderInput
}

type ReminderInput struct {
	Channel    Channel
	TimeBefore int // minutes; 0 means default
}

// UpdateInput is a partial patch; nil fields are left untouched.
type UpdateInput struct {
	Type              *Type
	Title             *string
	Description       *string
	ScheduledDate     *time.Time
	Duration          *int
	Recurring         *bool
	RecurrencePattern *RecurrencePattern
	RecurrenceEndDate *time.Time
}

// ---- Commands ----

func (s *Service) CreateEvent(ctx context.Context, userID, aquariumID string, in CreateInput, tier Tier) (*Event, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(aquariumID) == "" {
		return nil, validationErr("user and aquarium are required")
	}

	quota := s.quotas().EventQuota(tier)
	if quota != Unlimited {
		count, err := s.repo.CountByAquarium(ctx, aquariumID, "")
		if err != nil {
			return nil, err
		}
		if count >= quota {
			return nil, quotaErr("events", quota, tier)
		}
	}

	if err := validateCreate(in); err != nil {
		return nil, err
	}

	e := New(userID, aquariumID, in.Type, strings.TrimSpace(in.Title), in.ScheduledDate)
	e.Description = in.Description
	if in.Duration != nil {
		e.Duration = *in.Duration
	}
	e.Recurring = in.Recurring
	e.RecurrencePattern = in.RecurrencePattern
	e.RecurrenceEndDate = in.RecurrenceEndDate

	if len(in.Reminders) > 0 {
		for _, ri := range in.Reminders {
			r, err := buildReminder(ri)
			if err != nil {
				return nil, err
			}
			e.Reminders = append(e.Reminders, r)
		}
	} else {
		e.Reminders = defaultReminders(e.Type, tier)
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.publish(TopicCreated, CreatedMessage{
		EventID:       e.ID,
		UserID:        e.UserID,
		AquariumID:    e.AquariumID,
		Type:          e.Type,
		ScheduledDate: e.ScheduledDate,
	})
	s.log.Debug("event created",
		logx.String("event", e.ID),
		logx.String("aquarium", e.AquariumID),
		logx.String("type", string(e.Type)),
		logx.Time("scheduled", e.ScheduledDate))
	return e, nil
}

func (s *Service) UpdateEvent(ctx context.Context, id, userID string, patch UpdateInput) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusCompleted || e.Status == StatusCancelled {
		return nil, conflictErr("cannot update %s events", strings.ToLower(string(e.Status)))
	}

	if patch.ScheduledDate != nil {
		if err := validateScheduledDate(*patch.ScheduledDate); err != nil {
			return nil, err
		}
		e.ScheduledDate = *patch.ScheduledDate
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, validationErr("unknown event type %q", *patch.Type)
		}
		e.Type = *patch.Type
	}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, validationErr("event title is required")
		}
		if len(t) > maxTitleLen {
			return nil, validationErr("event title exceeds %d characters", maxTitleLen)
		}
		e.Title = t
	}
	if patch.Description != nil {
		if len(*patch.Description) > maxDescriptionLen {
			return nil, validationErr("event description exceeds %d characters", maxDescriptionLen)
		}
		e.Description = *patch.Description
	}
	if patch.Duration != nil {
		if *patch.Duration < 0 {
			return nil, validationErr("duration must not be negative")
		}
		e.Duration = *patch.Duration
	}
	if patch.Recurring != nil {
		e.Recurring = *patch.Recurring
	}
	if patch.RecurrencePattern != nil {
		if !patch.RecurrencePattern.Frequency.Valid() {
			return nil, validationErr("unknown recurrence frequency %q", patch.RecurrencePattern.Frequency)
		}
		e.RecurrencePattern = patch.RecurrencePattern
	}
	if patch.RecurrenceEndDate != nil {
		e.RecurrenceEndDate = patch.RecurrenceEndDate
	}
	if e.Recurring && e.RecurrencePattern == nil {
		return nil, validationErr("recurrence pattern is required for recurring events")
	}
	e.UpdatedAt = timeNow()

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(TopicUpdated, UpdatedMessage{EventID: e.ID, UserID: e.UserID})
	return e, nil
}

func (s *Service) DeleteEvent(ctx context.Context, id, userID string) error {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, e.ID); err != nil {
		return err
	}
	s.publish(TopicDeleted, DeletedMessage{EventID: e.ID, UserID: e.UserID, AquariumID: e.AquariumID})
	return nil
}

func (s *Service) CompleteEvent(ctx context.Context, id, userID, notes string) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusCompleted {
		return nil, conflictErr("event is already completed")
	}
	if e.Status == StatusCancelled {
		return nil, conflictErr("cannot complete cancelled events")
	}

	e.Complete(userID, notes)
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	if e.ShouldCreateNextOccurrence() {
		succ := e.NextEvent()
		if err := s.repo.Create(ctx, succ); err != nil {
			return nil, err
		}
		s.publish(TopicRecurringCreated, RecurringCreatedMessage{
			OriginalEventID: e.ID,
			NewEventID:      succ.ID,
			UserID:          succ.UserID,
			ScheduledDate:   succ.ScheduledDate,
		})
		s.log.Debug("recurring successor created",
			logx.String("event", e.ID),
			logx.String("successor", succ.ID),
			logx.Time("scheduled", succ.ScheduledDate))
	}

	s.publish(TopicCompleted, CompletedMessage{
		EventID:     e.ID,
		UserID:      e.UserID,
		AquariumID:  e.AquariumID,
		Type:        e.Type,
		CompletedAt: *e.CompletedAt,
	})
	return e, nil
}

func (s *Service) CancelEvent(ctx context.Context, id, userID, reason string) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusCancelled {
		return nil, conflictErr("event is already cancelled")
	}
	if e.Status == StatusCompleted {
		return nil, conflictErr("cannot cancel completed events")
	}

	e.Cancel(reason)
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(TopicCancelled, CancelledMessage{EventID: e.ID, UserID: e.UserID, Reason: reason})
	return e, nil
}

func (s *Service) RescheduleEvent(ctx context.Context, id, userID string, newDate time.Time) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusCompleted || e.Status == StatusCancelled {
		return nil, conflictErr("cannot reschedule %s events", strings.ToLower(string(e.Status)))
	}
	if err := validateScheduledDate(newDate); err != nil {
		return nil, err
	}

	oldDate := e.ScheduledDate
	e.Reschedule(newDate)
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(TopicRescheduled, RescheduledMessage{
		EventID: e.ID,
		UserID:  e.UserID,
		OldDate: oldDate,
		NewDate: newDate,
	})
	return e, nil
}

func (s *Service) AddReminder(ctx context.Context, id, userID string, in ReminderInput, tier Tier) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	quota := s.quotas().ReminderQuota(tier)
	if quota != Unlimited && len(e.Reminders) >= quota {
		return nil, quotaErr("reminders", quota, tier)
	}

	r, err := buildReminder(in)
	if err != nil {
		return nil, err
	}
	e.AddReminder(r)

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(TopicReminderAdded, ReminderAddedMessage{
		EventID:    e.ID,
		UserID:     e.UserID,
		ReminderID: r.ID,
		Channel:    r.Channel,
	})
	return e, nil
}

func (s *Service) RemoveReminder(ctx context.Context, id, userID, reminderID string) (*Event, error) {
	e, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !e.RemoveReminder(reminderID) {
		return nil, notFoundErr("reminder")
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.publish(TopicReminderRemoved, ReminderRemovedMessage{
		EventID:    e.ID,
		UserID:     e.UserID,
		ReminderID: reminderID,
	})
	return e, nil
}

// ---- Queries ----

func (s *Service) GetEvent(ctx context.Context, id, userID string) (*Event, error) {
	return s.load(ctx, id, userID)
}

func (s *Service) ListUserEvents(ctx context.Context, userID string, opts FindOptions) ([]*Event, error) {
	return s.repo.FindByUser(ctx, userID, opts)
}

// ListAquariumEvents returns the aquarium's events owned by the user.
// Ownership of the aquarium itself is the caller's concern; events of other
// owners are filtered out here.
func (s *Service) ListAquariumEvents(ctx context.Context, aquariumID, userID string, opts FindOptions) ([]*Event, error) {
	events, err := s.repo.FindByAquarium(ctx, aquariumID, opts)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, e := range events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Service) UpcomingEvents(ctx context.Context, userID string, days int) ([]*Event, error) {
	if days <= 0 {
		days = 7
	}
	return s.repo.FindUpcoming(ctx, userID, days)
}

func (s *Service) OverdueEvents(ctx context.Context, userID string) ([]*Event, error) {
	return s.repo.FindOverdue(ctx, userID)
}

// ---- Batch jobs ----

// ProcessReminders is the short-interval batch job: it walks every event
// with an unsent reminder, publishes reminder.due for each due one and marks
// it sent. A failing reminder is marked failed and retried on the next pass;
// it never aborts the batch. One repository write per event.
func (s *Service) ProcessReminders(ctx context.Context) error {
	events, err := s.repo.FindDueReminders(ctx, dueReminderWindow)
	if err != nil {
		return err
	}

	due := 0
	for _, e := range events {
		changed := false
		for _, r := range e.Reminders {
			if !r.ShouldSend(e.ScheduledDate) {
				continue
			}
			if err := s.publishDue(e, r); err != nil {
				r.MarkFailed(err.Error())
				s.log.Warn("reminder publish failed",
					logx.String("event", e.ID),
					logx.String("reminder", r.ID),
					logx.Err(err))
			} else {
				r.MarkSent()
				due++
			}
			changed = true
		}
		if !changed {
			continue
		}
		if err := s.repo.Update(ctx, e); err != nil {
			s.log.Error("reminder state persist failed", logx.String("event", e.ID), logx.Err(err))
		}
	}

	if due > 0 {
		s.log.Info("reminders processed", logx.Int("due", due), logx.Int("events", len(events)))
	}
	return nil
}

// ProcessOverdueEvents is the long-interval sweep: every SCHEDULED event
// whose date has passed is flipped to OVERDUE, persisted, and announced.
// Re-running immediately is a no-op: the query matches SCHEDULED only.
func (s *Service) ProcessOverdueEvents(ctx context.Context) error {
	events, err := s.repo.FindAllOverdue(ctx)
	if err != nil {
		return err
	}

	flipped := 0
	for _, e := range events {
		if !e.IsOverdue() {
			continue
		}
		e.Status = StatusOverdue
		e.UpdatedAt = timeNow()
		if err := s.repo.Update(ctx, e); err != nil {
			s.log.Error("overdue persist failed", logx.String("event", e.ID), logx.Err(err))
			continue
		}
		s.publish(TopicOverdue, OverdueMessage{
			EventID:       e.ID,
			UserID:        e.UserID,
			AquariumID:    e.AquariumID,
			Type:          e.Type,
			ScheduledDate: e.ScheduledDate,
		})
		flipped++
	}

	if flipped > 0 {
		s.log.Info("overdue sweep", logx.Int("marked", flipped))
	}
	return nil
}

// ---- Helpers ----

func (s *Service) load(ctx context.Context, id, userID string) (*Event, error) {
	e, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, notFoundErr("event")
	}
	return e, nil
}

func (s *Service) publish(topic eventbus.Topic, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Message{Topic: topic, Data: data})
}

// publishDue hands a due reminder to the bus. Without a bus there is no
// consumer to deliver it, so the reminder is reported failed and stays
// eligible for the next sweep.
func (s *Service) publishDue(e *Event, r *Reminder) error {
	if s.bus == nil {
		return errors.New("no message bus attached")
	}
	s.bus.Publish(eventbus.Message{Topic: TopicReminderDue, Data: ReminderDueMessage{
		EventID:    e.ID,
		UserID:     e.UserID,
		ReminderID: r.ID,
		Channel:    r.Channel,
		EventTitle: e.Title,
		EventDate:  e.ScheduledDate,
		TimeBefore: r.ReadableTimeBefore(),
	}})
	return nil
}

func validateCreate(in CreateInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return validationErr("event title is required")
	}
	if len(title) > maxTitleLen {
		return validationErr("event title exceeds %d characters", maxTitleLen)
	}
	if len(in.Description) > maxDescriptionLen {
		return validationErr("event description exceeds %d characters", maxDescriptionLen)
	}
	if in.Type == "" {
		return validationErr("event type is required")
	}
	if !in.Type.Valid() {
		return validationErr("unknown event type %q", in.Type)
	}
	if in.ScheduledDate.IsZero() {
		return validationErr("scheduled date is required")
	}
	if err := validateScheduledDate(in.ScheduledDate); err != nil {
		return err
	}
	if in.Duration != nil && *in.Duration < 0 {
		return validationErr("duration must not be negative")
	}
	if in.Recurring {
		if in.RecurrencePattern == nil {
			return validationErr("recurrence pattern is required for recurring events")
		}
		if !in.RecurrencePattern.Frequency.Valid() {
			return validationErr("unknown recurrence frequency %q", in.RecurrencePattern.Frequency)
		}
	}
	return nil
}

func validateScheduledDate(d time.Time) error {
	if !d.After(timeNow()) {
		return validationErr("scheduled date must be in the future")
	}
	return nil
}

func buildReminder(in ReminderInput) (*Reminder, error) {
	if in.Channel != "" && !in.Channel.Valid() {
		return nil, validationErr("unknown reminder channel %q", in.Channel)
	}
	if in.TimeBefore != 0 && in.TimeBefore < MinTimeBefore {
		return nil, validationErr("reminder offset must be at least %d minutes", MinTimeBefore)
	}
	return NewReminder(in.Channel, in.TimeBefore), nil
}

// defaultReminders attaches the stock reminders when the caller supplies
// none: email an hour ahead for everyone; paying tiers get a second,
// type-specific push (a day ahead for tank work, 15 minutes for feeding).
func defaultReminders(typ Type, tier Tier) []*Reminder {
	reminders := []*Reminder{NewReminder(ChannelEmail, DefaultTimeBefore)}

	if tier == TierBasic || tier == "" {
		return reminders
	}
	switch typ {
	case TypeWaterChange, TypeFilterCleaning, TypeEquipmentMaintenance:
		reminders = append(reminders, NewReminder(ChannelPush, 24*60))
	case TypeFeeding:
		reminders = append(reminders, NewReminder(ChannelPush, 15))
	}
	return reminders
}
