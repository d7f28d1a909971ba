package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquakeep/internal/event"
	"aquakeep/internal/eventbus"
	"aquakeep/internal/storage"
	logx "aquakeep/pkg/logx"
)

type fixture struct {
	svc  *event.Service
	repo event.Repository
	bus  eventbus.Bus
	msgs <-chan eventbus.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := storage.NewMemory()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(64)
	t.Cleanup(unsub)
	svc := event.NewService(repo, bus, event.DefaultLimits(), logx.Nop())
	return &fixture{svc: svc, repo: repo, bus: bus, msgs: ch}
}

// drain collects every message published so far. Publish is synchronous, so
// no waiting is needed.
func (f *fixture) drain() []eventbus.Message {
	var out []eventbus.Message
	for {
		select {
		case m := <-f.msgs:
			out = append(out, m)
		default:
			return out
		}
	}
}

func (f *fixture) topics() []eventbus.Topic {
	msgs := f.drain()
	out := make([]eventbus.Topic, len(msgs))
	for i, m := range msgs {
		out[i] = m.Topic
	}
	return out
}

func createInput(date time.Time) event.CreateInput {
	return event.CreateInput{
		Type:          event.TypeWaterChange,
		Title:         "weekly water change",
		ScheduledDate: date,
	}
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().Add(24 * time.Hour)

	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(date), event.TierBasic)
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	assert.Equal(t, event.StatusScheduled, e.Status)

	topics := f.topics()
	require.Len(t, topics, 1)
	assert.Equal(t, event.TopicCreated, topics[0])

	stored, err := f.repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		mutate func(*event.CreateInput)
	}{
		{"empty title", func(in *event.CreateInput) { in.Title = "  " }},
		{"long title", func(in *event.CreateInput) {
			b := make([]byte, 101)
			for i := range b {
				b[i] = 'x'
			}
			in.Title = string(b)
		}},
		{"unknown type", func(in *event.CreateInput) { in.Type = "water_polo" }},
		{"past date", func(in *event.CreateInput) { in.ScheduledDate = time.Now().Add(-time.Hour) }},
		{"recurring without pattern", func(in *event.CreateInput) { in.Recurring = true }},
		{"bad frequency", func(in *event.CreateInput) {
			in.Recurring = true
			in.RecurrencePattern = &event.RecurrencePattern{Frequency: "sometimes"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := createInput(future)
			tt.mutate(&in)
			_, err := f.svc.CreateEvent(ctx, "u1", "a1", in, event.TierBasic)
			require.ErrorIs(t, err, event.ErrValidation)
		})
	}
}

func TestCreateEventQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limits := event.Limits{
		EventsPerAquarium: map[event.Tier]int{event.TierBasic: 2, event.TierPremium: event.Unlimited},
		RemindersPerEvent: map[event.Tier]int{event.TierBasic: 1},
	}
	f.svc.SetLimits(limits)
	date := time.Now().Add(24 * time.Hour)

	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(date), event.TierBasic)
		require.NoError(t, err)
	}
	_, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(date), event.TierBasic)
	require.ErrorIs(t, err, event.ErrQuotaExceeded)

	// unlimited tier keeps going, and another aquarium is a separate bucket
	_, err = f.svc.CreateEvent(ctx, "u1", "a2", createInput(date), event.TierBasic)
	require.NoError(t, err)
	_, err = f.svc.CreateEvent(ctx, "u1", "a1", createInput(date), event.TierPremium)
	require.NoError(t, err)
}

func TestDefaultReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().Add(24 * time.Hour)

	basic, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(date), event.TierBasic)
	require.NoError(t, err)
	require.Len(t, basic.Reminders, 1)
	assert.Equal(t, event.ChannelEmail, basic.Reminders[0].Channel)
	assert.Equal(t, event.DefaultTimeBefore, basic.Reminders[0].TimeBefore)

	premium, err := f.svc.CreateEvent(ctx, "u2", "a2", createInput(date), event.TierPremium)
	require.NoError(t, err)
	require.Len(t, premium.Reminders, 2)
	assert.Equal(t, event.ChannelPush, premium.Reminders[1].Channel)
	assert.Equal(t, 24*60, premium.Reminders[1].TimeBefore)

	feeding := createInput(date)
	feeding.Type = event.TypeFeeding
	fed, err := f.svc.CreateEvent(ctx, "u3", "a3", feeding, event.TierPremium)
	require.NoError(t, err)
	require.Len(t, fed.Reminders, 2)
	assert.Equal(t, 15, fed.Reminders[1].TimeBefore)

	// explicit reminders suppress the defaults
	in := createInput(date)
	in.Reminders = []event.ReminderInput{{Channel: event.ChannelSMS, TimeBefore: 10}}
	custom, err := f.svc.CreateEvent(ctx, "u4", "a4", in, event.TierPremium)
	require.NoError(t, err)
	require.Len(t, custom.Reminders, 1)
	assert.Equal(t, event.ChannelSMS, custom.Reminders[0].Channel)
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(time.Now().Add(24*time.Hour)), event.TierBasic)
	require.NoError(t, err)

	title := "filter rinse"
	typ := event.TypeFilterCleaning
	got, err := f.svc.UpdateEvent(ctx, e.ID, "u1", event.UpdateInput{Title: &title, Type: &typ})
	require.NoError(t, err)
	assert.Equal(t, "filter rinse", got.Title)
	assert.Equal(t, event.TypeFilterCleaning, got.Type)

	// owner mismatch reads as not-found
	_, err = f.svc.UpdateEvent(ctx, e.ID, "intruder", event.UpdateInput{Title: &title})
	require.ErrorIs(t, err, event.ErrNotFound)

	// terminal events reject updates
	_, err = f.svc.CompleteEvent(ctx, e.ID, "u1", "")
	require.NoError(t, err)
	_, err = f.svc.UpdateEvent(ctx, e.ID, "u1", event.UpdateInput{Title: &title})
	require.ErrorIs(t, err, event.ErrConflict)
	_, err = f.svc.CancelEvent(ctx, e.ID, "u1", "late cancel")
	require.ErrorIs(t, err, event.ErrConflict)
}

func TestCompleteEventSpawnsSuccessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := createInput(time.Now().Add(time.Hour))
	in.Recurring = true
	in.RecurrencePattern = &event.RecurrencePattern{Frequency: event.Weekly}
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", in, event.TierBasic)
	require.NoError(t, err)
	f.drain()

	done, err := f.svc.CompleteEvent(ctx, e.ID, "u1", "all good")
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, done.Status)

	topics := f.topics()
	assert.Contains(t, topics, event.TopicRecurringCreated)
	assert.Contains(t, topics, event.TopicCompleted)

	// the successor is a second persisted event
	n, err := f.repo.CountByUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// completing again conflicts
	_, err = f.svc.CompleteEvent(ctx, e.ID, "u1", "")
	require.ErrorIs(t, err, event.ErrConflict)
}

func TestCompleteEventNoSuccessorPastEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	end := time.Now().Add(2 * time.Hour)
	in := createInput(time.Now().Add(time.Hour))
	in.Recurring = true
	in.RecurrencePattern = &event.RecurrencePattern{Frequency: event.Weekly}
	in.RecurrenceEndDate = &end
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", in, event.TierBasic)
	require.NoError(t, err)

	_, err = f.svc.CompleteEvent(ctx, e.ID, "u1", "")
	require.NoError(t, err)

	n, err := f.repo.CountByUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "exhausted recurrence must not spawn a successor")
}

func TestCancelAndReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(time.Now().Add(24*time.Hour)), event.TierBasic)
	require.NoError(t, err)

	newDate := time.Now().Add(72 * time.Hour)
	moved, err := f.svc.RescheduleEvent(ctx, e.ID, "u1", newDate)
	require.NoError(t, err)
	assert.True(t, moved.ScheduledDate.Equal(newDate))

	_, err = f.svc.RescheduleEvent(ctx, e.ID, "u1", time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, event.ErrValidation)

	cancelled, err := f.svc.CancelEvent(ctx, e.ID, "u1", "tank move")
	require.NoError(t, err)
	assert.Equal(t, event.StatusCancelled, cancelled.Status)

	_, err = f.svc.CancelEvent(ctx, e.ID, "u1", "again")
	require.ErrorIs(t, err, event.ErrConflict)
	_, err = f.svc.RescheduleEvent(ctx, e.ID, "u1", newDate)
	require.ErrorIs(t, err, event.ErrConflict)
	_, err = f.svc.CompleteEvent(ctx, e.ID, "u1", "")
	require.ErrorIs(t, err, event.ErrConflict)
}

func TestReminderQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(time.Now().Add(24*time.Hour)), event.TierBasic)
	require.NoError(t, err)
	require.Len(t, e.Reminders, 1)

	// basic allows a single reminder and the default is already attached
	_, err = f.svc.AddReminder(ctx, e.ID, "u1", event.ReminderInput{Channel: event.ChannelPush}, event.TierBasic)
	require.ErrorIs(t, err, event.ErrQuotaExceeded)

	// premium allows five
	got, err := f.svc.AddReminder(ctx, e.ID, "u1", event.ReminderInput{Channel: event.ChannelPush}, event.TierPremium)
	require.NoError(t, err)
	require.Len(t, got.Reminders, 2)

	// offsets below the minimum are rejected
	_, err = f.svc.AddReminder(ctx, e.ID, "u1", event.ReminderInput{TimeBefore: 2}, event.TierPremium)
	require.ErrorIs(t, err, event.ErrValidation)
}

func TestRemoveReminderNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(time.Now().Add(24*time.Hour)), event.TierBasic)
	require.NoError(t, err)

	_, err = f.svc.RemoveReminder(ctx, e.ID, "u1", "missing")
	require.ErrorIs(t, err, event.ErrNotFound)

	got, err := f.svc.RemoveReminder(ctx, e.ID, "u1", e.Reminders[0].ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reminders)
}

func TestProcessRemindersIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// scheduled 30 minutes out with a 60-minute reminder: due now
	in := createInput(time.Now().Add(30 * time.Minute))
	in.Reminders = []event.ReminderInput{{Channel: event.ChannelEmail, TimeBefore: 60}}
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", in, event.TierBasic)
	require.NoError(t, err)
	f.drain()

	require.NoError(t, f.svc.ProcessReminders(ctx))
	topics := f.topics()
	require.Len(t, topics, 1)
	assert.Equal(t, event.TopicReminderDue, topics[0])

	stored, err := f.repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, stored.Reminders[0].Sent)
	require.NotNil(t, stored.Reminders[0].SentAt)

	// second pass: nothing left to send
	require.NoError(t, f.svc.ProcessReminders(ctx))
	assert.Empty(t, f.topics())
}

func TestProcessRemindersFailureKeepsReminderEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("u1", "a1", event.TypeWaterChange, "topup", time.Now().Add(30*time.Minute))
	e.AddReminder(event.NewReminder(event.ChannelEmail, 60))
	require.NoError(t, f.repo.Create(ctx, e))

	// no bus attached: the publish fails and the reminder is marked failed
	detached := event.NewService(f.repo, nil, event.DefaultLimits(), logx.Nop())
	require.NoError(t, detached.ProcessReminders(ctx))

	stored, err := f.repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	r := stored.Reminders[0]
	assert.False(t, r.Sent)
	assert.NotEmpty(t, r.Error)
	assert.Nil(t, r.SentAt)

	// the next sweep with a working bus picks it up and clears the error
	require.NoError(t, f.svc.ProcessReminders(ctx))
	topics := f.topics()
	require.Len(t, topics, 1)
	assert.Equal(t, event.TopicReminderDue, topics[0])

	stored, err = f.repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	r = stored.Reminders[0]
	assert.True(t, r.Sent)
	assert.Empty(t, r.Error)
}

func TestProcessOverdueIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// seed a past SCHEDULED event directly; CreateEvent rejects past dates
	past := event.New("u1", "a1", event.TypeWaterTest, "missed test", time.Now().Add(-2*time.Hour))
	require.NoError(t, f.repo.Create(ctx, past))
	future := event.New("u1", "a1", event.TypeWaterTest, "future test", time.Now().Add(2*time.Hour))
	require.NoError(t, f.repo.Create(ctx, future))

	require.NoError(t, f.svc.ProcessOverdueEvents(ctx))
	topics := f.topics()
	require.Len(t, topics, 1)
	assert.Equal(t, event.TopicOverdue, topics[0])

	stored, err := f.repo.FindByID(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusOverdue, stored.Status)

	untouched, err := f.repo.FindByID(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusScheduled, untouched.Status)

	// the sweep only matches SCHEDULED, so a rerun is silent
	require.NoError(t, f.svc.ProcessOverdueEvents(ctx))
	assert.Empty(t, f.topics())
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateEvent(ctx, "u1", "a1", createInput(time.Now().Add(24*time.Hour)), event.TierBasic)
	require.NoError(t, err)
	f.drain()

	require.ErrorIs(t, f.svc.DeleteEvent(ctx, e.ID, "intruder"), event.ErrNotFound)
	require.NoError(t, f.svc.DeleteEvent(ctx, e.ID, "u1"))

	topics := f.topics()
	require.Len(t, topics, 1)
	assert.Equal(t, event.TopicDeleted, topics[0])

	_, err = f.svc.GetEvent(ctx, e.ID, "u1")
	require.ErrorIs(t, err, event.ErrNotFound)
}

func TestListAquariumEventsFiltersOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := time.Now().Add(24 * time.Hour)

	_, err := f.svc.CreateEvent(ctx, "u1", "shared", createInput(date), event.TierBasic)
	require.NoError(t, err)
	_, err = f.svc.CreateEvent(ctx, "u2", "shared", createInput(date), event.TierBasic)
	require.NoError(t, err)

	got, err := f.svc.ListAquariumEvents(ctx, "shared", "u1", event.FindOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
}
