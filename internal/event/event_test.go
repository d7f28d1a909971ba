package event

import (
	"testing"
	"time"
)

func stubClock(t *testing.T, at time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNextOccurrenceFrequencies(t *testing.T) {
	start := mustDate(t, "2024-02-01T10:00:00Z")
	tests := []struct {
		name    string
		pattern RecurrencePattern
		want    string
	}{
		{"daily", RecurrencePattern{Frequency: Daily}, "2024-02-02T10:00:00Z"},
		{"weekly", RecurrencePattern{Frequency: Weekly}, "2024-02-08T10:00:00Z"},
		{"weekly interval 2", RecurrencePattern{Frequency: Weekly, Interval: 2}, "2024-02-15T10:00:00Z"},
		{"monthly", RecurrencePattern{Frequency: Monthly}, "2024-03-01T10:00:00Z"},
		{"yearly", RecurrencePattern{Frequency: Yearly}, "2025-02-01T10:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.pattern
			e := &Event{Recurring: true, RecurrencePattern: &p, ScheduledDate: start}
			got := e.NextOccurrence()
			if want := mustDate(t, tt.want); !got.Equal(want) {
				t.Fatalf("NextOccurrence() = %v, want %v", got, want)
			}
		})
	}
}

func TestNextOccurrenceBaseIsCompletionDate(t *testing.T) {
	scheduled := mustDate(t, "2024-02-01T10:00:00Z")
	completed := mustDate(t, "2024-02-03T18:30:00Z")
	e := &Event{
		Recurring:         true,
		RecurrencePattern: &RecurrencePattern{Frequency: Weekly},
		ScheduledDate:     scheduled,
		CompletedAt:       &completed,
	}
	got := e.NextOccurrence()
	if want := completed.AddDate(0, 0, 7); !got.Equal(want) {
		t.Fatalf("NextOccurrence() = %v, want %v (completion-anchored)", got, want)
	}
}

func TestNextOccurrenceEndDate(t *testing.T) {
	start := mustDate(t, "2024-02-01T10:00:00Z")

	// next exactly equal to the end date stays eligible
	end := start.AddDate(0, 0, 7)
	e := &Event{Recurring: true, RecurrencePattern: &RecurrencePattern{Frequency: Weekly}, ScheduledDate: start, RecurrenceEndDate: &end}
	if got := e.NextOccurrence(); !got.Equal(end) {
		t.Fatalf("equal-to-end-date should be eligible, got %v", got)
	}

	// next strictly after the end date is not
	earlier := start.AddDate(0, 0, 6)
	e.RecurrenceEndDate = &earlier
	if got := e.NextOccurrence(); !got.IsZero() {
		t.Fatalf("past-end-date should yield zero, got %v", got)
	}
}

func TestNextOccurrenceIneligible(t *testing.T) {
	start := mustDate(t, "2024-02-01T10:00:00Z")

	e := &Event{Recurring: false, ScheduledDate: start}
	if !e.NextOccurrence().IsZero() {
		t.Fatal("non-recurring event should have no next occurrence")
	}

	e = &Event{Recurring: true, ScheduledDate: start}
	if !e.NextOccurrence().IsZero() {
		t.Fatal("recurring without pattern should have no next occurrence")
	}

	e = &Event{Recurring: true, RecurrencePattern: &RecurrencePattern{Frequency: "fortnightly"}, ScheduledDate: start}
	if !e.NextOccurrence().IsZero() {
		t.Fatal("unknown frequency should have no next occurrence")
	}
}

func TestShouldCreateNextOccurrence(t *testing.T) {
	start := mustDate(t, "2024-02-01T10:00:00Z")
	pattern := &RecurrencePattern{Frequency: Weekly}

	e := &Event{Recurring: true, RecurrencePattern: pattern, ScheduledDate: start, Status: StatusCompleted}
	if !e.ShouldCreateNextOccurrence() {
		t.Fatal("completed recurring event should spawn a successor")
	}

	e.Status = StatusScheduled
	if e.ShouldCreateNextOccurrence() {
		t.Fatal("non-completed event must not spawn a successor")
	}

	e.Status = StatusCompleted
	e.Recurring = false
	if e.ShouldCreateNextOccurrence() {
		t.Fatal("non-recurring event must not spawn a successor")
	}

	e.Recurring = true
	earlier := start.AddDate(0, 0, 1)
	e.RecurrenceEndDate = &earlier
	if e.ShouldCreateNextOccurrence() {
		t.Fatal("exhausted recurrence must not spawn a successor")
	}
}

func TestCompleteAppendsNotes(t *testing.T) {
	now := mustDate(t, "2024-02-01T12:00:00Z")
	stubClock(t, now)

	e := New("u1", "a1", TypeWaterChange, "change", now.Add(time.Hour))
	e.Notes = "existing"
	e.Complete("u1", "done 30%")

	if e.Status != StatusCompleted || e.CompletedAt == nil || !e.CompletedAt.Equal(now) {
		t.Fatalf("completion state: %+v", e)
	}
	if e.CompletedBy != "u1" {
		t.Fatalf("CompletedBy = %q", e.CompletedBy)
	}
	if e.Notes != "existing\ndone 30%" {
		t.Fatalf("notes = %q", e.Notes)
	}
}

func TestCancelRecordsReason(t *testing.T) {
	stubClock(t, mustDate(t, "2024-02-01T12:00:00Z"))
	e := New("u1", "a1", TypeFeeding, "feed", timeNow().Add(time.Hour))
	e.Cancel("fish sold")
	if e.Status != StatusCancelled {
		t.Fatalf("status = %s", e.Status)
	}
	if e.Notes != "Cancelled: fish sold" {
		t.Fatalf("notes = %q", e.Notes)
	}
}

func TestRescheduleLeavesOverdue(t *testing.T) {
	stubClock(t, mustDate(t, "2024-02-01T12:00:00Z"))
	e := New("u1", "a1", TypeWaterTest, "test", timeNow().Add(-time.Hour))
	e.Status = StatusOverdue

	newDate := timeNow().Add(48 * time.Hour)
	e.Reschedule(newDate)
	if e.Status != StatusScheduled || !e.ScheduledDate.Equal(newDate) {
		t.Fatalf("reschedule: %+v", e)
	}
}

func TestIsOverdueAndIsDue(t *testing.T) {
	now := mustDate(t, "2024-02-01T12:00:00Z")
	stubClock(t, now)

	e := New("u1", "a1", TypeWaterChange, "x", now.Add(-time.Minute))
	if !e.IsOverdue() {
		t.Fatal("past scheduled event should be overdue")
	}
	e.Status = StatusCompleted
	if e.IsOverdue() {
		t.Fatal("completed event is never overdue")
	}

	e = New("u1", "a1", TypeWaterChange, "x", now)
	if !e.IsDue() {
		t.Fatal("due window is inclusive at now")
	}
	e.ScheduledDate = now.Add(time.Hour)
	if !e.IsDue() {
		t.Fatal("due window is inclusive at now+1h")
	}
	e.ScheduledDate = now.Add(time.Hour + time.Second)
	if e.IsDue() {
		t.Fatal("beyond the window is not due")
	}
	e.ScheduledDate = now.Add(-time.Second)
	if e.IsDue() {
		t.Fatal("past events are not due")
	}
}

func TestNextEventResetsState(t *testing.T) {
	now := mustDate(t, "2024-02-01T12:00:00Z")
	stubClock(t, now)

	e := New("u1", "a1", TypeWaterChange, "weekly change", now.Add(-time.Hour))
	e.Recurring = true
	e.RecurrencePattern = &RecurrencePattern{Frequency: Weekly}
	r := NewReminder(ChannelEmail, 60)
	r.MarkSent()
	e.AddReminder(r)
	e.Complete("u1", "ok")

	succ := e.NextEvent()
	if succ == nil {
		t.Fatal("expected a successor")
	}
	if succ.ID == e.ID {
		t.Fatal("successor must have a fresh id")
	}
	if succ.Status != StatusScheduled || succ.CompletedAt != nil || succ.CompletedBy != "" || succ.Notes != "" {
		t.Fatalf("successor carries completion state: %+v", succ)
	}
	if want := now.AddDate(0, 0, 7); !succ.ScheduledDate.Equal(want) {
		t.Fatalf("successor date = %v, want %v", succ.ScheduledDate, want)
	}
	if len(succ.Reminders) != 1 {
		t.Fatalf("reminders = %d", len(succ.Reminders))
	}
	sr := succ.Reminders[0]
	if sr.ID == r.ID || sr.Sent || sr.SentAt != nil {
		t.Fatalf("successor reminder not reset: %+v", sr)
	}
	if sr.Channel != ChannelEmail || sr.TimeBefore != 60 {
		t.Fatalf("successor reminder lost settings: %+v", sr)
	}
}

func TestRemoveReminder(t *testing.T) {
	e := New("u1", "a1", TypeFeeding, "feed", time.Now().Add(time.Hour))
	r1 := NewReminder(ChannelEmail, 60)
	r2 := NewReminder(ChannelPush, 15)
	e.AddReminder(r1)
	e.AddReminder(r2)

	if !e.RemoveReminder(r1.ID) {
		t.Fatal("expected removal")
	}
	if len(e.Reminders) != 1 || e.Reminders[0].ID != r2.ID {
		t.Fatalf("reminders after removal: %+v", e.Reminders)
	}
	if e.RemoveReminder("nope") {
		t.Fatal("unknown id must report false")
	}
}
