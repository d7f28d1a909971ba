package event

import (
	"testing"
)

func TestProjectionDaily(t *testing.T) {
	start := mustDate(t, "2024-02-01T09:00:00Z")
	p := RecurrencePattern{Frequency: Daily}

	// both window endpoints are occurrences and both are excluded
	got := p.Projection(start, start, start.AddDate(0, 0, 4))
	if len(got) != 3 {
		t.Fatalf("occurrences = %d, want 3", len(got))
	}
	for i, at := range got {
		want := start.AddDate(0, 0, i+1)
		if !at.Equal(want) {
			t.Fatalf("occurrence[%d] = %v, want %v", i, at, want)
		}
	}
}

func TestProjectionWeeklyInterval(t *testing.T) {
	start := mustDate(t, "2024-02-01T09:00:00Z")
	p := RecurrencePattern{Frequency: Weekly, Interval: 2}

	got := p.Projection(start, start, start.AddDate(0, 0, 30))
	if len(got) != 2 {
		t.Fatalf("occurrences = %d, want 2", len(got))
	}
	if !got[0].Equal(mustDate(t, "2024-02-15T09:00:00Z")) {
		t.Fatalf("first = %v", got[0])
	}
	if !got[1].Equal(mustDate(t, "2024-02-29T09:00:00Z")) {
		t.Fatalf("second = %v", got[1])
	}
}

func TestProjectionDaysOfWeek(t *testing.T) {
	// 2024-02-05 is a Monday; project Mon+Fri for two weeks
	start := mustDate(t, "2024-02-05T08:00:00Z")
	p := RecurrencePattern{Frequency: Weekly, DaysOfWeek: []int{1, 5}}

	got := p.Projection(start, start, start.AddDate(0, 0, 14))
	want := []string{
		"2024-02-09T08:00:00Z",
		"2024-02-12T08:00:00Z",
		"2024-02-16T08:00:00Z",
	}
	if len(got) != len(want) {
		t.Fatalf("occurrences = %d, want %d (%v)", len(got), len(want), got)
	}
	for i, w := range want {
		if !got[i].Equal(mustDate(t, w)) {
			t.Fatalf("occurrence[%d] = %v, want %s", i, got[i], w)
		}
	}
}

func TestProjectionBounds(t *testing.T) {
	start := mustDate(t, "2024-02-01T09:00:00Z")
	p := RecurrencePattern{Frequency: Daily}

	if got := p.Projection(start, start, start); got != nil {
		t.Fatalf("empty window projected %v", got)
	}
	bad := RecurrencePattern{Frequency: "sometimes"}
	if got := bad.Projection(start, start, start.AddDate(0, 0, 7)); got != nil {
		t.Fatalf("unknown frequency projected %v", got)
	}
}

func TestProjectionExcludesStart(t *testing.T) {
	// the anchor date itself is the base event, not a projected occurrence
	start := mustDate(t, "2024-02-01T09:00:00Z")
	p := RecurrencePattern{Frequency: Weekly}

	got := p.Projection(start, start, start.AddDate(0, 0, 8))
	if len(got) != 1 {
		t.Fatalf("occurrences = %d, want 1 (%v)", len(got), got)
	}
	if got[0].Equal(start) {
		t.Fatal("projection must not repeat the anchor date")
	}
}
