package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"aquakeep/internal/event"
)

// Memory is the in-process repository used by tests and dev setups. All
// entities are deep-copied on the way in and out, so callers can mutate
// freely and nothing is persisted until Update.
type Memory struct {
	mu     sync.RWMutex
	events map[string]*event.Event
}

func NewMemory() *Memory {
	return &Memory{events: map[string]*event.Event{}}
}

func (m *Memory) Create(_ context.Context, e *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = cloneEvent(e)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.events[id]; ok {
		return cloneEvent(e), nil
	}
	return nil, nil
}

func (m *Memory) FindByIDAndUser(_ context.Context, id, userID string) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.events[id]; ok && e.UserID == userID {
		return cloneEvent(e), nil
	}
	return nil, nil
}

func (m *Memory) FindByAquarium(_ context.Context, aquariumID string, opts event.FindOptions) ([]*event.Event, error) {
	return m.collect(func(e *event.Event) bool { return e.AquariumID == aquariumID }, opts), nil
}

func (m *Memory) FindByUser(_ context.Context, userID string, opts event.FindOptions) ([]*event.Event, error) {
	return m.collect(func(e *event.Event) bool { return e.UserID == userID }, opts), nil
}

func (m *Memory) FindUpcoming(_ context.Context, userID string, days int) ([]*event.Event, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now()
	end := now.AddDate(0, 0, days)
	out := m.collect(func(e *event.Event) bool {
		return e.UserID == userID &&
			e.Status == event.StatusScheduled &&
			!e.ScheduledDate.Before(now) && !e.ScheduledDate.After(end)
	}, event.FindOptions{Limit: -1})
	return out, nil
}

func (m *Memory) FindOverdue(_ context.Context, userID string) ([]*event.Event, error) {
	now := time.Now()
	return m.collect(func(e *event.Event) bool {
		return e.UserID == userID &&
			e.Status == event.StatusScheduled && e.ScheduledDate.Before(now)
	}, event.FindOptions{Limit: -1}), nil
}

func (m *Memory) FindAllOverdue(_ context.Context) ([]*event.Event, error) {
	now := time.Now()
	return m.collect(func(e *event.Event) bool {
		return e.Status == event.StatusScheduled && e.ScheduledDate.Before(now)
	}, event.FindOptions{Limit: -1}), nil
}

func (m *Memory) FindDueReminders(_ context.Context, window time.Duration) ([]*event.Event, error) {
	now := time.Now()
	horizon := now.Add(window)
	return m.collect(func(e *event.Event) bool {
		if e.Status != event.StatusScheduled || e.ScheduledDate.Before(now) {
			return false
		}
		for _, r := range e.Reminders {
			if !r.Sent && !r.ReminderTime(e.ScheduledDate).After(horizon) {
				return true
			}
		}
		return false
	}, event.FindOptions{Limit: -1}), nil
}

func (m *Memory) Update(_ context.Context, e *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return event.ErrNotFound
	}
	m.events[e.ID] = cloneEvent(e)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) CountByUser(_ context.Context, userID string, status event.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.events {
		if e.UserID == userID && (status == "" || e.Status == status) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountByAquarium(_ context.Context, aquariumID string, status event.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.events {
		if e.AquariumID == aquariumID && (status == "" || e.Status == status) {
			n++
		}
	}
	return n, nil
}

// collect snapshots matching events, then applies the option filters,
// sorting and pagination. A Limit of -1 disables pagination (internal
// queries).
func (m *Memory) collect(match func(*event.Event) bool, opts event.FindOptions) []*event.Event {
	m.mu.RLock()
	out := make([]*event.Event, 0, 16)
	for _, e := range m.events {
		if match(e) && matchOptions(e, opts) {
			out = append(out, cloneEvent(e))
		}
	}
	m.mu.RUnlock()

	sortEvents(out, opts)
	return paginate(out, opts)
}

func matchOptions(e *event.Event, opts event.FindOptions) bool {
	if opts.Type != "" && e.Type != opts.Type {
		return false
	}
	if opts.Status != "" && e.Status != opts.Status {
		return false
	}
	if opts.Recurring != nil && e.Recurring != *opts.Recurring {
		return false
	}
	if !opts.From.IsZero() && e.ScheduledDate.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && e.ScheduledDate.After(opts.To) {
		return false
	}
	return true
}

func sortEvents(events []*event.Event, opts event.FindOptions) {
	less := func(a, b *event.Event) bool { return a.ScheduledDate.Before(b.ScheduledDate) }
	switch opts.SortBy {
	case "createdAt":
		less = func(a, b *event.Event) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "title":
		less = func(a, b *event.Event) bool { return a.Title < b.Title }
	}
	sort.SliceStable(events, func(i, j int) bool {
		if opts.SortDesc {
			return less(events[j], events[i])
		}
		return less(events[i], events[j])
	})
}

func paginate(events []*event.Event, opts event.FindOptions) []*event.Event {
	if opts.Limit < 0 {
		return events
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultPageLimit
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(events) {
		return []*event.Event{}
	}
	end := start + limit
	if end > len(events) {
		end = len(events)
	}
	return events[start:end]
}

func cloneEvent(e *event.Event) *event.Event {
	cp := *e
	if e.RecurrencePattern != nil {
		p := *e.RecurrencePattern
		if len(p.DaysOfWeek) > 0 {
			p.DaysOfWeek = append([]int(nil), p.DaysOfWeek...)
		}
		cp.RecurrencePattern = &p
	}
	if e.RecurrenceEndDate != nil {
		d := *e.RecurrenceEndDate
		cp.RecurrenceEndDate = &d
	}
	if e.CompletedAt != nil {
		d := *e.CompletedAt
		cp.CompletedAt = &d
	}
	cp.Reminders = make([]*event.Reminder, len(e.Reminders))
	for i, r := range e.Reminders {
		rc := *r
		if r.SentAt != nil {
			d := *r.SentAt
			rc.SentAt = &d
		}
		cp.Reminders[i] = &rc
	}
	return &cp
}
