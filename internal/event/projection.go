package event

import (
	"context"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Occurrence is one concrete slot in a user's projected schedule.
type Occurrence struct {
	EventID string    `json:"eventId"`
	Title   string    `json:"title"`
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
}

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

// Sunday-Saturday, matching the 0-6 convention of DaysOfWeek.
var rruleWeekdays = []rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// Projection expands the pattern into concrete dates within (after, until],
// honoring the DaysOfWeek/DayOfMonth/MonthOfYear hints. It is a display
// helper only; successor creation uses NextOccurrence, whose plain interval
// arithmetic is authoritative.
func (p RecurrencePattern) Projection(start, after, until time.Time) []time.Time {
	freq, ok := rruleFreq[p.Frequency]
	if !ok || !until.After(after) {
		return nil
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: p.interval(),
		Dtstart:  start,
		Until:    until,
	}
	if len(p.DaysOfWeek) > 0 {
		days := make([]rrule.Weekday, 0, len(p.DaysOfWeek))
		for _, d := range p.DaysOfWeek {
			if d >= 0 && d <= 6 {
				days = append(days, rruleWeekdays[d])
			}
		}
		opt.Byweekday = days
	}
	if p.DayOfMonth >= 1 && p.DayOfMonth <= 31 {
		opt.Bymonthday = []int{p.DayOfMonth}
	}
	if p.MonthOfYear >= 1 && p.MonthOfYear <= 12 {
		opt.Bymonth = []int{p.MonthOfYear}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil
	}
	return r.Between(after, until, false)
}

// UpcomingSchedule projects the user's scheduled events over the next days,
// expanding recurring ones into their individual occurrences, ordered by
// time.
func (s *Service) UpcomingSchedule(ctx context.Context, userID string, days int) ([]Occurrence, error) {
	if days <= 0 {
		days = 7
	}
	events, err := s.repo.FindUpcoming(ctx, userID, days)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	horizon := now.AddDate(0, 0, days)
	var out []Occurrence
	for _, e := range events {
		out = append(out, Occurrence{EventID: e.ID, Title: e.Title, Type: e.Type, At: e.ScheduledDate})
		if !e.Recurring || e.RecurrencePattern == nil {
			continue
		}
		until := horizon
		if e.RecurrenceEndDate != nil && e.RecurrenceEndDate.Before(until) {
			until = *e.RecurrenceEndDate
		}
		for _, at := range e.RecurrencePattern.Projection(e.ScheduledDate, e.ScheduledDate, until) {
			out = append(out, Occurrence{EventID: e.ID, Title: e.Title, Type: e.Type, At: at})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
