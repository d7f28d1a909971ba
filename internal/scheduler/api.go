package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "aquakeep/pkg/logx"
)

// AddSchedule parses schedule and registers either a cron or interval job.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, fn func(ctx context.Context) error) (string, error) {
	return s.AddScheduleOpt(name, schedule, timeout, JobOptions{}, fn)
}

// AddScheduleOpt is AddSchedule with job options.
func (s *Service) AddScheduleOpt(name, schedule string, timeout time.Duration, opt JobOptions, fn func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCronOpt(name, ps.Cron, timeout, opt, fn)
	case SpecInterval:
		return s.AddIntervalOpt(name, ps.Every, timeout, opt, fn)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, JobOptions{}, fn)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt JobOptions, fn func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	// Upsert by name: remove previous schedule with the same name to prevent
	// duplicates across hot-reloads or repeated registrations.
	_ = s.removeScheduleLocked(name)
	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	opt = opt.withDefaults(s.cfg)
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     fn,
		opt:     opt,
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		err := s.addCronLocked(&s.defs[len(s.defs)-1])
		if err != nil {
			s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		} else {
			s.log.Debug("schedule registered",
				logx.String("name", name),
				logx.String("id", id),
				logx.String("spec", spec),
				logx.Duration("timeout", d.timeout))
		}
		return id, err
	}
	// Scheduler not started/enabled yet: keep definition and register when Start() runs.
	return id, nil
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, fn func(ctx context.Context) error) (string, error) {
	return s.AddIntervalOpt(name, every, timeout, JobOptions{}, fn)
}

func (s *Service) AddIntervalOpt(name string, every, timeout time.Duration, opt JobOptions, fn func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.AddCronOpt(name, fmt.Sprintf("@every %s", every.String()), timeout, opt, fn)
}

// AddDaily registers a job at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, fn func(ctx context.Context) error) (string, error) {
	h, m, err := ParseDailyTime(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCronOpt(name, fmt.Sprintf("%d %d * * *", m, h), timeout, JobOptions{}, fn)
}

// Remove unschedules all schedules with the given name, reporting whether
// anything was removed. Safe when the scheduler is not started.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them
// from cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	// remove from persisted defs regardless of running state
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		if d.opt.Overlap == OverlapSkipIfRunning {
			d.state.mu.Lock()
			running := d.state.running
			d.state.mu.Unlock()
			if running {
				s.log.Debug("schedule skipped, previous run still running", logx.String("job", d.name))
				s.publish(TopicJobSkipped, JobRun{ID: d.id, Name: d.name, Started: time.Now(), Error: "overlap_skip"})
				return
			}
		}
		s.enqueue(job{id: d.id, name: d.name, timeout: d.timeout, run: d.job, opt: d.opt, state: d.state})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}
