package app

import (
	"fmt"
	"strings"
	"time"

	"aquakeep/internal/config"
	"aquakeep/internal/event"
	"aquakeep/internal/notify"
	"aquakeep/internal/scheduler"
	"aquakeep/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}
	timeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
		RetryMax:       cfg.Scheduler.RetryMax,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	// omitted section defaults to enabled
	if cfg == nil || cfg.Notify == nil {
		return notify.Config{Enabled: true}
	}
	n := cfg.Notify
	return notify.Config{
		Enabled:    n.Enabled,
		Workers:    n.Workers,
		QueueSize:  n.QueueSize,
		RatePerSec: n.RatePerSec,
		Burst:      n.Burst,
	}
}

// mapLimits overlays configured quotas on the built-in defaults; tiers not
// mentioned in the config keep their defaults.
func mapLimits(lc *config.LimitsConfig) event.Limits {
	limits := event.DefaultLimits()
	if lc == nil {
		return limits
	}
	for tier, n := range lc.EventsPerAquarium {
		limits.EventsPerAquarium[event.Tier(tier)] = n
	}
	for tier, n := range lc.RemindersPerEvent {
		limits.RemindersPerEvent[event.Tier(tier)] = n
	}
	return limits
}

// restartRequired lists config sections whose changes cannot be pushed into
// a running process and only take effect after a restart.
func restartRequired(curStorage storage.Config, curNotify notify.Config, cfg *config.Config) []string {
	var sections []string
	if sc, err := mapStorageConfig(cfg); err == nil && sc != curStorage {
		sections = append(sections, "storage")
	}
	if mapNotifyConfig(cfg) != curNotify {
		sections = append(sections, "notify")
	}
	return sections
}

// validate rejects a config before it is committed on hot-reload.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if cfg.Scheduler.RetryMax < 0 {
		return fmt.Errorf("scheduler.retry_max must be >= 0")
	}
	if _, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	for _, spec := range []struct{ name, raw string }{
		{"scheduler.reminder_interval", cfg.Scheduler.ReminderInterval},
		{"scheduler.overdue_interval", cfg.Scheduler.OverdueInterval},
	} {
		if strings.TrimSpace(spec.raw) == "" {
			continue
		}
		if _, err := scheduler.ParseSchedule(spec.raw); err != nil {
			return fmt.Errorf("%s: %w", spec.name, err)
		}
	}
	if at := strings.TrimSpace(cfg.Scheduler.OverdueAt); at != "" {
		if _, _, err := scheduler.ParseDailyTime(at); err != nil {
			return fmt.Errorf("scheduler.overdue_at: %w", err)
		}
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if cfg.Notify != nil {
		if cfg.Notify.Workers < 0 || cfg.Notify.QueueSize < 0 || cfg.Notify.RatePerSec < 0 {
			return fmt.Errorf("notify: workers, queue_size and rate_per_sec must be >= 0")
		}
	}
	if cfg.Limits != nil {
		for tier, n := range cfg.Limits.EventsPerAquarium {
			if n < event.Unlimited {
				return fmt.Errorf("limits.events_per_aquarium.%s must be >= -1", tier)
			}
		}
		for tier, n := range cfg.Limits.RemindersPerEvent {
			if n < event.Unlimited {
				return fmt.Errorf("limits.reminders_per_event.%s must be >= -1", tier)
			}
		}
	}
	return nil
}
