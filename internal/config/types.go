package config

// Config is the full on-disk configuration. Decoding is strict: unknown
// keys are rejected so typos surface on reload instead of being silently
// ignored.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Limits    *LimitsConfig   `json:"limits,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the repository backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./aquakeep.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls the batch job runner.
//
// ReminderInterval and OverdueInterval accept anything ParseSchedule does
// (cron spec, interval duration, HH:MM). Defaults: reminders every 5m,
// overdue sweep hourly.
type SchedulerConfig struct {
	Enabled          bool   `json:"enabled"`
	Workers          int    `json:"workers,omitempty"`
	DefaultTimeout   string `json:"default_timeout,omitempty"`
	HistorySize      int    `json:"history_size,omitempty"`
	RetryMax         int    `json:"retry_max,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	ReminderInterval string `json:"reminder_interval,omitempty"`
	OverdueInterval  string `json:"overdue_interval,omitempty"`
	// OverdueAt pins the overdue sweep to a daily wall-clock time ("03:30"
	// in the scheduler timezone) and takes precedence over OverdueInterval.
	OverdueAt string `json:"overdue_at,omitempty"`
}

// NotifyConfig controls the notification forwarder. If the whole section is
// omitted the forwarder defaults to enabled.
type NotifyConfig struct {
	Enabled    bool    `json:"enabled"`
	Workers    int     `json:"workers,omitempty"`
	QueueSize  int     `json:"queue_size,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// LimitsConfig overrides per-tier quotas. Missing tiers keep their built-in
// defaults; -1 means unlimited.
type LimitsConfig struct {
	EventsPerAquarium map[string]int `json:"events_per_aquarium,omitempty"`
	RemindersPerEvent map[string]int `json:"reminders_per_event,omitempty"`
}
