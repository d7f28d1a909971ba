// Package scheduler runs the periodic maintenance jobs (reminder dispatch,
// overdue sweep) on a cron-backed worker pool.
//
// Jobs are registered by name with a cron spec or interval; registration is
// upsert-by-name so hot-reloads never duplicate schedules. Execution runs on
// a small worker pool with per-attempt timeouts, exponential retry with
// jitter, and overlap-skip so a slow sweep is never stacked on top of itself.
// Job lifecycle transitions are published on the in-process bus
// (job.started, job.finished, job.failed, job.skipped).
package scheduler
