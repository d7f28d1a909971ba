package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	logx "aquakeep/pkg/logx"
)

func (s *Service) enqueue(j job) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping job", logx.String("job", j.name))
		return
	}
	select {
	case q <- j:
	default:
		s.log.Warn("scheduler queue full; dropping job",
			logx.String("job", j.name),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job, idx int) {
	_ = idx
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execOne(ctx, stopCh, j)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, j job) {
	start := time.Now()
	s.publish(TopicJobStarted, JobRun{ID: j.id, Name: j.name, Started: start})

	// Mark running for overlap control (shared state between cron invocations).
	if j.state != nil {
		j.state.mu.Lock()
		j.state.running = true
		j.state.mu.Unlock()
		defer func() {
			j.state.mu.Lock()
			j.state.running = false
			j.state.mu.Unlock()
		}()
	}

	// Copy scheduler config to avoid data races with Apply().
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	opt := j.opt.withDefaults(cfg)
	retries := opt.RetryMax
	if retries < 0 {
		retries = 0
	}

	var err error
	attempts := 0
	maxAttempts := 1 + retries
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt doesn't poison retries.
		runCtx := ctx
		var cancel func()
		if j.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		}
		err = j.run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(opt, attempt)
		if delay > 0 {
			s.log.Debug("job retry scheduled",
				logx.String("job", j.name),
				logx.Int("attempt", attempt+1),
				logx.Duration("delay", delay),
				logx.Err(err))
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				err = errors.New("scheduler stopped")
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: j.id, Name: j.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed",
			logx.String("job", j.name),
			logx.Err(err),
			logx.Duration("dur", dur),
			logx.Int("attempts", attempts))
		s.publish(TopicJobFailed, JobRun{ID: j.id, Name: j.name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error})
	} else {
		// Avoid noisy logs for very frequent jobs: only elevate to INFO when it
		// took noticeable time.
		if dur >= 750*time.Millisecond {
			s.log.Info("job completed", logx.String("job", j.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			s.log.Debug("job completed", logx.String("job", j.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		s.publish(TopicJobFinished, JobRun{ID: j.id, Name: j.name, Started: start, Duration: dur, Attempts: attempts})
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

func backoffDelay(opt JobOptions, retry int) time.Duration {
	// retry starts at 1 (first retry)
	base := opt.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := opt.RetryMaxDelay
	if maxD <= 0 {
		maxD = 15 * time.Second
	}
	j := opt.RetryJitter
	if j <= 0 {
		j = 0.2
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	// jitter [1-j, 1+j]
	r := (rand.Float64()*2 - 1) * j
	d = time.Duration(float64(d) * (1 + r))
	if d < 0 {
		d = 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
