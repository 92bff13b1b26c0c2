package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	logx "sage/pkg/logx"
)

// Run schedules Tick every Interval until ctx is done. A tick still running
// when the next one is due makes the next one skip. Run returns after the
// in-flight tick (which sees the cancelled ctx) has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return errors.New("broadcast: scheduler already running")
	}
	cfg := s.cfg
	cl := cronLogger{log: s.log}
	// One guarded job for every schedule entry and the start tick, so a
	// reschedule can't overlap a tick that is still running.
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { s.Tick(ctx) }))
	c := cron.New(cron.WithLogger(cl))
	s.c = c
	s.job = job
	s.entry = c.Schedule(cron.Every(cfg.Interval), job)
	s.mu.Unlock()

	c.Start()
	s.log.Info("broadcast scheduled", logx.Duration("interval", cfg.Interval), logx.Bool("run_on_start", cfg.RunOnStart))

	var wg sync.WaitGroup
	if cfg.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	wg.Wait()

	s.mu.Lock()
	s.c = nil
	s.entry = 0
	s.job = nil
	s.mu.Unlock()
	s.log.Info("broadcast stopped")
	return nil
}

// Apply swaps the configuration. A changed interval reschedules a running
// scheduler; other fields take effect on the next tick.
func (s *Scheduler) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if old.RatePerSec != cfg.RatePerSec {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if s.c != nil && old.Interval != cfg.Interval {
		s.c.Remove(s.entry)
		s.entry = s.c.Schedule(cron.Every(cfg.Interval), s.job)
		s.log.Info("broadcast rescheduled", logx.Duration("interval", cfg.Interval))
	}
}

// Snapshot returns the schedule and a copy of the tick history.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Interval: s.cfg.Interval,
		Running:  s.c != nil,
		History:  make([]Report, len(s.history)),
	}
	copy(st.History, s.history)
	if s.c != nil {
		e := s.c.Entry(s.entry)
		st.Next = e.Next
		st.Prev = e.Prev
	}
	return st
}

// cronLogger routes cron's own logging into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case time.Time:
			out = append(out, logx.Time(k, v))
		case string:
			out = append(out, logx.String(k, v))
		default:
			out = append(out, logx.Any(k, v))
		}
	}
	return out
}
