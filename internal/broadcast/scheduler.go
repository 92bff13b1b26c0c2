package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sage/internal/catalog"
	"sage/internal/transport"
	logx "sage/pkg/logx"
)

// Scheduler runs broadcast ticks. Tick can be called directly; Run drives it
// on the configured interval.
type Scheduler struct {
	deps    Deps
	log     logx.Logger
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	history []Report

	c     *cron.Cron
	entry cron.EntryID
	job   cron.Job
}

func New(cfg Config, deps Deps) *Scheduler {
	cfg = cfg.withDefaults()
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		deps:    deps,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Tick runs one broadcast cycle and records it in the history. Every failure
// is isolated to its category or destination and reported, never returned.
func (s *Scheduler) Tick(ctx context.Context) Report {
	s.mu.Lock()
	cfg := s.cfg
	limiter := s.limiter
	s.mu.Unlock()

	rep := Report{ID: uuid.NewString(), Started: time.Now()}
	log := s.log.With(logx.String("tick", rep.ID))
	defer func() {
		rep.Duration = time.Since(rep.Started)
		s.record(rep, cfg.HistorySize)
	}()

	snap, ok, err := s.deps.Reader.Snapshot(ctx)
	switch {
	case err != nil:
		rep.Skipped, rep.SkipReason = true, err.Error()
		log.Warn("tick skipped: subscriber snapshot unavailable", logx.Err(err))
		return rep
	case !ok:
		rep.Skipped, rep.SkipReason = true, "subscribers not ready"
		log.Info("tick skipped: subscribers not ready")
		return rep
	}

	cats := make([]catalog.Category, 0, len(snap))
	for c := range snap {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	results := make([]CategoryResult, len(cats))
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, cat := range cats {
		i, cat := i, cat
		g.Go(func() error {
			results[i] = s.runCategory(ctx, log, cfg, limiter, cat, snap[cat])
			return nil
		})
	}
	_ = g.Wait()

	rep.Categories = results
	for _, r := range results {
		if r.Aborted {
			rep.Aborted = true
		}
		if r.FetchErr != nil {
			rep.FetchFailed++
		}
		if r.Fetched {
			rep.Fetched++
		}
		sent, failed := r.counts()
		rep.Sent += sent
		rep.Failed += failed
	}

	log.Info("tick done",
		logx.Int("categories", len(cats)),
		logx.Int("fetched", rep.Fetched),
		logx.Int("fetch_failed", rep.FetchFailed),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Bool("aborted", rep.Aborted),
		logx.Duration("took", time.Since(rep.Started)),
	)
	return rep
}

func (s *Scheduler) runCategory(ctx context.Context, log logx.Logger, cfg Config, limiter *rate.Limiter, cat catalog.Category, dests []string) (res CategoryResult) {
	res = CategoryResult{Category: cat, Destinations: len(dests)}
	log = log.With(logx.String("category", string(cat)))
	defer func() {
		if r := recover(); r != nil {
			res.FetchErr = fmt.Errorf("panic: %v", r)
			log.Error("panic in category broadcast", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	if len(dests) == 0 {
		res.Skipped = true
		return res
	}
	if ctx.Err() != nil {
		res.Aborted = true
		return res
	}

	items, err := s.deps.Fetcher.FetchTopItems(ctx, cat)
	if err != nil {
		res.FetchErr = err
		log.Warn("fetch failed", logx.Err(err))
		return res
	}
	if len(items) == 0 {
		res.FetchErr = fmt.Errorf("%w: no books found in %q", catalog.ErrEmptyResult, string(cat))
		log.Warn("fetch failed", logx.Err(res.FetchErr))
		return res
	}
	res.Fetched = true
	res.Quote = items[0]
	text := FormatQuote(res.Quote)

	for _, raw := range dests {
		if ctx.Err() != nil {
			res.Aborted = true
			log.Info("tick cancelled, remaining destinations abandoned", logx.Int("pending", len(dests)-len(res.Delivery)))
			break
		}
		d := s.deliver(ctx, cfg, limiter, raw, text)
		if d.Err != nil {
			log.Warn("delivery failed", logx.String("destination", raw), logx.Err(d.Err))
		} else {
			log.Debug("delivered", logx.String("destination", raw))
		}
		res.Delivery = append(res.Delivery, d)
	}
	return res
}

func (s *Scheduler) deliver(ctx context.Context, cfg Config, limiter *rate.Limiter, raw, text string) (d Delivery) {
	d.Destination = raw
	defer func() {
		if r := recover(); r != nil {
			d.Err = fmt.Errorf("%w: %s: panic: %v", ErrDelivery, raw, r)
		}
	}()

	target, err := transport.ParseTarget(raw)
	if err != nil {
		d.Err = err
		return d
	}
	d.Target = target

	if err := limiter.Wait(ctx); err != nil {
		d.Err = fmt.Errorf("%w: %s: %w", ErrDelivery, raw, err)
		return d
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if _, err := s.deps.Sender.SendText(sctx, target, text, &transport.SendOptions{ParseMode: cfg.ParseMode, DisablePreview: true}); err != nil {
		d.Err = fmt.Errorf("%w: %s: %w", ErrDelivery, raw, err)
	}
	return d
}

func (s *Scheduler) record(rep Report, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rep)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
}
