package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/services/quarterly"
)

// Updater runs one quarterly update.
type Updater interface {
	Update(ctx context.Context, req quarterly.Request) (*quarterly.Result, error)
}

// Scheduler runs the quarterly updater for each configured market on a
// cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	markets []string
	updater Updater
	logger  *common.Logger
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// NewScheduler validates spec (standard five-field cron) and registers the
// update job. Overlapping runs are skipped.
func NewScheduler(spec string, markets []string, updater Updater, logger *common.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("%w: scheduler.markets is empty", common.ErrConfiguration)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: scheduler.spec %q: %v", common.ErrConfiguration, spec, err)
	}

	log := logger.With("component", "scheduler")
	cl := cronLogger{logger: log}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		spec:    spec,
		markets: markets,
		updater: updater,
		logger:  log,
		now:     time.Now,
		ctx:     context.Background(),
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler.spec %q: %v", common.ErrConfiguration, spec, err)
	}
	s.entry = id

	log.Info().Str("schedule", spec).Strs("markets", markets).Msg("Quarterly update job registered")
	return s, nil
}

// Start starts the cron loop. Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Time("next", s.Next()).Msg("Scheduler started")

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop cancels any running update and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// NextAfter returns the first run time after t.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.cron.Entry(s.entry).Schedule.Next(t)
}

// RunOnce updates every market for the period containing the current
// date. A failed market is logged and the rest still run; the failures are
// returned keyed by market.
func (s *Scheduler) RunOnce(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	period, err := common.ResolvePeriod("", 0, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled update: cannot resolve period")
		for _, m := range s.markets {
			failed[m] = err
		}
		return failed
	}

	for _, m := range s.markets {
		if err := ctx.Err(); err != nil {
			failed[m] = err
			continue
		}
		start := time.Now()
		res, err := s.updater.Update(ctx, quarterly.Request{Market: m, Period: period})
		if err != nil {
			failed[m] = err
			s.logger.Error().Err(err).Str("market", m).Str("period", period.String()).Msg("Scheduled update failed")
			continue
		}
		s.logger.Info().
			Str("market", m).
			Str("fund", res.Fund.Name).
			Int("added", len(res.Diff.Added)).
			Int("removed", len(res.Diff.Removed)).
			Int("violations", len(res.Violations)).
			Dur("elapsed", time.Since(start)).
			Msg("Scheduled update complete")
	}
	return failed
}
