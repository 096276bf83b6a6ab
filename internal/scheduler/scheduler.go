package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/recalc"
	"github.com/MGMAppDev/soccerview-sub008/internal/snapshot"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Runner executes the scheduled jobs
type Runner interface {
	Recalculate(ctx context.Context) (*recalc.Summary, error)
	CaptureSnapshot(ctx context.Context, asOf time.Time) (*snapshot.Result, error)
}

// Config holds the job schedules
type Config struct {
	RecalcCron    string
	SnapshotCron  string
	InitialRecalc bool
}

// Scheduler manages the nightly recalculation and daily snapshot jobs.
// A job that is still running when its next tick fires is skipped, and a
// panicking job is recovered.
type Scheduler struct {
	cfg      Config
	runner   Runner
	cron     *cron.Cron
	now      func() time.Time
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg Config, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.RecalcCron, func() {
		s.runRecalc(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule recalculation: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.SnapshotCron, func() {
		s.runSnapshot(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule snapshot: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("recalc_schedule", s.cfg.RecalcCron).
		Str("snapshot_schedule", s.cfg.SnapshotCron).
		Msg("Jobs scheduled")

	if s.cfg.InitialRecalc {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case <-s.stopChan:
				return
			default:
			}
			log.Info().Msg("Running initial recalculation")
			s.runRecalc(ctx)
		}()
	}

	return nil
}

// Stop stops the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping scheduler...")
		close(s.stopChan)

		<-s.cron.Stop().Done()
		s.wg.Wait()

		log.Info().Msg("Scheduler stopped")
	})
}

// NextRuns returns the next fire time of each job
func (s *Scheduler) NextRuns() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.Next)
	}
	return next
}

func (s *Scheduler) runRecalc(ctx context.Context) {
	summary, err := s.runner.Recalculate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled recalculation failed")
		return
	}
	log.Info().
		Str("run_id", summary.RunID).
		Int("rated", summary.Rated).
		Msg("Scheduled recalculation complete")
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	asOf := s.now().UTC()
	result, err := s.runner.CaptureSnapshot(ctx, asOf)
	if err != nil {
		log.Error().Err(err).Str("date", asOf.Format(time.DateOnly)).Msg("Scheduled snapshot failed")
		return
	}
	log.Info().
		Str("date", result.Date.Format(time.DateOnly)).
		Int("written", result.Report.Written).
		Msg("Scheduled snapshot complete")
}
