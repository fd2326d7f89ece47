package worker

import (
	"context"
	"errors"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/constants"
	"github.com/RezaEskandarii/genjob/internal/lock"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type StaleJobFailer interface {
	FailStaleJobs(ctx context.Context, staleAfter time.Duration) ([]*types.Job, error)
}

type ReaperOptions struct {
	StaleAfter time.Duration
	Interval   time.Duration
	// Lock, when set, keeps concurrent instances from reaping at the same tick.
	Lock     lock.DistributedLockManager
	HolderID string
	LockTTL  time.Duration
	Logger   logrus.FieldLogger
}

// Reaper fails RUNNING jobs whose worker stopped heartbeating.
type Reaper struct {
	jobs      StaleJobFailer
	opts      ReaperOptions
	logger    *logrus.Entry
	scheduler *cron.Cron
}

func NewReaper(jobs StaleJobFailer, opts ReaperOptions) *Reaper {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = config.DefaultJobStaleAfter
	}
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultReapInterval
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = config.DefaultLockTTL
	}
	if opts.HolderID == "" {
		opts.HolderID = uuid.NewString()
	}
	return &Reaper{
		jobs:   jobs,
		opts:   opts,
		logger: logging.Component(opts.Logger, "reaper"),
	}
}

// Start schedules Reap every interval until Stop or ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	cronLogger := cron.PrintfLogger(r.logger)
	r.scheduler = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	r.scheduler.Schedule(cron.Every(r.opts.Interval), cron.FuncJob(func() {
		if _, err := r.Reap(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("reap failed")
		}
	}))
	r.scheduler.Start()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

func (r *Reaper) Stop() {
	if r.scheduler != nil {
		<-r.scheduler.Stop().Done()
	}
}

// Reap runs one pass and returns how many jobs were failed. A pass skipped
// because another instance holds the reaper lock returns 0 and no error.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	if r.opts.Lock == nil {
		return r.reap(ctx)
	}

	var n int
	err := lock.Hold(ctx, r.opts.Lock, constants.ReaperLock, r.opts.HolderID, r.opts.LockTTL, func(ctx context.Context) error {
		var err error
		n, err = r.reap(ctx)
		return err
	})
	if errors.Is(err, custom_errors.ErrLockHeld) {
		r.logger.Debug("reaper lock held elsewhere, skipping")
		return 0, nil
	}
	return n, err
}

func (r *Reaper) reap(ctx context.Context) (int, error) {
	jobs, err := r.jobs.FailStaleJobs(ctx, r.opts.StaleAfter)
	if err != nil {
		return 0, err
	}
	if len(jobs) > 0 {
		r.logger.WithField("jobs", len(jobs)).Warn("failed stale jobs")
	}
	return len(jobs), nil
}
