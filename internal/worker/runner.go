package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RezaEskandarii/genjob/internal/jobctx"
	"github.com/RezaEskandarii/genjob/internal/lifecycle"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/internal/message_broaker"
	"github.com/RezaEskandarii/genjob/internal/state"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	errAttemptLost    = errors.New("attempt no longer owns the job")
	errProjectStopped = errors.New("project stopped")
)

const finishTimeout = 10 * time.Second

// JobController is the part of client.JobManager a worker drives.
type JobController interface {
	Get(ctx context.Context, jobID string) (*types.Job, error)
	Claim(ctx context.Context, jobID, workerID string) (*types.Job, error)
	UpdateState(ctx context.Context, jobID string, attempt int, newState state.JobState, result json.RawMessage, errText *string) (bool, error)
	Heartbeat(ctx context.Context, jobID string, attempt int) (bool, error)
}

type Options struct {
	WorkerID          string
	Concurrency       int
	Queues            config.QueueConfig
	HeartbeatInterval time.Duration
	// RedispatchDelay is how long a dispatch that could not be claimed
	// because of the project ceiling waits before it is queued again.
	RedispatchDelay time.Duration
	Logger          logrus.FieldLogger
}

type inflightJob struct {
	projectID string
	cancel    context.CancelCauseFunc
}

// Runner consumes dispatch events, claims the jobs and runs their handlers.
type Runner struct {
	jobs       JobController
	broker     message_broaker.MessageBroker
	handlers   *config.JobHandler
	opts       Options
	sem        *semaphore.Weighted
	logger     *logrus.Entry
	mu         sync.Mutex
	inflight   map[string]inflightJob
	wg         sync.WaitGroup
	redispatch sync.WaitGroup
}

func NewRunner(jobs JobController, broker message_broaker.MessageBroker, handlers *config.JobHandler, opts Options) *Runner {
	if opts.WorkerID == "" {
		opts.WorkerID = uuid.NewString()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultWorkerCount
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = config.DefaultJobHeartbeatInterval
	}
	if opts.RedispatchDelay <= 0 {
		opts.RedispatchDelay = config.DefaultRedispatchDelay
	}
	if opts.Queues.Dispatch == "" {
		opts.Queues.Dispatch = config.DefaultDispatchQueue
	}
	if opts.Queues.Control == "" {
		opts.Queues.Control = config.DefaultControlTopic
	}
	return &Runner{
		jobs:     jobs,
		broker:   broker,
		handlers: handlers,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:   logging.Component(opts.Logger, "worker").WithField("worker_id", opts.WorkerID),
		inflight: make(map[string]inflightJob),
	}
}

func (r *Runner) WorkerID() string {
	return r.opts.WorkerID
}

// Run blocks until ctx is cancelled or both subscriptions close, then waits
// for in-flight jobs to finish. Control messages are read on their own
// goroutine so a project stop is delivered while every slot is busy.
func (r *Runner) Run(ctx context.Context) error {
	dispatch, err := r.broker.Consume(ctx, r.opts.Queues.Dispatch)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", r.opts.Queues.Dispatch, err)
	}
	control, err := r.broker.Subscribe(ctx, r.opts.Queues.Control)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.opts.Queues.Control, err)
	}

	r.logger.WithField("concurrency", r.opts.Concurrency).Info("worker started")
	defer r.wait()

	controlDone := make(chan struct{})
	go func() {
		defer close(controlDone)
		for body := range control {
			r.handleControl(body)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body, ok := <-dispatch:
			if !ok {
				select {
				case <-controlDone:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			r.handleDispatch(ctx, body)
		}
	}
}

func (r *Runner) wait() {
	r.wg.Wait()
	r.redispatch.Wait()
	r.logger.Info("worker stopped")
}

func (r *Runner) handleDispatch(ctx context.Context, body []byte) {
	evt, err := lifecycle.Decode(body)
	if err != nil {
		r.logger.WithError(err).Warn("dropping undecodable dispatch message")
		return
	}
	if evt.Type != types.EventJobDispatched {
		return
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.publishBack(ctx, evt.JobID, body)
		return
	}
	job, err := r.jobs.Claim(ctx, evt.JobID, r.opts.WorkerID)
	if err != nil {
		r.sem.Release(1)
		r.logger.WithError(err).WithField("job_id", evt.JobID).Error("claim failed, retrying later")
		r.redispatchLater(ctx, evt.JobID, body)
		return
	}
	if job == nil {
		r.sem.Release(1)
		r.redispatchIfBlocked(ctx, evt.JobID, body)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.sem.Release(1)
		defer r.wg.Done()
		r.execute(ctx, job)
	}()
}

// redispatchIfBlocked queues the message again when the job is still
// claimable, which means the claim lost to the project's ceiling rather than
// to another worker. A failed lookup is retried too.
func (r *Runner) redispatchIfBlocked(ctx context.Context, jobID string, body []byte) {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		r.logger.WithError(err).WithField("job_id", jobID).Warn("job lookup failed, retrying later")
		r.redispatchLater(ctx, jobID, body)
		return
	}
	if job == nil {
		return
	}
	claimable := job.State == state.StateCreated || (job.State == state.StateFailed && !job.RetriesExhausted())
	if !claimable {
		return
	}
	r.redispatchLater(ctx, jobID, body)
}

// redispatchLater publishes body to the dispatch queue after RedispatchDelay,
// or right away when the worker is shutting down.
func (r *Runner) redispatchLater(ctx context.Context, jobID string, body []byte) {
	r.redispatch.Add(1)
	go func() {
		defer r.redispatch.Done()
		select {
		case <-ctx.Done():
		case <-time.After(r.opts.RedispatchDelay):
		}
		r.publishBack(ctx, jobID, body)
	}()
}

func (r *Runner) publishBack(ctx context.Context, jobID string, body []byte) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := r.broker.Publish(pubCtx, r.opts.Queues.Dispatch, body); err != nil {
		r.logger.WithError(err).WithField("job_id", jobID).Warn("failed to redispatch job")
	}
}

func (r *Runner) handleControl(body []byte) {
	evt, err := lifecycle.Decode(body)
	if err != nil {
		r.logger.WithError(err).Warn("dropping undecodable control message")
		return
	}
	if evt.Type != types.EventProjectStop {
		return
	}
	n := r.cancelProject(evt.ProjectID)
	r.logger.WithFields(logrus.Fields{"project_id": evt.ProjectID, "jobs": n}).Info("project stop received")
}

func (r *Runner) cancelProject(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.inflight {
		if j.projectID == projectID {
			j.cancel(errProjectStopped)
			n++
		}
	}
	return n
}

func (r *Runner) track(job *types.Job, cancel context.CancelCauseFunc) func() {
	r.mu.Lock()
	r.inflight[job.ID] = inflightJob{projectID: job.ProjectID, cancel: cancel}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.inflight, job.ID)
		r.mu.Unlock()
	}
}

func (r *Runner) execute(ctx context.Context, job *types.Job) {
	ctx = jobctx.WithJob(ctx, job.ProjectID, job.ID)
	log := logging.FromContext(ctx, r.logger).WithField("attempt", job.Attempt)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	defer r.track(job, cancel)()

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(jobCtx, job, cancel, log)
	}()

	started := time.Now()
	result, runErr := r.run(jobCtx, job)
	cause := context.Cause(jobCtx)
	cancel(nil)
	<-hbDone

	if errors.Is(cause, errAttemptLost) || errors.Is(cause, errProjectStopped) {
		log.WithField("reason", cause.Error()).Warn("job abandoned")
		return
	}

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer finishCancel()

	var (
		applied bool
		err     error
	)
	if runErr != nil {
		msg := runErr.Error()
		if ctx.Err() != nil {
			msg = "worker stopped: " + msg
		}
		applied, err = r.jobs.UpdateState(finishCtx, job.ID, job.Attempt, state.StateFailed, nil, &msg)
		log = log.WithField("error", msg)
	} else {
		applied, err = r.jobs.UpdateState(finishCtx, job.ID, job.Attempt, state.StateCompleted, result, nil)
	}

	log = log.WithField("duration", time.Since(started))
	switch {
	case err != nil:
		log.WithError(err).Error("failed to record job outcome")
	case !applied:
		log.Warn("job outcome discarded, attempt superseded")
	case runErr != nil:
		log.Warn("job failed")
	default:
		log.Info("job completed")
	}
}

// run invokes the handler; panics are turned into errors.
func (r *Runner) run(ctx context.Context, job *types.Job) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithField("job_id", job.ID).Errorf("handler panic: %v\n%s", p, debug.Stack())
			result, err = nil, fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handlers.Execute(ctx, job)
}

func (r *Runner) heartbeat(ctx context.Context, job *types.Job, cancel context.CancelCauseFunc, log *logrus.Entry) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := r.jobs.Heartbeat(ctx, job.ID, job.Attempt)
		if err != nil {
			log.WithError(err).Warn("heartbeat failed")
			continue
		}
		if !ok {
			cancel(errAttemptLost)
			return
		}
	}
}
