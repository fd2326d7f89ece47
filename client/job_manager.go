package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/jobctx"
	"github.com/RezaEskandarii/genjob/internal/lifecycle"
	"github.com/RezaEskandarii/genjob/internal/logging"
	"github.com/RezaEskandarii/genjob/internal/state"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const livenessDeadlineError = "liveness deadline exceeded"

// EventPublisher delivers lifecycle events; see lifecycle.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, evt types.LifecycleEvent) error
	StopProject(ctx context.Context, projectID string) error
}

// JobManager is the scheduler of record: it owns job rows and the
// claim/transition protocol.
type JobManager struct {
	store    store.JobStore
	events   EventPublisher
	ceiling  int
	logger   logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
}

type JobManagerOption func(*JobManager)

// WithConcurrencyCeiling limits how many jobs of one project may be RUNNING.
func WithConcurrencyCeiling(n int) JobManagerOption {
	return func(m *JobManager) {
		if n > 0 {
			m.ceiling = n
		}
	}
}

func WithJobLogger(l logrus.FieldLogger) JobManagerOption {
	return func(m *JobManager) {
		m.logger = l
	}
}

func NewJobManager(jobStore store.JobStore, events EventPublisher, opts ...JobManagerOption) *JobManager {
	m := &JobManager{
		store:    jobStore,
		events:   events,
		ceiling:  config.DefaultConcurrencyCeiling,
		logger:   logging.Discard(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "jobs")
	return m
}

// Create inserts the job in CREATED and dispatches it. When the insert
// fails no event is published. A non-nil job with an error means the row
// exists but the dispatch event was not delivered; Dispatch retries it.
func (m *JobManager) Create(ctx context.Context, spec types.CreateJobSpec) (job *types.Job, err error) {
	ctx, span := startSpan(ctx, "JobManager.Create", attribute.String("job.id", spec.ID), attribute.String("project.id", spec.ProjectID))
	defer func() { endSpan(span, err) }()

	if err := m.validateSpec(spec); err != nil {
		return nil, custom_errors.NewApplicationError("invalid job spec", err)
	}

	job = &types.Job{
		ID:         spec.ID,
		ProjectID:  spec.ProjectID,
		Type:       spec.Type,
		State:      state.StateCreated,
		Payload:    spec.Payload,
		RetryCount: spec.StartingRetryCount,
		MaxRetries: spec.MaxRetries(),
		UniqueKey:  spec.UniqueKey,
		AssetKey:   spec.AssetKey,
	}
	if err := m.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	m.log(ctx, job).WithField("max_retries", job.MaxRetries).Info("job created")
	if err := m.events.Publish(ctx, lifecycle.Dispatched(job)); err != nil {
		return job, fmt.Errorf("job %s created but not dispatched: %w", job.ID, err)
	}
	return job, nil
}

// Dispatch republishes JOB_DISPATCHED for a job that can still be claimed.
func (m *JobManager) Dispatch(ctx context.Context, jobID string) error {
	job, err := m.store.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, custom_errors.ErrJobNotFound)
	}
	return m.events.Publish(ctx, lifecycle.Dispatched(job))
}

// Get returns nil when the job does not exist.
func (m *JobManager) Get(ctx context.Context, jobID string) (*types.Job, error) {
	return m.store.FindByID(ctx, jobID)
}

// Claim moves the job to RUNNING for workerID. A nil job means someone else
// got it first, the job is not claimable, or the project is at its
// concurrency ceiling.
func (m *JobManager) Claim(ctx context.Context, jobID, workerID string) (job *types.Job, err error) {
	ctx, span := startSpan(ctx, "JobManager.Claim", attribute.String("job.id", jobID), attribute.String("worker.id", workerID))
	defer func() { endSpan(span, err) }()

	job, err = m.store.Claim(ctx, jobID, workerID, m.ceiling)
	if err != nil {
		return nil, err
	}
	if job == nil {
		span.SetAttributes(attribute.Bool("job.claimed", false))
		return nil, nil
	}

	span.SetAttributes(attribute.Bool("job.claimed", true), attribute.Int("job.attempt", job.Attempt))
	m.log(ctx, job).WithFields(logrus.Fields{"worker_id": workerID, "attempt": job.Attempt}).Info("job claimed")
	if err := m.events.Publish(ctx, lifecycle.Started(job)); err != nil {
		m.log(ctx, job).WithError(err).Warn("failed to publish job started event")
	}
	return job, nil
}

// UpdateState transitions the job held at attempt. A stale attempt or a
// concurrent change is reported as applied=false without error; a
// transition outside the state table is ErrInvalidTransition.
func (m *JobManager) UpdateState(ctx context.Context, jobID string, attempt int, newState state.JobState, result json.RawMessage, errText *string) (applied bool, err error) {
	ctx, span := startSpan(ctx, "JobManager.UpdateState",
		attribute.String("job.id", jobID),
		attribute.Int("job.attempt", attempt),
		attribute.String("job.state", newState.String()))
	defer func() { endSpan(span, err) }()

	job, err := m.store.FindByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, fmt.Errorf("job %s: %w", jobID, custom_errors.ErrJobNotFound)
	}
	if job.Attempt != attempt {
		m.log(ctx, job).WithFields(logrus.Fields{"attempt": attempt, "current_attempt": job.Attempt}).
			Debug("ignoring update from stale attempt")
		return false, nil
	}
	if !state.IsValidTransition(job.State, newState) {
		return false, fmt.Errorf("%w: %s -> %s", custom_errors.ErrInvalidTransition, job.State, newState)
	}
	if newState != state.StateCompleted {
		result = nil
	}

	applied, err = m.store.UpdateState(ctx, types.StateUpdate{
		JobID:   jobID,
		Attempt: attempt,
		From:    job.State,
		To:      newState,
		Result:  result,
		Error:   errText,
	})
	if err != nil || !applied {
		return false, err
	}

	entry := m.log(ctx, job).WithFields(logrus.Fields{"from": job.State, "to": newState, "attempt": attempt})
	if errText != nil {
		entry = entry.WithField("error", *errText)
	}
	entry.Info("job state updated")

	if evt, ok := eventFor(job, newState, errText); ok {
		if err := m.events.Publish(ctx, evt); err != nil {
			m.log(ctx, job).WithError(err).Warn("failed to publish lifecycle event")
		}
	}
	return true, nil
}

// Cancel sets CANCELLED whatever the current state and publishes JOB_CANCELLED.
func (m *JobManager) Cancel(ctx context.Context, jobID string) (err error) {
	ctx, span := startSpan(ctx, "JobManager.Cancel", attribute.String("job.id", jobID))
	defer func() { endSpan(span, err) }()

	job, err := m.store.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, custom_errors.ErrJobNotFound)
	}
	m.log(ctx, job).Info("job cancelled")
	return m.events.Publish(ctx, lifecycle.Cancelled(job))
}

// StopProject cancels every non-terminal job of the project and broadcasts
// a stop signal so workers abandon what they are running for it.
func (m *JobManager) StopProject(ctx context.Context, projectID string) (err error) {
	ctx, span := startSpan(ctx, "JobManager.StopProject", attribute.String("project.id", projectID))
	defer func() { endSpan(span, err) }()

	jobs, err := m.store.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	var errs []error
	for _, job := range jobs {
		if state.IsTerminal(job.State) {
			continue
		}
		if err := m.Cancel(ctx, job.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.events.StopProject(ctx, projectID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// JobID derives the deterministic job key: projectID-nodeName-index, or
// projectID-nodeName-uniqueKey-index when a unique key is given.
func JobID(projectID, nodeName string, index int, uniqueKey *string) string {
	return jobIDPrefix(projectID, nodeName, uniqueKey) + strconv.Itoa(index)
}

func jobIDPrefix(projectID, nodeName string, uniqueKey *string) string {
	parts := []string{projectID, nodeName}
	if uniqueKey != nil {
		parts = append(parts, *uniqueKey)
	}
	return strings.Join(parts, "-") + "-"
}

// GetLatestRetryCount is the highest retry count among the node's jobs
// (narrowed by uniqueKey when given), or 0 when there are none.
func (m *JobManager) GetLatestRetryCount(ctx context.Context, projectID, nodeName string, uniqueKey *string) (int, error) {
	return m.store.MaxRetryCount(ctx, jobIDPrefix(projectID, nodeName, uniqueKey))
}

// ListJobs returns every job of the project, newest first.
func (m *JobManager) ListJobs(ctx context.Context, projectID string) ([]*types.Job, error) {
	return m.store.ListByProject(ctx, projectID)
}

// Heartbeat records that the holder of attempt is still working. False
// means the attempt no longer owns the job.
func (m *JobManager) Heartbeat(ctx context.Context, jobID string, attempt int) (bool, error) {
	return m.store.Heartbeat(ctx, jobID, attempt)
}

// FailStaleJobs forces RUNNING jobs without a heartbeat for staleAfter into
// FAILED and publishes JOB_FAILED for each.
func (m *JobManager) FailStaleJobs(ctx context.Context, staleAfter time.Duration) (jobs []*types.Job, err error) {
	ctx, span := startSpan(ctx, "JobManager.FailStaleJobs")
	defer func() { endSpan(span, err) }()

	jobs, err = m.store.FailStale(ctx, m.now().Add(-staleAfter), livenessDeadlineError)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		m.log(ctx, job).WithField("attempt", job.Attempt).Warn("job missed its liveness deadline")
		if err := m.events.Publish(ctx, lifecycle.Failed(job, livenessDeadlineError)); err != nil {
			m.log(ctx, job).WithError(err).Warn("failed to publish job failed event")
		}
	}
	span.SetAttributes(attribute.Int("jobs.failed", len(jobs)))
	return jobs, nil
}

// Requeue handles a FAILED job on behalf of the orchestrator: it is
// dispatched again while retries remain, otherwise moved to FATAL and
// ErrFatalExhaustion is returned.
func (m *JobManager) Requeue(ctx context.Context, jobID string) error {
	job, err := m.store.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, custom_errors.ErrJobNotFound)
	}
	if job.State != state.StateFailed {
		return fmt.Errorf("%w: job %s is %s, not FAILED", custom_errors.ErrInvalidTransition, jobID, job.State)
	}

	if !job.RetriesExhausted() {
		return m.events.Publish(ctx, lifecycle.Dispatched(job))
	}

	msg := fmt.Sprintf("retries exhausted after %d attempts", job.Attempt)
	if _, err := m.UpdateState(ctx, job.ID, job.Attempt, state.StateFatal, nil, &msg); err != nil {
		return err
	}
	return fmt.Errorf("job %s: %w", job.ID, custom_errors.ErrFatalExhaustion)
}

func (m *JobManager) validateSpec(spec types.CreateJobSpec) error {
	vErr := &custom_errors.ValidationError{}
	if err := m.validate.Struct(spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			vErr.Addf("%s failed on %q", fe.Field(), fe.Tag())
		}
	}
	if len(spec.Payload) > 0 && !json.Valid(spec.Payload) {
		vErr.Add(errors.New("payload is not valid JSON"))
	}
	return vErr.Err()
}

func (m *JobManager) log(ctx context.Context, job *types.Job) *logrus.Entry {
	return logging.FromContext(jobctx.WithJob(ctx, job.ProjectID, job.ID), m.logger)
}

func eventFor(job *types.Job, to state.JobState, errText *string) (types.LifecycleEvent, bool) {
	switch to {
	case state.StateCompleted:
		return lifecycle.Completed(job), true
	case state.StateFailed:
		msg := ""
		if errText != nil {
			msg = *errText
		}
		return lifecycle.Failed(job, msg), true
	case state.StateCancelled:
		return lifecycle.Cancelled(job), true
	default:
		return types.LifecycleEvent{}, false
	}
}
