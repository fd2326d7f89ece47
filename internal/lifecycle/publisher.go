// Package lifecycle encodes job lifecycle events and routes them onto the
// message broker.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/genjob/internal/message_broaker"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
)

// Publisher sends JOB_DISPATCHED to the dispatch queue for workers, every
// event to the lifecycle queue for the orchestrator, and project stop
// signals to the control topic.
type Publisher struct {
	broker message_broaker.MessageBroker
	queues config.QueueConfig
	now    func() time.Time
}

func NewPublisher(broker message_broaker.MessageBroker, queues config.QueueConfig) *Publisher {
	return &Publisher{broker: broker, queues: queues, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	if evt.At.IsZero() {
		evt.At = p.now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", evt.Type, err)
	}

	var errs []error
	if evt.Type == types.EventJobDispatched {
		if err := p.broker.Publish(ctx, p.queues.Dispatch, body); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", p.queues.Dispatch, err))
		}
	}
	if err := p.broker.Publish(ctx, p.queues.Lifecycle, body); err != nil {
		errs = append(errs, fmt.Errorf("publish to %s: %w", p.queues.Lifecycle, err))
	}
	return errors.Join(errs...)
}

// StopProject asks every worker to abandon in-flight jobs of projectID.
func (p *Publisher) StopProject(ctx context.Context, projectID string) error {
	body, err := json.Marshal(types.LifecycleEvent{
		Type:      types.EventProjectStop,
		ProjectID: projectID,
		At:        p.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := p.broker.Broadcast(ctx, p.queues.Control, body); err != nil {
		return fmt.Errorf("broadcast to %s: %w", p.queues.Control, err)
	}
	return nil
}

// Decode parses an event read from the broker.
func Decode(body []byte) (types.LifecycleEvent, error) {
	var evt types.LifecycleEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, fmt.Errorf("failed to decode lifecycle event: %w", err)
	}
	if evt.Type == "" {
		return evt, errors.New("lifecycle event without type")
	}
	return evt, nil
}

func Dispatched(job *types.Job) types.LifecycleEvent {
	return types.LifecycleEvent{Type: types.EventJobDispatched, JobID: job.ID, ProjectID: job.ProjectID}
}

func Started(job *types.Job) types.LifecycleEvent {
	return types.LifecycleEvent{Type: types.EventJobStarted, JobID: job.ID, ProjectID: job.ProjectID}
}

func Completed(job *types.Job) types.LifecycleEvent {
	return types.LifecycleEvent{Type: types.EventJobCompleted, JobID: job.ID, ProjectID: job.ProjectID}
}

func Failed(job *types.Job, errText string) types.LifecycleEvent {
	return types.LifecycleEvent{Type: types.EventJobFailed, JobID: job.ID, ProjectID: job.ProjectID, Error: errText}
}

func Cancelled(job *types.Job) types.LifecycleEvent {
	return types.LifecycleEvent{Type: types.EventJobCancelled, JobID: job.ID, ProjectID: job.ProjectID}
}
