package types

import "time"

type EventType string

const (
	EventJobDispatched EventType = "JOB_DISPATCHED"
	EventJobStarted    EventType = "JOB_STARTED"
	EventJobCompleted  EventType = "JOB_COMPLETED"
	EventJobFailed     EventType = "JOB_FAILED"
	EventJobCancelled  EventType = "JOB_CANCELLED"

	// EventProjectStop is the broadcast control message asking every worker
	// to abandon in-flight work for a project.
	EventProjectStop EventType = "PROJECT_STOP"
)

// LifecycleEvent is the tagged, minimal message published on job transitions.
type LifecycleEvent struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"jobId,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
