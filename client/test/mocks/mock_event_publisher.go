package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/genjob/types"
)

// MockEventPublisher records published events. PublishFunc and
// StopProjectFunc, when set, decide the returned error.
type MockEventPublisher struct {
	PublishFunc     func(ctx context.Context, evt types.LifecycleEvent) error
	StopProjectFunc func(ctx context.Context, projectID string) error

	mu      sync.Mutex
	events  []types.LifecycleEvent
	stopped []string
}

func (m *MockEventPublisher) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, evt); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *MockEventPublisher) StopProject(ctx context.Context, projectID string) error {
	if m.StopProjectFunc != nil {
		if err := m.StopProjectFunc(ctx, projectID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, projectID)
	return nil
}

// Events returns the successfully published events in order.
func (m *MockEventPublisher) Events() []types.LifecycleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.LifecycleEvent(nil), m.events...)
}

// EventTypes returns the types of the published events in order.
func (m *MockEventPublisher) EventTypes() []types.EventType {
	events := m.Events()
	out := make([]types.EventType, len(events))
	for i, evt := range events {
		out[i] = evt.Type
	}
	return out
}

func (m *MockEventPublisher) StoppedProjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopped...)
}
