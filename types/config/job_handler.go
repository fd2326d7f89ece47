package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RezaEskandarii/genjob/types"
)

// HandlerFunc runs the business logic of one job type. The returned result is
// stored on the job when it completes.
type HandlerFunc func(ctx context.Context, job *types.Job) (json.RawMessage, error)

type JobHandler struct {
	handlers map[string]HandlerFunc
	mutex    sync.RWMutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a new job handler by job type.
func (jh *JobHandler) Register(jobType string, handler HandlerFunc) error {
	if jobType == "" || handler == nil {
		return fmt.Errorf("handler must have a job type and function")
	}
	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if _, exists := jh.handlers[jobType]; exists {
		return fmt.Errorf("handler '%s' already registered", jobType)
	}
	jh.handlers[jobType] = handler
	return nil
}

func (jh *JobHandler) Exists(jobType string) bool {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	_, exists := jh.handlers[jobType]
	return exists
}

func (jh *JobHandler) Execute(ctx context.Context, job *types.Job) (json.RawMessage, error) {
	jh.mutex.RLock()
	handler, exists := jh.handlers[job.Type]
	jh.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("handler '%s' not found", job.Type)
	}
	return handler(ctx, job)
}

func (jh *JobHandler) List() []string {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	names := make([]string, 0, len(jh.handlers))
	for name := range jh.handlers {
		names = append(names, name)
	}
	return names
}
