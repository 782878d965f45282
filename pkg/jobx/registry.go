package jobx

import (
	"context"
	"sync"
)

// HandlerFunc processes a job. Return nil on success, an error to trigger retry/fail.
type HandlerFunc func(ctx context.Context, job *Job) error

// Registry maps (queue, job name) pairs to handlers. It is populated at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]HandlerFunc)}
}

// Register associates handler with jobName on queue, replacing any previous one.
func (r *Registry) Register(queue, jobName string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.handlers[queue]
	if !ok {
		byName = make(map[string]HandlerFunc)
		r.handlers[queue] = byName
	}
	byName[jobName] = handler
}

// Lookup returns the handler for jobName on queue.
func (r *Registry) Lookup(queue, jobName string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[queue][jobName]
	return h, ok
}

// Names returns the job names registered for queue.
func (r *Registry) Names(queue string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers[queue]))
	for name := range r.handlers[queue] {
		names = append(names, name)
	}
	return names
}
