package queue

import (
	"context"
	"fmt"
	"sort"
)

// Result is what a handler reports for a finished job. Skipped marks a job
// that cannot ever succeed (malformed payload, deleted target) as done without
// retrying it.
type Result struct {
	Skipped bool
	Detail  string
}

// Handler executes jobs of one type. Returning an error requeues the job
// under the worker's backoff policy until attempts are exhausted.
type Handler interface {
	ProcessJob(ctx context.Context, job *Job) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) (Result, error)

func (f HandlerFunc) ProcessJob(ctx context.Context, job *Job) (Result, error) {
	return f(ctx, job)
}

// Registry maps job types to their handlers. Dispatch happens here once, not
// by switching on type strings at call sites.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type. Registering the same type twice is
// a programming error.
func (r *Registry) Register(jobType string, h Handler) error {
	if _, ok := r.handlers[jobType]; ok {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Lookup returns the handler for a job type.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types in stable order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
