package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// taskKey identifies a remote task. Task handles are only unique per provider.
type taskKey struct {
	provider string
	taskID   string
}

// Registry is the in-memory set of jobs owned by the orchestrator.
// It uses maps with a RWMutex for thread-safe access. Jobs are stored by
// pointer: the orchestrator mutates them, readers get clones.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	tasks   map[taskKey]string
	cancels map[string]context.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:    make(map[string]*Job),
		tasks:   make(map[taskKey]string),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Add registers a live job.
func (r *Registry) Add(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// IndexTask routes a provider task handle to a job.
func (r *Registry) IndexTask(provider, taskID, jobID string) {
	if taskID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskKey{provider, taskID}] = jobID
}

// JobForTask returns the job ID that owns a provider task handle.
func (r *Registry) JobForTask(provider, taskID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobID, ok := r.tasks[taskKey{provider, taskID}]
	if !ok {
		return "", ErrJobNotFound
	}
	return jobID, nil
}

// SetCancel stores the function that stops a job's poll loop.
func (r *Registry) SetCancel(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[jobID] = cancel
}

// StopPolling cancels a job's poll loop, if any, and forgets it.
func (r *Registry) StopPolling(jobID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	delete(r.cancels, jobID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// live returns the mutable job. Only the orchestrator uses it.
func (r *Registry) live(jobID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// FindByID retrieves a job by its ID.
// Returns a clone to prevent external mutations.
func (r *Registry) FindByID(jobID string) (*Job, error) {
	job, err := r.live(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// List returns clones of all jobs in the registry.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.Clone())
	}
	return result
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Delete removes a job and its task index entry.
func (r *Registry) Delete(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	r.deleteLocked(job)
	return nil
}

func (r *Registry) deleteLocked(job *Job) {
	delete(r.jobs, job.ID)
	delete(r.cancels, job.ID)
	job.mu.RLock()
	key := taskKey{job.Provider, job.TaskID}
	job.mu.RUnlock()
	if r.tasks[key] == job.ID {
		delete(r.tasks, key)
	}
}

// Sweep removes terminal jobs whose result was retrieved, and terminal jobs
// that finished before now-retention. Non-terminal jobs are never removed.
// Returns the number of jobs removed.
func (r *Registry) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, job := range r.jobs {
		job.mu.RLock()
		terminal := job.Status.IsTerminal()
		expired := now.Sub(job.FinishedAt) >= retention
		retrieved := job.retrieved
		job.mu.RUnlock()

		if terminal && (retrieved || expired) {
			r.deleteLocked(job)
			removed++
		}
	}
	return removed
}
