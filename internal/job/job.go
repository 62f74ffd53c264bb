// Package job provides the GenerationJob aggregate and the orchestrator that
// drives it from submission to a terminal state.
// It includes the Job entity with its state machine, the polling backoff
// policy, and the in-memory registry of live jobs.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/fallback"
	"github.com/maauso/genjob/internal/job/id"
	"github.com/maauso/genjob/internal/materialize"
	"github.com/maauso/genjob/internal/provider"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job was accepted but no task handle exists yet.
	StatusPending Status = "PENDING"
	// StatusSubmitted indicates a provider accepted the submission.
	StatusSubmitted Status = "SUBMITTED"
	// StatusRunning indicates the job is being polled.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded indicates the job produced an asset.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the job failed with a classified error.
	StatusFailed Status = "FAILED"
	// StatusTimedOut indicates the wall-clock budget elapsed first.
	StatusTimedOut Status = "TIMED_OUT"
	// StatusCancelled indicates the caller cancelled the job.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal returns true if no transition leaves the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusFailed, StatusCancelled},
	StatusSubmitted: {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled},
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusTimedOut:  {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Job represents one generation request tracked from submission to a
// terminal state. Only the orchestrator mutates a live job; everyone else
// reads clones.
type Job struct {
	mu sync.RWMutex

	// ID is the local handle returned to callers.
	ID string
	// TaskID is the handle assigned by the provider once submission succeeds.
	TaskID string
	// Kind is the media kind being generated.
	Kind provider.Kind
	// Provider names the adapter that owns the task.
	Provider string
	// Model is the model that accepted the submission.
	Model string
	// Status is the current job state.
	Status Status
	// ResultRef is the provider reference to the finished asset.
	ResultRef string
	// Asset is the materialized result, set together with ResultRef.
	Asset *materialize.Asset
	// Failure is the classified error of a Failed, TimedOut or Cancelled job.
	Failure *classify.Error
	// Attempt counts the status polls issued for the task.
	Attempt int
	// NextDelay is the current backoff interval.
	NextDelay time.Duration
	// Progress is the percentage of completion (0-100) when the provider reports it.
	Progress int
	// Degraded is true when a reference asset was dropped for a text-only submission.
	Degraded bool
	// Attempts is the fallback log of the submission.
	Attempts []fallback.AttemptRecord

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	retrieved bool
	done      chan struct{}
}

// New creates a new PENDING Job with a generated ID.
func New(kind provider.Kind) *Job {
	return NewWithID(id.Generate(), kind)
}

// NewWithID creates a new PENDING Job with the specified ID.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, kind provider.Kind) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusSubmitted:
		j.SubmittedAt = j.UpdatedAt
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		j.FinishedAt = j.UpdatedAt
		if j.done != nil {
			close(j.done)
		}
	}

	return nil
}

// Submit records the winning submission and moves the job to SUBMITTED.
func (j *Job) Submit(res fallback.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusSubmitted); err != nil {
		return err
	}
	j.TaskID = res.Submission.TaskID
	j.Provider = res.Winner.Adapter.Name()
	j.Model = res.Winner.Model
	j.Degraded = res.Degraded
	j.Attempts = res.Attempts
	return nil
}

// Start transitions the job from SUBMITTED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Succeed records the result and transitions the job to SUCCEEDED.
func (j *Job) Succeed(ref string, asset materialize.Asset) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusSucceeded); err != nil {
		return err
	}
	j.ResultRef = ref
	j.Asset = &asset
	j.Progress = 100
	return nil
}

// Fail records a classified error and transitions the job to FAILED.
func (j *Job) Fail(failure *classify.Error) error {
	return j.finishWith(StatusFailed, failure)
}

// Timeout transitions the job to TIMED_OUT.
func (j *Job) Timeout(budget time.Duration) error {
	return j.finishWith(StatusTimedOut, classify.New(classify.KindTimedOut, "no terminal status within "+budget.String()))
}

// Cancel transitions the job to CANCELLED. reason is kept as the raw failure text.
func (j *Job) Cancel(reason string) error {
	return j.finishWith(StatusCancelled, classify.New(classify.KindCancelled, reason))
}

func (j *Job) finishWith(status Status, failure *classify.Error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(status); err != nil {
		return err
	}
	j.Failure = failure
	return nil
}

// CountPoll records that a status poll is being issued.
func (j *Job) CountPoll() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Attempt++
	j.UpdatedAt = time.Now()
}

// RecordPoll stores the next backoff interval after a non-terminal poll.
// The interval never decreases and progress never goes backwards.
func (j *Job) RecordPoll(nextDelay time.Duration, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if nextDelay > j.NextDelay {
		j.NextDelay = nextDelay
	}
	progress = min(max(progress, 0), 100)
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// Done returns a channel closed when the job reaches a terminal state.
// Clones return nil.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job failure as an error, or nil.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.Failure == nil {
		return nil
	}
	return j.Failure
}

func (j *Job) markRetrieved() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.retrieved = true
}

// Retrieved reports whether the terminal result was handed to a caller.
func (j *Job) Retrieved() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.retrieved
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	c := &Job{
		ID:          j.ID,
		TaskID:      j.TaskID,
		Kind:        j.Kind,
		Provider:    j.Provider,
		Model:       j.Model,
		Status:      j.Status,
		ResultRef:   j.ResultRef,
		Failure:     j.Failure,
		Attempt:     j.Attempt,
		NextDelay:   j.NextDelay,
		Progress:    j.Progress,
		Degraded:    j.Degraded,
		Attempts:    slices.Clone(j.Attempts),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		retrieved:   j.retrieved,
	}
	if j.Asset != nil {
		asset := *j.Asset
		asset.Data = slices.Clone(j.Asset.Data)
		c.Asset = &asset
	}
	return c
}
