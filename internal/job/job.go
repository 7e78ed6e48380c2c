// Package job provides the Job aggregate for shard preparation requests
// submitted over HTTP, with its state machine and repository port.
package job

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/maauso/mvad/internal/job/id"
	"github.com/maauso/mvad/internal/mvad"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job waits for a free shard slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the shard is being prepared.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the output shard was published.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run failed; no output was published.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Request describes the shard a job prepares.
type Request struct {
	// Input is the VAD shard location.
	Input string
	// Output is where the mvad shard is written.
	Output string
	// Speakers is the speaker embedding shard; empty when Input carries
	// embeddings inline.
	Speakers string
	// Aggressive selects the aggressive eq cutter.
	Aggressive bool
	// IgnoreSpeakers cuts on duration only.
	IgnoreSpeakers bool
}

// Result summarises a completed run.
type Result struct {
	Files           int
	EmptyFiles      int
	DroppedBoundary int
	DroppedSilence  int
	Chunks          map[mvad.Kind]int
}

// NewResult converts pipeline statistics into a job result.
func NewResult(stats mvad.Stats) Result {
	return Result{
		Files:           stats.Files,
		EmptyFiles:      stats.EmptyFiles,
		DroppedBoundary: stats.Dropped.Boundary,
		DroppedSilence:  stats.Dropped.Silence,
		Chunks:          maps.Clone(stats.Chunks),
	}
}

// Job represents one shard preparation request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Request is the shard to prepare.
	Request Request
	// Result is set once the job completed.
	Result Result
	// Error contains any error message if the job failed.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(req Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
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

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the run result and transitions the job to COMPLETED.
func (j *Job) Complete(result Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Result = result
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return len(validTransitions[j.GetStatus()]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := j.Result
	result.Chunks = maps.Clone(j.Result.Chunks)

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Request:     j.Request,
		Result:      result,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
