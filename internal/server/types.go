// Package server provides the HTTP API for submitting and tracking shard
// preparation jobs. DTOs are kept separate from domain types.
package server

// CreateJobRequest is the HTTP request body for preparing one shard.
type CreateJobRequest struct {
	// Input is the VAD shard location (local path or s3:// URL).
	Input string `json:"input" validate:"required"`
	// Output is where the mvad shard is written.
	Output string `json:"output" validate:"required,nefield=Input"`
	// Speakers is the per-segment speaker embedding shard. Derived from
	// Input when empty.
	Speakers string `json:"spk_emb,omitempty"`
	// NoSpeakers reads embeddings inline from the input records.
	NoSpeakers bool `json:"no_spk_emb"`
	// EqVAD selects the aggressive eq cutter.
	EqVAD bool `json:"eqvad"`
	// IgnoreSpeakers cuts on duration only.
	IgnoreSpeakers bool `json:"ignore_spk_emb"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Input    string          `json:"input"`
	Output   string          `json:"output"`
	Speakers string          `json:"spk_emb,omitempty"`
	Error    string          `json:"error,omitempty"`
	Result   *ResultResponse `json:"result,omitempty"`

	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ResultResponse summarises a completed job.
type ResultResponse struct {
	Files           int            `json:"files"`
	EmptyFiles      int            `json:"empty_files"`
	DroppedBoundary int            `json:"dropped_boundary"`
	DroppedSilence  int            `json:"dropped_silence"`
	Chunks          map[string]int `json:"chunks"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
