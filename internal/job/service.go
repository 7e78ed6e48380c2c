package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/mvad/internal/mvad"
)

// ErrInvalidRequest is returned when a request lacks its input or output.
var ErrInvalidRequest = errors.New("invalid prepare request")

// Preparer runs the mvad pipeline for one request.
type Preparer interface {
	Prepare(ctx context.Context, req Request) (mvad.Stats, error)
}

// PrepareService manages shard preparation jobs. At most
// maxConcurrentShards jobs run at a time; the rest wait IN_QUEUE.
type PrepareService struct {
	repo     Repository
	preparer Preparer
	logger   *slog.Logger
	slots    chan struct{}

	mu      sync.Mutex
	running map[string]*runningJob
}

type runningJob struct {
	job    *Job
	cancel context.CancelFunc
}

// Option configures a PrepareService.
type Option func(*PrepareService)

// WithMaxConcurrentShards limits how many jobs prepare shards in parallel.
func WithMaxConcurrentShards(n int) Option {
	return func(s *PrepareService) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// NewPrepareService creates a new PrepareService.
func NewPrepareService(repo Repository, preparer Preparer, logger *slog.Logger, opts ...Option) *PrepareService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PrepareService{
		repo:     repo,
		preparer: preparer,
		logger:   logger,
		slots:    make(chan struct{}, 1),
		running:  make(map[string]*runningJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates req and persists a new IN_QUEUE job.
func (s *PrepareService) CreateJob(ctx context.Context, req Request) (*Job, error) {
	if req.Input == "" || req.Output == "" {
		return nil, fmt.Errorf("%w: input and output are required", ErrInvalidRequest)
	}
	if req.Input == req.Output {
		return nil, fmt.Errorf("%w: output must differ from input", ErrInvalidRequest)
	}

	job := New(req)
	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", req.Input),
		slog.String("output", req.Output),
		slog.String("speakers", req.Speakers),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *PrepareService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, oldest first.
func (s *PrepareService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Run prepares the shard of an IN_QUEUE job. It blocks until a slot is
// free and the pipeline finished. The returned error is the pipeline
// error; the job record carries it as well.
func (s *PrepareService) Run(ctx context.Context, jobID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job, err := s.track(ctx, jobID, cancel)
	if err != nil {
		return err
	}
	defer s.untrack(jobID)
	logger := s.logger.With(slog.String("job_id", jobID))

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-runCtx.Done():
		if job.Cancel() == nil {
			s.save(ctx, job)
		}
		return runCtx.Err()
	}

	if err := job.Start(); err != nil {
		// cancelled while waiting for a slot
		return err
	}
	s.save(ctx, job)
	logger.Info("job started")

	stats, err := s.preparer.Prepare(runCtx, job.Request)
	if err != nil {
		if job.Fail(err.Error()) == nil {
			s.save(ctx, job)
		}
		logger.Error("job failed", slog.String("error", err.Error()))
		return err
	}

	if err := job.Complete(NewResult(stats)); err != nil {
		return err
	}
	s.save(ctx, job)
	logger.Info("job completed",
		slog.Int("files", stats.Files),
		slog.Int("chunks_max", stats.Chunks[mvad.KindMax]),
	)
	return nil
}

// Cancel cancels a queued or running job. A running pipeline is
// interrupted and publishes nothing.
func (s *PrepareService) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.running[jobID]; ok {
		if err := r.job.Cancel(); err != nil {
			return err
		}
		s.save(ctx, r.job)
		r.cancel()
		return nil
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Cancel(); err != nil {
		return err
	}
	s.save(ctx, job)
	return nil
}

// CancelAll cancels every tracked job, e.g. on shutdown.
func (s *PrepareService) CancelAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Cancel(ctx, id); err != nil && !errors.Is(err, ErrInvalidTransition) {
			s.logger.Warn("failed to cancel job",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *PrepareService) track(ctx context.Context, jobID string, cancel context.CancelFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[jobID]; ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrInvalidTransition)
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.GetStatus() != StatusInQueue {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.GetStatus(), ErrInvalidTransition)
	}
	s.running[jobID] = &runningJob{job: job, cancel: cancel}
	return job, nil
}

func (s *PrepareService) untrack(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

// save persists job even when ctx is already cancelled.
func (s *PrepareService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
