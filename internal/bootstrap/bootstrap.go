// Package bootstrap provides dependency initialization for the mvad CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/maauso/mvad/internal/config"
	"github.com/maauso/mvad/internal/job"
	"github.com/maauso/mvad/internal/mvad"
	"github.com/maauso/mvad/internal/storage"
)

// Dependencies holds all initialized dependencies of a CLI run.
type Dependencies struct {
	Store   storage.Storage
	Profile config.Profile
	// Jobs runs shard preparation requests for the HTTP server.
	Jobs *job.PrepareService

	cfg    *config.Config
	logger *slog.Logger
	runs   atomic.Uint64
}

// PipelineFlags are the per-invocation switches of the prepare commands.
type PipelineFlags struct {
	Aggressive     bool
	IgnoreSpeakers bool
	// SeedOffset is added to the configured seed so concurrent shards do
	// not share one random sequence. Ignored when no seed is configured.
	SeedOffset uint64
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Load pipeline profile
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	logger.Info("pipeline profile loaded",
		slog.String("path", cfg.ProfilePath),
		slog.Any("artifact_sources", profile.ArtifactSources),
		slog.Float64("min_duration_sec", profile.MinDurationSec),
		slog.Float64("min_power", profile.MinPower),
		slog.Float64("max_chunk_sec", profile.MaxChunkSec),
	)

	deps := &Dependencies{
		Store:   store,
		Profile: profile,
		cfg:     cfg,
		logger:  logger,
	}
	deps.Jobs = job.NewPrepareService(
		job.NewMemoryRepository(),
		deps,
		logger,
		job.WithMaxConcurrentShards(cfg.MaxConcurrentShards),
	)
	return deps, nil
}

// Prepare runs the pipeline for a job request. Each run gets its own seed
// offset.
func (d *Dependencies) Prepare(ctx context.Context, req job.Request) (mvad.Stats, error) {
	p := d.NewPipeline(PipelineFlags{
		Aggressive:     req.Aggressive,
		IgnoreSpeakers: req.IgnoreSpeakers,
		SeedOffset:     d.runs.Add(1) - 1,
	})
	return p.Prepare(ctx, mvad.Job{
		Input:    req.Input,
		Output:   req.Output,
		Speakers: req.Speakers,
	})
}

var _ job.Preparer = (*Dependencies)(nil)

// Options maps the profile, the configured seed and flags to pipeline options.
func (d *Dependencies) Options(flags PipelineFlags) mvad.Options {
	seed := d.cfg.Seed
	if seed != 0 {
		seed += flags.SeedOffset
	}
	return mvad.Options{
		Filter: mvad.Filter{
			ArtifactSources: d.Profile.ArtifactSources,
			MinDuration:     d.Profile.MinDurationSec,
			MinPower:        d.Profile.MinPower,
		},
		MaxChunk:       d.Profile.MaxChunkSec,
		Aggressive:     flags.Aggressive,
		IgnoreSpeakers: flags.IgnoreSpeakers,
		Seed:           seed,
	}
}

// NewPipeline creates a pipeline over the configured storage.
func (d *Dependencies) NewPipeline(flags PipelineFlags) *mvad.Pipeline {
	return mvad.NewPipeline(d.Store, d.Options(flags), d.logger)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
