package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mvad/internal/config"
	"github.com/maauso/mvad/internal/job"
	"github.com/maauso/mvad/internal/mvad"
	"github.com/maauso/mvad/internal/shard"
	"github.com/maauso/mvad/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TempDir:             t.TempDir(),
		MaxConcurrentShards: 1,
		LogFormat:           "text",
		LogLevel:            "error",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDependencies_LocalStorage(t *testing.T) {
	deps, err := NewDependencies(testConfig(t), testLogger())
	require.NoError(t, err)

	assert.IsType(t, &storage.LocalStorage{}, deps.Store)
	assert.Equal(t, config.DefaultProfile(), deps.Profile)
}

func TestNewDependencies_S3Storage(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"

	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)

	assert.IsType(t, &storage.S3Storage{}, deps.Store)
}

func TestNewDependencies_Profile(t *testing.T) {
	dir := t.TempDir()

	t.Run("custom profile", func(t *testing.T) {
		path := filepath.Join(dir, "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("artifact_sources: [mls]\nmin_duration_sec: 0.5\nmin_power: -8\nmax_chunk_sec: 20\n"), 0o644))
		cfg := testConfig(t)
		cfg.ProfilePath = path

		deps, err := NewDependencies(cfg, testLogger())
		require.NoError(t, err)

		assert.Equal(t, []string{"mls"}, deps.Profile.ArtifactSources)
		assert.Equal(t, 20.0, deps.Profile.MaxChunkSec)
	})

	t.Run("invalid profile", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_chunk_sec: -1\n"), 0o644))
		cfg := testConfig(t)
		cfg.ProfilePath = path

		_, err := NewDependencies(cfg, testLogger())
		assert.ErrorIs(t, err, config.ErrInvalidProfile)
	})

	t.Run("missing profile", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ProfilePath = filepath.Join(dir, "missing.yaml")

		_, err := NewDependencies(cfg, testLogger())
		assert.Error(t, err)
	})
}

func TestDependencies_Options(t *testing.T) {
	cfg := testConfig(t)
	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)

	opts := deps.Options(PipelineFlags{Aggressive: true, IgnoreSpeakers: true, SeedOffset: 3})
	assert.Equal(t, mvad.DefaultFilter(), opts.Filter)
	assert.Equal(t, mvad.DefaultMaxChunk, opts.MaxChunk)
	assert.True(t, opts.Aggressive)
	assert.True(t, opts.IgnoreSpeakers)
	assert.Zero(t, opts.Seed, "no configured seed keeps runs random")

	cfg.Seed = 10
	assert.Equal(t, uint64(13), deps.Options(PipelineFlags{SeedOffset: 3}).Seed)
	assert.NotNil(t, deps.NewPipeline(PipelineFlags{}))
}

func TestDependencies_PrepareJob(t *testing.T) {
	cfg := testConfig(t)
	deps, err := NewDependencies(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, deps.Jobs)

	ctx := context.Background()
	dir := t.TempDir()
	input := filepath.Join(dir, "corpus-vad-000.tar")
	output := filepath.Join(dir, "corpus-mvad-000.tar")
	writeShard(t, input, shard.Record{Key: "a", Fields: map[string][]byte{
		"vad.json":     []byte(`[[0, 3], [3, 6]]`),
		"powers.json":  []byte(`[0, 0]`),
		"spk_emb.json": []byte(`[[1, 0], [0, 1]]`),
	}})

	created, err := deps.Jobs.CreateJob(ctx, job.Request{Input: input, Output: output})
	require.NoError(t, err)
	require.NoError(t, deps.Jobs.Run(ctx, created.ID))

	done, err := deps.Jobs.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.Result.Files)
	assert.Equal(t, 2, done.Result.Chunks[mvad.KindRaw])
	assert.FileExists(t, output)
}

func TestDependencies_PrepareJobFailure(t *testing.T) {
	deps, err := NewDependencies(testConfig(t), testLogger())
	require.NoError(t, err)
	ctx := context.Background()
	output := filepath.Join(t.TempDir(), "out.tar")

	created, err := deps.Jobs.CreateJob(ctx, job.Request{Input: filepath.Join(t.TempDir(), "missing.tar"), Output: output})
	require.NoError(t, err)
	assert.Error(t, deps.Jobs.Run(ctx, created.ID))

	failed, err := deps.Jobs.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "open input")
	assert.NoFileExists(t, output)
}

func writeShard(t *testing.T, location string, records ...shard.Record) {
	t.Helper()
	f, err := os.Create(location)
	require.NoError(t, err)
	w := shard.NewWriter(f)
	for _, rec := range records {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}
