package mvad

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/mvad/internal/metrics"
	"github.com/maauso/mvad/internal/shard"
)

// ShardStore is the storage the Pipeline reads and writes shards through.
type ShardStore interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	WriteAtomic(ctx context.Context, location string, write func(w io.Writer) error) error
}

// Options configures a Pipeline.
type Options struct {
	Filter Filter
	// MaxChunk is the chunk cap of the eq and max chunkings, in seconds.
	MaxChunk float64
	// Aggressive switches the eq chunking from Equalized to Aggressive.
	Aggressive bool
	// IgnoreSpeakers replaces all speaker embeddings with a constant
	// vector so only duration limits cut chunks.
	IgnoreSpeakers bool
	// Seed seeds the eq policy. Zero draws a fresh seed per run.
	Seed uint64
}

// DefaultOptions returns the reference pipeline settings.
func DefaultOptions() Options {
	return Options{
		Filter:   DefaultFilter(),
		MaxChunk: DefaultMaxChunk,
	}
}

// Job describes one shard run.
type Job struct {
	// Input is the VAD shard location.
	Input string
	// Output is where the mvad shard is written.
	Output string
	// Speakers is the location of the per-segment speaker embedding shard.
	// Leave empty when Input already carries spk_emb per file.
	Speakers string
}

// Stats summarises one shard run.
type Stats struct {
	Files      int
	EmptyFiles int
	Dropped    FilterStats
	Chunks     map[Kind]int
}

// Pipeline drives the mvad stages over one shard at a time.
// A Pipeline is safe for concurrent Prepare calls; each call owns its
// random source and stage state.
type Pipeline struct {
	store  ShardStore
	opts   Options
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(store ShardStore, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = DefaultMaxChunk
	}
	return &Pipeline{store: store, opts: opts, logger: logger}
}

// Prepare reads job.Input, joins job.Speakers, merges chunks and writes the
// result to job.Output atomically: on any error no output is published.
func (p *Pipeline) Prepare(ctx context.Context, job Job) (Stats, error) {
	logger := p.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("input", job.Input),
	)
	start := time.Now()
	logger.Info("preparing shard",
		slog.String("output", job.Output),
		slog.String("speakers", job.Speakers),
	)

	stats, err := p.prepare(ctx, job, logger)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordShard(metrics.StatusFailed, elapsed)
		logger.Error("shard failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)
		return stats, err
	}

	metrics.RecordShard(metrics.StatusSuccess, elapsed)
	logger.Info("shard prepared",
		slog.Int("files", stats.Files),
		slog.Int("empty_files", stats.EmptyFiles),
		slog.Int("dropped_boundary", stats.Dropped.Boundary),
		slog.Int("dropped_silence", stats.Dropped.Silence),
		slog.Int("chunks_raw", stats.Chunks[KindRaw]),
		slog.Int("chunks_eq", stats.Chunks[KindEq]),
		slog.Int("chunks_max", stats.Chunks[KindMax]),
		slog.Duration("elapsed", elapsed),
	)
	return stats, nil
}

func (p *Pipeline) prepare(ctx context.Context, job Job, logger *slog.Logger) (Stats, error) {
	stats := Stats{Chunks: make(map[Kind]int, len(Kinds))}

	in, err := p.store.Open(ctx, job.Input)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = in.Close() }()

	var side iter.Seq2[shard.Record, error]
	if job.Speakers != "" {
		sr, err := p.store.Open(ctx, job.Speakers)
		if err != nil {
			return stats, fmt.Errorf("open speaker embeddings: %w", err)
		}
		defer func() { _ = sr.Close() }()
		side = shard.Read(sr, job.Speakers)
	}

	err = p.store.WriteAtomic(ctx, job.Output, func(w io.Writer) error {
		sw := shard.NewWriter(w)
		for f, err := range p.transform(shard.Read(in, job.Input), side, &stats, logger) {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("prepare cancelled: %w", err)
			}
			f.VAD, f.Speakers, f.Powers = nil, nil, nil
			rec, err := EncodeFile(f)
			if err != nil {
				return err
			}
			if err := sw.Write(rec); err != nil {
				return err
			}
		}
		return sw.Close()
	})
	return stats, err
}

// Transform composes the stages over decoded records. side may be nil when
// the records carry speaker embeddings themselves. The yielded files keep
// their VAD arrays; Prepare drops them before writing.
func (p *Pipeline) Transform(records, side iter.Seq2[shard.Record, error], stats *Stats) iter.Seq2[*File, error] {
	return p.transform(records, side, stats, p.logger)
}

func (p *Pipeline) transform(records, side iter.Seq2[shard.Record, error], stats *Stats, logger *slog.Logger) iter.Seq2[*File, error] {
	if stats.Chunks == nil {
		stats.Chunks = make(map[Kind]int, len(Kinds))
	}
	policies := p.policies(p.newRand())

	parts := Split(decodeInput(records))
	if side != nil {
		parts = JoinSpeakers(parts, side)
	}
	merged := Merge(parts, logger)

	return func(yield func(*File, error) bool) {
		for f, err := range merged {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := p.process(f, policies, stats); err != nil {
				logger.Error("failed to chunk file",
					slog.String("key", f.Key),
					slog.String("url", f.URL),
					slog.Int("segments", len(f.VAD)),
					slog.Int("speakers", len(f.Speakers)),
					slog.Int("powers", len(f.Powers)),
				)
				yield(nil, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (p *Pipeline) process(f *File, policies map[Kind]Policy, stats *Stats) error {
	stats.Files++
	metrics.RecordFile(len(f.VAD) > 0)
	if len(f.VAD) == 0 {
		stats.EmptyFiles++
	}

	dropped, err := p.opts.Filter.Apply(f)
	if err != nil {
		return err
	}
	stats.Dropped.Boundary += dropped.Boundary
	stats.Dropped.Silence += dropped.Silence
	metrics.RecordDroppedSegments(metrics.ReasonBoundary, dropped.Boundary)
	metrics.RecordDroppedSegments(metrics.ReasonSilence, dropped.Silence)

	if p.opts.IgnoreSpeakers {
		overrideSpeakers(f)
	}

	f.Chunkings = make(map[Kind]Chunking, len(Kinds))
	for _, kind := range Kinds {
		c, err := MergeChunks(f.VAD, f.Speakers, policies[kind])
		if err != nil {
			return fmt.Errorf("%s chunking of %s: %w", kind, f.Key, err)
		}
		f.Chunkings[kind] = c
		stats.Chunks[kind] += c.Len()
		for _, seg := range c.Segments {
			metrics.RecordChunk(string(kind), seg.Duration())
		}
	}
	return nil
}

func (p *Pipeline) policies(rng *rand.Rand) map[Kind]Policy {
	eq := Equalized(rng, p.opts.MaxChunk)
	if p.opts.Aggressive {
		eq = Aggressive(rng, p.opts.MaxChunk)
	}
	return map[Kind]Policy{
		KindRaw: Never(),
		KindEq:  eq,
		KindMax: MaxDuration(p.opts.MaxChunk),
	}
}

func (p *Pipeline) newRand() *rand.Rand {
	if p.opts.Seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(p.opts.Seed, p.opts.Seed))
}

// decodeInput decodes VAD shard records; every record must carry a VAD field.
func decodeInput(records iter.Seq2[shard.Record, error]) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		for rec, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			if _, ok := rec.Fields[FieldVAD]; !ok {
				yield(nil, fmt.Errorf("%w: %s in record %s", ErrMissingField, FieldVAD, rec.Key))
				return
			}
			f, err := DecodeFile(rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// overrideSpeakers replaces every embedding with an all-ones vector of the
// same dimension, or of dimension one when none are attached.
func overrideSpeakers(f *File) {
	dim := 1
	if len(f.Speakers) > 0 {
		dim = len(f.Speakers[0])
	}
	speakers := make([]Embedding, len(f.VAD))
	for i := range speakers {
		speakers[i] = ones(dim)
	}
	f.Speakers = speakers
}
