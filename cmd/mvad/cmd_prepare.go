package main

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/mvad/internal/bootstrap"
	"github.com/maauso/mvad/internal/mvad"
	"github.com/maauso/mvad/internal/shard"
)

// addPipelineFlags registers the switches shared by the prepare commands.
func addPipelineFlags(c *cobra.Command) {
	c.Flags().Bool("no-spk-emb", false, "input records carry spk_emb.json themselves; do not read a speaker shard")
	c.Flags().Bool("eqvad", false, "use the aggressive randomised cutter for the eq chunking")
	c.Flags().Bool("ignore-spk-emb", false, "ignore speaker embeddings, cut on duration only")
}

func pipelineFlags(cmd *cobra.Command) bootstrap.PipelineFlags {
	aggressive, _ := cmd.Flags().GetBool("eqvad")
	ignore, _ := cmd.Flags().GetBool("ignore-spk-emb")
	return bootstrap.PipelineFlags{Aggressive: aggressive, IgnoreSpeakers: ignore}
}

// speakerShard resolves the per-segment speaker shard of input.
func speakerShard(cmd *cobra.Command, input string) string {
	if skip, _ := cmd.Flags().GetBool("no-spk-emb"); skip {
		return ""
	}
	if explicit, _ := cmd.Flags().GetString("spk-emb"); explicit != "" {
		return explicit
	}
	return shard.DerivedName(input, "spk_emb")
}

func newPrepareCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "prepare INPUT OUTPUT",
		Short: "Merge the VAD segments of one shard into raw, eq and max chunkings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			job := mvad.Job{
				Input:    args[0],
				Output:   args[1],
				Speakers: speakerShard(cmd, args[0]),
			}
			stats, err := a.deps.NewPipeline(pipelineFlags(cmd)).Prepare(cmd.Context(), job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d raw / %d eq / %d max chunks\n",
				job.Output, stats.Files, stats.Chunks[mvad.KindRaw], stats.Chunks[mvad.KindEq], stats.Chunks[mvad.KindMax])
			return nil
		},
	}
	c.Flags().String("spk-emb", "", "speaker embedding shard (default: derived from INPUT)")
	addPipelineFlags(c)
	return c
}

func newPrepareAllCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "prepare-all INPUT...",
		Short: "Prepare many shards concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			outDir, _ := cmd.Flags().GetString("output-dir")
			if outDir == "" {
				return fmt.Errorf("--output-dir is required")
			}
			flags := pipelineFlags(cmd)

			var files, chunks atomic.Int64
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(a.cfg.MaxConcurrentShards)
			for i, input := range args {
				job := mvad.Job{
					Input:    input,
					Output:   outputLocation(outDir, input),
					Speakers: speakerShard(cmd, input),
				}
				shardFlags := flags
				shardFlags.SeedOffset = uint64(i)
				g.Go(func() error {
					stats, err := a.deps.NewPipeline(shardFlags).Prepare(ctx, job)
					if err != nil {
						return fmt.Errorf("prepare %s: %w", job.Input, err)
					}
					files.Add(int64(stats.Files))
					chunks.Add(int64(stats.Chunks[mvad.KindMax]))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			a.logger.Info("all shards prepared",
				slog.Int("shards", len(args)),
				slog.Int64("files", files.Load()),
				slog.Int64("max_chunks", chunks.Load()),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%d shards, %d files\n", len(args), files.Load())
			return nil
		},
	}
	c.Flags().String("output-dir", "", "directory or s3:// prefix for the mvad shards (required)")
	addPipelineFlags(c)
	return c
}

// outputLocation places the mvad shard derived from input under dir.
func outputLocation(dir, input string) string {
	return strings.TrimSuffix(dir, "/") + "/" + shard.DerivedName(path.Base(input), "mvad")
}
