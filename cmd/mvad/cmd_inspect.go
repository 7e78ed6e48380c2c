package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/maauso/mvad/internal/mvad"
	"github.com/maauso/mvad/internal/shard"
)

// sampleLine is the JSON line printed per chunk.
type sampleLine struct {
	Key     string         `json:"key"`
	SrcKey  string         `json:"src_key"`
	Index   int            `json:"index"`
	Last    int            `json:"last"`
	Segment mvad.Segment   `json:"segment"`
	SubVADs []mvad.Segment `json:"subvads"`
	Speaker mvad.Embedding `json:"spk_emb,omitempty"`
	Fields  []string       `json:"fields,omitempty"`
}

func newInspectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "inspect SHARD",
		Short: "Print the chunks of an mvad shard as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			kindName, _ := cmd.Flags().GetString("kind")
			kind, err := mvad.ParseKind(kindName)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			withSpeaker, _ := cmd.Flags().GetBool("spk-emb")

			reader, err := mvad.NewChunkedReader(kind)
			if err != nil {
				return err
			}
			rc, err := a.deps.Store.Open(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("open shard: %w", err)
			}
			defer func() { _ = rc.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			n := 0
			for s, err := range reader.Samples(shard.Read(rc, args[0])) {
				if err != nil {
					return err
				}
				line := sampleLine{
					Key:     s.Key,
					SrcKey:  s.SrcKey,
					Index:   s.Index,
					Last:    s.Last,
					Segment: s.Segment,
					SubVADs: s.SubVADs,
					Fields:  slices.Sorted(maps.Keys(s.Extra)),
				}
				if withSpeaker {
					line.Speaker = s.Speaker
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
				n++
				if limit > 0 && n >= limit {
					break
				}
			}
			return nil
		},
	}
	c.Flags().String("kind", string(mvad.KindMax), "chunking kind: raw, eq or max")
	c.Flags().Int("limit", 0, "stop after this many chunks (0 prints all)")
	c.Flags().Bool("spk-emb", false, "include chunk speaker embeddings")
	return c
}
