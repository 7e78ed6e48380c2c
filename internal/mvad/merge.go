package mvad

import (
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
)

// Merge reassembles split parts into file records.
//
// Parts of one source file must be contiguous. Marker parts are queued
// and released, as empty files, after the group that precedes them, which
// restores the original file order. The last group and any trailing
// markers are flushed when the input ends.
//
// A part that does not continue its group is logged with all its fields
// and the error is returned; iteration stops there.
func Merge(parts iter.Seq2[*Part, error], logger *slog.Logger) iter.Seq2[*File, error] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(yield func(*File, error) bool) {
		var (
			group   *groupState
			pending []*Part
		)
		flushGroup := func() (bool, error) {
			if group == nil {
				return true, nil
			}
			f, err := group.finish()
			group = nil
			if err != nil {
				return false, err
			}
			return yield(f, nil), nil
		}
		drainPending := func() bool {
			for _, m := range pending {
				if !yield(emptyFile(m), nil) {
					return false
				}
			}
			pending = pending[:0]
			return true
		}

		for p, err := range parts {
			if err != nil {
				yield(nil, err)
				return
			}
			if p.Marker {
				pending = append(pending, p)
				continue
			}

			if group != nil && group.file.Key != p.SrcKey {
				ok, err := flushGroup()
				if err != nil {
					logger.Error("failed to close part group", partAttrs(p)...)
					yield(nil, err)
					return
				}
				if !ok {
					return
				}
			}
			if group == nil {
				if !drainPending() {
					return
				}
				group = newGroup(p)
			}
			if err := group.add(p); err != nil {
				logger.Error("failed to merge part", partAttrs(p)...)
				yield(nil, fmt.Errorf("merge %s: %w", p.Key, err))
				return
			}
		}

		ok, err := flushGroup()
		if err != nil {
			logger.Error("failed to close final part group", slog.String("error", err.Error()))
			yield(nil, err)
			return
		}
		if ok {
			drainPending()
		}
	}
}

// groupState accumulates the parts of one source file.
type groupState struct {
	file     *File
	last     int
	speakers bool
	powers   bool
}

func newGroup(p *Part) *groupState {
	return &groupState{
		file: &File{
			Key:   p.SrcKey,
			URL:   p.URL,
			Extra: maps.Clone(p.Extra),
		},
		last:     p.Last,
		speakers: p.Speaker != nil,
		powers:   p.Power != nil,
	}
}

func (g *groupState) add(p *Part) error {
	f := g.file
	if p.Index != len(f.VAD) {
		return fmt.Errorf("%w: part index %d, want %d", ErrMalformedGroup, p.Index, len(f.VAD))
	}
	if p.Last != g.last {
		return fmt.Errorf("%w: part last index %d, group has %d", ErrMalformedGroup, p.Last, g.last)
	}
	if (p.Speaker != nil) != g.speakers {
		return fmt.Errorf("%w: speaker embedding present on some parts only", ErrMalformedGroup)
	}
	if (p.Power != nil) != g.powers {
		return fmt.Errorf("%w: power present on some parts only", ErrMalformedGroup)
	}

	f.VAD = append(f.VAD, p.Segment)
	if g.speakers {
		f.Speakers = append(f.Speakers, p.Speaker)
	}
	if g.powers {
		f.Powers = append(f.Powers, *p.Power)
	}
	return nil
}

func (g *groupState) finish() (*File, error) {
	if got := len(g.file.VAD); got != g.last+1 {
		return nil, fmt.Errorf("%w: %s has %d of %d parts", ErrMalformedGroup, g.file.Key, got, g.last+1)
	}
	return g.file, nil
}

// emptyFile converts a marker back into a file record without segments.
func emptyFile(m *Part) *File {
	return &File{
		Key:      m.SrcKey,
		URL:      m.URL,
		VAD:      []Segment{},
		Speakers: []Embedding{},
		Powers:   []float64{},
		Extra:    maps.Clone(m.Extra),
	}
}

func partAttrs(p *Part) []any {
	attrs := []any{
		slog.String("key", p.Key),
		slog.String("src_key", p.SrcKey),
		slog.String("url", p.URL),
		slog.Int("index", p.Index),
		slog.Int("last", p.Last),
		slog.Float64("start", p.Segment.Start),
		slog.Float64("end", p.Segment.End),
		slog.Int("speaker_dim", len(p.Speaker)),
		slog.Bool("has_power", p.Power != nil),
		slog.Any("extra_fields", slices.Sorted(maps.Keys(p.Extra))),
	}
	return attrs
}
