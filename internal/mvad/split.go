package mvad

import (
	"encoding/json"
	"fmt"
	"iter"
	"maps"

	"github.com/maauso/mvad/internal/shard"
)

// markerSuffix is appended to the key of a file without speech.
const markerSuffix = "_none"

// Part is one element of a split stream. A regular part carries a single
// VAD segment of its source file. A marker part stands in for a source
// file without any segment so the Merger can restore it in place.
type Part struct {
	Key    string
	SrcKey string
	URL    string

	// Index is the segment position within the source file and Last the
	// highest index of that file. Both are zero for markers.
	Index int
	Last  int

	Marker bool

	Segment Segment
	// Speaker and Power are the per-segment split fields; nil when the
	// source file did not carry them.
	Speaker Embedding
	Power   *float64

	// Extra holds the copy fields of the source file.
	Extra map[string][]byte
}

// Split expands file records into per-segment parts.
//
// Files without segments produce a marker part. Markers are held back and
// emitted immediately before the first part of the next file that has
// segments, so they never appear inside a group; markers still pending
// when the input ends are emitted last.
func Split(files iter.Seq2[*File, error]) iter.Seq2[*Part, error] {
	return func(yield func(*Part, error) bool) {
		var pending []*Part
		for f, err := range files {
			if err != nil {
				yield(nil, err)
				return
			}
			if len(f.VAD) == 0 {
				pending = append(pending, markerPart(f))
				continue
			}
			if err := checkSplitFields(f); err != nil {
				yield(nil, err)
				return
			}

			for _, m := range pending {
				if !yield(m, nil) {
					return
				}
			}
			pending = pending[:0]

			last := len(f.VAD) - 1
			for i, seg := range f.VAD {
				p := &Part{
					Key:     fmt.Sprintf("%s_%03d", f.Key, i),
					SrcKey:  f.Key,
					URL:     f.URL,
					Index:   i,
					Last:    last,
					Segment: seg,
					Extra:   maps.Clone(f.Extra),
				}
				if len(f.Speakers) > 0 {
					p.Speaker = f.Speakers[i]
				}
				if len(f.Powers) > 0 {
					v := f.Powers[i]
					p.Power = &v
				}
				if !yield(p, nil) {
					return
				}
			}
		}
		for _, m := range pending {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func checkSplitFields(f *File) error {
	if n := len(f.Speakers); n > 0 && n != len(f.VAD) {
		return fmt.Errorf("%w: %s has %d segments and %d speaker embeddings", ErrMisaligned, f.Key, len(f.VAD), n)
	}
	if n := len(f.Powers); n > 0 && n != len(f.VAD) {
		return fmt.Errorf("%w: %s has %d segments and %d powers", ErrMisaligned, f.Key, len(f.VAD), n)
	}
	return nil
}

// markerPart builds the marker for a file without segments. Copy fields
// keep their names but carry no data.
func markerPart(f *File) *Part {
	extra := make(map[string][]byte, len(f.Extra))
	for name := range f.Extra {
		extra[name] = nil
	}
	return &Part{
		Key:    f.Key + markerSuffix,
		SrcKey: f.Key,
		URL:    f.URL,
		Marker: true,
		Extra:  extra,
	}
}

// JoinSpeakers attaches per-segment speaker embeddings from a side dataset
// keyed like the parts ("<src>_003"). Both streams must be in the same
// order; each part has at most one side record. Parts without a matching
// record pass through unchanged and markers never consume side records.
func JoinSpeakers(parts iter.Seq2[*Part, error], side iter.Seq2[shard.Record, error]) iter.Seq2[*Part, error] {
	return func(yield func(*Part, error) bool) {
		next, stop := iter.Pull2(side)
		defer stop()

		var (
			cur  shard.Record
			have bool
		)
		advance := func() error {
			rec, err, ok := next()
			if !ok {
				have = false
				return nil
			}
			if err != nil {
				return fmt.Errorf("read speaker embeddings: %w", err)
			}
			cur, have = rec, true
			return nil
		}
		if err := advance(); err != nil {
			yield(nil, err)
			return
		}

		for p, err := range parts {
			if err != nil {
				yield(nil, err)
				return
			}
			if !p.Marker && have && cur.Key == p.Key {
				emb, err := decodeSideEmbedding(cur)
				if err != nil {
					yield(nil, err)
					return
				}
				p.Speaker = emb
				if err := advance(); err != nil {
					yield(nil, err)
					return
				}
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func decodeSideEmbedding(rec shard.Record) (Embedding, error) {
	data, ok := rec.Fields[FieldSpeakers]
	if !ok {
		return nil, fmt.Errorf("%w: %s in side record %s", ErrMissingField, FieldSpeakers, rec.Key)
	}
	var emb Embedding
	if err := json.Unmarshal(data, &emb); err != nil {
		return nil, fmt.Errorf("decode %s of %s: %w", FieldSpeakers, rec.Key, err)
	}
	return emb, nil
}
