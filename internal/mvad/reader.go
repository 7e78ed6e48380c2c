package mvad

import (
	"fmt"
	"iter"
	"slices"

	"github.com/maauso/mvad/internal/shard"
)

// Sample is one chunk of a file, ready to be cut from the audio at
// training time.
type Sample struct {
	Key    string
	SrcKey string
	URL    string
	// Index is the chunk position within the file and Last the index of
	// the file's final chunk.
	Index int
	Last  int

	Segment Segment
	Speaker Embedding
	SubVADs []Segment

	Extra map[string][]byte
}

// ChunkedReader re-splits mvad records into per-chunk samples of one
// chunking kind.
type ChunkedReader struct {
	kind Kind
}

// NewChunkedReader creates a reader for kind.
func NewChunkedReader(kind Kind) (*ChunkedReader, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return &ChunkedReader{kind: kind}, nil
}

// Kind returns the chunking kind the reader selects.
func (r *ChunkedReader) Kind() Kind {
	return r.kind
}

// Samples yields one sample per chunk. Files without chunks yield nothing.
func (r *ChunkedReader) Samples(records iter.Seq2[shard.Record, error]) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		for rec, err := range records {
			if err != nil {
				yield(Sample{}, err)
				return
			}
			f, err := DecodeFile(rec)
			if err != nil {
				yield(Sample{}, err)
				return
			}
			c, ok := f.Chunkings[r.kind]
			if !ok {
				yield(Sample{}, fmt.Errorf("%w: %s chunking in record %s", ErrMissingField, r.kind, rec.Key))
				return
			}
			if len(c.SubVADs) != c.Len() {
				yield(Sample{}, fmt.Errorf("%w: %s has %d %s chunks and %d subvad lists", ErrMisaligned, rec.Key, c.Len(), r.kind, len(c.SubVADs)))
				return
			}

			view := &File{
				Key:      f.Key,
				URL:      f.URL,
				VAD:      c.Segments,
				Speakers: c.Speakers,
				Extra:    f.Extra,
			}
			for p, err := range Split(single(view)) {
				if err != nil {
					yield(Sample{}, err)
					return
				}
				if p.Marker {
					continue
				}
				s := Sample{
					Key:     p.Key,
					SrcKey:  p.SrcKey,
					URL:     p.URL,
					Index:   p.Index,
					Last:    p.Last,
					Segment: p.Segment,
					Speaker: p.Speaker,
					SubVADs: slices.Clone(c.SubVADs[p.Index]),
					Extra:   p.Extra,
				}
				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

func single(f *File) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		yield(f, nil)
	}
}
