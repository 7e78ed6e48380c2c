// Package mvad turns per-file VAD segments and speaker embeddings into
// merged chunkings suitable as TTS training samples.
//
// The pipeline is a chain of lazy stages over iter.Seq2 streams:
//
//	decode → Split → JoinSpeakers → Merge → Filter → MergeChunks ×3 → encode
//
// Each stage pulls one record at a time and buffers at most one source
// file's segments.
package mvad

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMisaligned is returned when per-segment arrays of a file differ in length.
	ErrMisaligned = errors.New("mvad: per-segment arrays are not aligned")
	// ErrMissingField is returned when a required shard field is absent.
	ErrMissingField = errors.New("mvad: missing field")
	// ErrMalformedGroup is returned when split parts cannot be merged back.
	ErrMalformedGroup = errors.New("mvad: malformed part group")
	// ErrUnknownKind is returned for an unrecognised chunking kind.
	ErrUnknownKind = errors.New("mvad: unknown chunking kind")
)

// Segment is a span of detected speech in seconds.
type Segment struct {
	Start float64
	End   float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// MarshalJSON encodes the segment as a [start, end] pair.
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Start, s.End})
}

// UnmarshalJSON decodes a [start, end] pair.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("segment: want 2 values, got %d", len(pair))
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}

// Embedding is a speaker embedding vector.
type Embedding []float64

// Kind names one of the chunkings kept side by side for every file.
type Kind string

const (
	// KindRaw cuts only on speaker changes.
	KindRaw Kind = "raw"
	// KindEq cuts at randomised lengths to flatten the duration distribution.
	KindEq Kind = "eq"
	// KindMax cuts at the chunk cap.
	KindMax Kind = "max"
)

// Kinds lists all chunking kinds in output order.
var Kinds = []Kind{KindRaw, KindEq, KindMax}

// ParseKind validates a chunking kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// File is one source audio file with its VAD data.
type File struct {
	Key string
	URL string

	// VAD, Speakers and Powers are aligned per segment. Speakers and
	// Powers may be empty when not yet attached.
	VAD      []Segment
	Speakers []Embedding
	Powers   []float64

	// Extra holds opaque copy-through fields by field name.
	Extra map[string][]byte

	// Chunkings holds the merged chunk lists by kind.
	Chunkings map[Kind]Chunking
}

// Chunking is a partition of a file's VAD segments into chunks.
// All three slices are indexed by chunk.
type Chunking struct {
	Segments []Segment
	Speakers []Embedding
	SubVADs  [][]Segment
}

// Len returns the number of chunks.
func (c Chunking) Len() int {
	return len(c.Segments)
}
