package mvad

import (
	"fmt"
	"slices"
)

const (
	// longSegment is the duration above which a segment's embedding is
	// trusted: it joins the chunk average and is held to the stricter
	// speaker-change threshold.
	longSegment = 2.0
	// Similarity below these values signals a speaker change.
	longSegmentSimilarity  = 0.5
	shortSegmentSimilarity = 0.1
)

// chunkState is the open chunk of a MergeChunks pass.
type chunkState struct {
	start, end float64
	sum        Embedding
	count      int
	ref        Embedding
	subvads    []Segment
}

// openChunk starts a chunk at seg, seeded with its embedding.
func openChunk(seg Segment, spk Embedding) *chunkState {
	return &chunkState{
		start:   seg.Start,
		end:     seg.End,
		sum:     slices.Clone(spk),
		count:   1,
		ref:     spk,
		subvads: []Segment{seg},
	}
}

// absorb extends the chunk with seg. Only long segments contribute to
// the embedding average.
func (c *chunkState) absorb(seg Segment, spk Embedding) {
	if seg.Duration() > longSegment {
		for i, v := range spk {
			c.sum[i] += v
		}
		c.count++
	}
	c.ref = spk
	c.end = seg.End
	c.subvads = append(c.subvads, seg)
}

func (c *chunkState) speakerChanged(seg Segment, spk Embedding) bool {
	threshold := shortSegmentSimilarity
	if seg.Duration() > longSegment {
		threshold = longSegmentSimilarity
	}
	return cosineSimilarity(c.ref, spk) < threshold
}

func (c *chunkState) appendTo(out *Chunking) {
	mean := make(Embedding, len(c.sum))
	for i, v := range c.sum {
		mean[i] = v / float64(c.count)
	}
	out.Segments = append(out.Segments, Segment{Start: c.start, End: c.end})
	out.Speakers = append(out.Speakers, mean)
	out.SubVADs = append(out.SubVADs, c.subvads)
}

// MergeChunks merges consecutive segments of one file into chunks in a
// single left-to-right pass.
//
// An incoming segment starts a new chunk when its speaker differs from
// the previous segment's, or when cut reports that absorbing it would make
// the chunk too long, provided the open chunk has positive duration. The
// segment that triggers a cut seeds the new chunk's embedding average and
// is not part of the closed chunk's average. Later segments join the
// average only when longer than two seconds; every segment extends the
// chunk and is listed in its subvads.
func MergeChunks(segments []Segment, speakers []Embedding, cut Policy) (Chunking, error) {
	out := Chunking{
		Segments: []Segment{},
		Speakers: []Embedding{},
		SubVADs:  [][]Segment{},
	}
	if len(segments) != len(speakers) {
		return out, fmt.Errorf("%w: %d segments and %d speaker embeddings", ErrMisaligned, len(segments), len(speakers))
	}
	if len(segments) == 0 {
		return out, nil
	}
	if err := checkDims(speakers); err != nil {
		return out, err
	}

	cur := openChunk(segments[0], speakers[0])
	for i := 1; i < len(segments); i++ {
		seg, spk := segments[i], speakers[i]
		changed := cur.speakerChanged(seg, spk)
		if (changed || cut(seg.End-cur.start)) && cur.end-cur.start > 0 {
			cur.appendTo(&out)
			cur = openChunk(seg, spk)
			continue
		}
		cur.absorb(seg, spk)
	}
	cur.appendTo(&out)
	return out, nil
}
