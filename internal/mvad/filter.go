package mvad

import (
	"fmt"
	"strings"
)

// Filter drops degenerate segments before chunk merging.
type Filter struct {
	// ArtifactSources are URL substrings of collections whose first and
	// last segment are boundary artifacts.
	ArtifactSources []string
	// A segment shorter than MinDuration seconds whose power is below
	// MinPower is treated as near-silence.
	MinDuration float64
	MinPower    float64
}

// DefaultFilter returns the filter settings used for the reference corpora.
func DefaultFilter() Filter {
	return Filter{
		ArtifactSources: []string{"librilight", "test-shard.tar"},
		MinDuration:     1,
		MinPower:        -6,
	}
}

// FilterStats counts the segments a Filter removed from one file.
type FilterStats struct {
	Boundary int
	Silence  int
}

// Apply filters f in place. VAD, speaker embeddings and powers are cut
// with the same mask so they stay aligned.
func (flt Filter) Apply(f *File) (FilterStats, error) {
	var stats FilterStats
	if len(f.Powers) != len(f.VAD) {
		return stats, fmt.Errorf("%w: %s has %d segments and %d powers", ErrMisaligned, f.Key, len(f.VAD), len(f.Powers))
	}
	if n := len(f.Speakers); n > 0 && n != len(f.VAD) {
		return stats, fmt.Errorf("%w: %s has %d segments and %d speaker embeddings", ErrMisaligned, f.Key, len(f.VAD), n)
	}

	if flt.isArtifactSource(f.URL) {
		n := len(f.VAD)
		lo, hi := 1, n-1
		if n < 2 {
			lo, hi = 0, 0
		}
		stats.Boundary = n - (hi - lo)
		f.VAD = f.VAD[lo:hi]
		f.Powers = f.Powers[lo:hi]
		if len(f.Speakers) > 0 {
			f.Speakers = f.Speakers[lo:hi]
		}
	}

	keep := 0
	for i, seg := range f.VAD {
		if seg.Duration() < flt.MinDuration && f.Powers[i] < flt.MinPower {
			stats.Silence++
			continue
		}
		f.VAD[keep] = seg
		f.Powers[keep] = f.Powers[i]
		if len(f.Speakers) > 0 {
			f.Speakers[keep] = f.Speakers[i]
		}
		keep++
	}
	f.VAD = f.VAD[:keep]
	f.Powers = f.Powers[:keep]
	if len(f.Speakers) > 0 {
		f.Speakers = f.Speakers[:keep]
	}
	return stats, nil
}

func (flt Filter) isArtifactSource(url string) bool {
	for _, s := range flt.ArtifactSources {
		if strings.Contains(url, s) {
			return true
		}
	}
	return false
}
