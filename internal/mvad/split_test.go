package mvad

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mvad/internal/shard"
)

func partKeys(parts []*Part) []string {
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = p.Key
	}
	return keys
}

func fileKeys(files []*File) []string {
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.Key
	}
	return keys
}

func speechFile(key string, n int) *File {
	f := &File{
		Key:   key,
		URL:   "shard.tar",
		Extra: map[string][]byte{"gain_shift.npy": []byte(key)},
	}
	for i := 0; i < n; i++ {
		start := float64(i * 4)
		f.VAD = append(f.VAD, seg(start, start+3))
		f.Speakers = append(f.Speakers, Embedding{float64(i), 1})
		f.Powers = append(f.Powers, float64(-i))
	}
	return f
}

func TestSplit_PerSegmentParts(t *testing.T) {
	f := speechFile("a", 3)

	parts := collect(t, Split(fileSeq(f)))

	require.Len(t, parts, 3)
	assert.Equal(t, []string{"a_000", "a_001", "a_002"}, partKeys(parts))
	for i, p := range parts {
		assert.Equal(t, "a", p.SrcKey)
		assert.Equal(t, "shard.tar", p.URL)
		assert.Equal(t, i, p.Index)
		assert.Equal(t, 2, p.Last)
		assert.False(t, p.Marker)
		assert.Equal(t, f.VAD[i], p.Segment)
		assert.Equal(t, f.Speakers[i], p.Speaker)
		require.NotNil(t, p.Power)
		assert.Equal(t, f.Powers[i], *p.Power)
		assert.Equal(t, []byte("a"), p.Extra["gain_shift.npy"])
	}

	parts[0].Extra["gain_shift.npy"] = []byte("changed")
	assert.Equal(t, []byte("a"), parts[1].Extra["gain_shift.npy"], "copy fields are per part")
}

func TestSplit_WithoutSplitFields(t *testing.T) {
	f := &File{Key: "a", VAD: []Segment{seg(0, 1)}}

	parts := collect(t, Split(fileSeq(f)))

	require.Len(t, parts, 1)
	assert.Nil(t, parts[0].Speaker)
	assert.Nil(t, parts[0].Power)
}

func TestSplit_MarkersPrecedeNextGroup(t *testing.T) {
	files := []*File{
		speechFile("a", 2),
		speechFile("b", 0),
		speechFile("c", 0),
		speechFile("d", 1),
	}

	parts := collect(t, Split(fileSeq(files...)))

	assert.Equal(t, []string{"a_000", "a_001", "b_none", "c_none", "d_000"}, partKeys(parts))
	marker := parts[2]
	assert.True(t, marker.Marker)
	assert.Equal(t, "b", marker.SrcKey)
	assert.Nil(t, marker.Speaker)
	assert.Nil(t, marker.Power)
	assert.Contains(t, marker.Extra, "gain_shift.npy")
	assert.Empty(t, marker.Extra["gain_shift.npy"])
}

func TestSplit_LeadingAndTrailingMarkers(t *testing.T) {
	files := []*File{
		speechFile("a", 0),
		speechFile("b", 1),
		speechFile("c", 0),
	}

	parts := collect(t, Split(fileSeq(files...)))

	assert.Equal(t, []string{"a_none", "b_000", "c_none"}, partKeys(parts))
}

func TestSplit_Misaligned(t *testing.T) {
	f := speechFile("a", 2)
	f.Powers = f.Powers[:1]

	_, err := collectErr(Split(fileSeq(f)))
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestSplitMerge_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{"single empty file", []int{0}},
		{"single segment", []int{1}},
		{"many segments", []int{5}},
		{"interleaved empties", []int{2, 0, 3, 0, 0, 1}},
		{"leading and trailing empties", []int{0, 0, 2, 0}},
		{"only empties", []int{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var files []*File
			for i, n := range tt.sizes {
				files = append(files, speechFile(string(rune('a'+i)), n))
			}

			merged := collect(t, Merge(Split(fileSeq(files...)), discardLogger()))

			require.Equal(t, fileKeys(files), fileKeys(merged))
			for i, got := range merged {
				want := files[i]
				assert.Equal(t, want.URL, got.URL)
				assert.Len(t, got.VAD, len(want.VAD))
				if len(want.VAD) == 0 {
					assert.Empty(t, got.Speakers)
					assert.Empty(t, got.Powers)
					continue
				}
				assert.Equal(t, want.VAD, got.VAD)
				assert.Equal(t, want.Speakers, got.Speakers)
				assert.Equal(t, want.Powers, got.Powers)
				assert.Equal(t, want.Extra, got.Extra)
			}
		})
	}
}

func TestMerge_MalformedGroup(t *testing.T) {
	p := func(key, src string, index, last int) *Part {
		return &Part{Key: key, SrcKey: src, Index: index, Last: last, Segment: seg(float64(index), float64(index)+1)}
	}

	t.Run("skipped index", func(t *testing.T) {
		var logs bytes.Buffer
		_, err := collectErr(Merge(partSeq(p("a_000", "a", 0, 2), p("a_002", "a", 2, 2)), bufferLogger(&logs)))
		assert.ErrorIs(t, err, ErrMalformedGroup)
		assert.Contains(t, logs.String(), "failed to merge part")
		assert.Contains(t, logs.String(), "key=a_002")
	})

	t.Run("missing tail part", func(t *testing.T) {
		_, err := collectErr(Merge(partSeq(p("a_000", "a", 0, 1), p("b_000", "b", 0, 0)), discardLogger()))
		assert.ErrorIs(t, err, ErrMalformedGroup)
	})

	t.Run("truncated final group", func(t *testing.T) {
		files, err := collectErr(Merge(partSeq(p("a_000", "a", 0, 0), p("b_000", "b", 0, 3)), discardLogger()))
		assert.ErrorIs(t, err, ErrMalformedGroup)
		assert.Equal(t, []string{"a"}, fileKeys(files))
	})

	t.Run("speaker on some parts only", func(t *testing.T) {
		first := p("a_000", "a", 0, 1)
		first.Speaker = Embedding{1}
		_, err := collectErr(Merge(partSeq(first, p("a_001", "a", 1, 1)), discardLogger()))
		assert.ErrorIs(t, err, ErrMalformedGroup)
	})
}

func TestMerge_StopsEarly(t *testing.T) {
	files := []*File{speechFile("a", 1), speechFile("b", 0), speechFile("c", 2)}

	var got []string
	for f, err := range Merge(Split(fileSeq(files...)), discardLogger()) {
		require.NoError(t, err)
		got = append(got, f.Key)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestJoinSpeakers(t *testing.T) {
	a := speechFile("a", 3)
	a.Speakers = nil
	files := []*File{a, speechFile("b", 0)}

	side := []shard.Record{
		{Key: "a_000", Fields: map[string][]byte{FieldSpeakers: mustJSON(t, Embedding{1, 0})}},
		{Key: "a_001", Fields: map[string][]byte{FieldSpeakers: mustJSON(t, Embedding{0, 1})}},
		{Key: "a_002", Fields: map[string][]byte{FieldSpeakers: mustJSON(t, Embedding{1, 1})}},
	}

	parts := collect(t, JoinSpeakers(Split(fileSeq(files...)), recordSeq(side...)))

	require.Len(t, parts, 4)
	assert.Equal(t, Embedding{1, 0}, parts[0].Speaker)
	assert.Equal(t, Embedding{0, 1}, parts[1].Speaker)
	assert.Equal(t, Embedding{1, 1}, parts[2].Speaker)
	assert.True(t, parts[3].Marker)
	assert.Nil(t, parts[3].Speaker)
}

func TestJoinSpeakers_PartWithoutRecord(t *testing.T) {
	a := speechFile("a", 2)
	a.Speakers = nil
	side := []shard.Record{
		{Key: "a_001", Fields: map[string][]byte{FieldSpeakers: mustJSON(t, Embedding{1})}},
	}

	parts := collect(t, JoinSpeakers(Split(fileSeq(a)), recordSeq(side...)))

	require.Len(t, parts, 2)
	assert.Nil(t, parts[0].Speaker)
	assert.Equal(t, Embedding{1}, parts[1].Speaker)

	_, err := collectErr(Merge(partSeq(parts...), discardLogger()))
	assert.ErrorIs(t, err, ErrMalformedGroup)
}

func TestJoinSpeakers_BadSideRecord(t *testing.T) {
	a := speechFile("a", 1)
	a.Speakers = nil

	t.Run("missing field", func(t *testing.T) {
		side := []shard.Record{{Key: "a_000", Fields: map[string][]byte{}}}
		_, err := collectErr(JoinSpeakers(Split(fileSeq(a)), recordSeq(side...)))
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("undecodable", func(t *testing.T) {
		side := []shard.Record{{Key: "a_000", Fields: map[string][]byte{FieldSpeakers: []byte("{")}}}
		_, err := collectErr(JoinSpeakers(Split(fileSeq(a)), recordSeq(side...)))
		assert.Error(t, err)
	})
}
