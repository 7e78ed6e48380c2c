package mvad

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mvad/internal/shard"
)

func TestSegment_JSON(t *testing.T) {
	data, err := json.Marshal([]Segment{seg(0.5, 1.25)})
	require.NoError(t, err)
	assert.JSONEq(t, `[[0.5, 1.25]]`, string(data))

	var got []Segment
	require.NoError(t, json.Unmarshal([]byte(`[[1, 2], [3, 4.5]]`), &got))
	assert.Equal(t, []Segment{seg(1, 2), seg(3, 4.5)}, got)

	assert.Error(t, json.Unmarshal([]byte(`[[1, 2, 3]]`), &got))
	assert.Error(t, json.Unmarshal([]byte(`[{"start": 1}]`), &got))
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("median")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestChunkField(t *testing.T) {
	assert.Equal(t, "max.vad.json", ChunkField(KindMax, FieldVAD))
	assert.Equal(t, "eq.subvads.json", ChunkField(KindEq, "subvads.json"))
}

func TestDecodeFile(t *testing.T) {
	rec := shard.Record{
		Key: "abc",
		URL: "vad-000.tar",
		Fields: map[string][]byte{
			FieldVAD:           []byte(`[[0, 1.5], [2, 4]]`),
			FieldPowers:        []byte(`[-3, -7.5]`),
			FieldSpeakers:      []byte(`[[1, 0], [0, 1]]`),
			"gain_shift.npy":   []byte{0x93, 'N', 'U', 'M'},
			"raw.foo":          []byte("opaque"),
			"max.vad.json":     []byte(`[[0, 4]]`),
			"max.spk_emb.json": []byte(`[[0.5, 0.5]]`),
			"max.subvads.json": []byte(`[[[0, 1.5], [2, 4]]]`),
			"median.vad.json":  []byte(`[]`),
			"transcript.txt":   []byte("hello"),
		},
	}

	f, err := DecodeFile(rec)
	require.NoError(t, err)

	assert.Equal(t, "abc", f.Key)
	assert.Equal(t, "vad-000.tar", f.URL)
	assert.Equal(t, []Segment{seg(0, 1.5), seg(2, 4)}, f.VAD)
	assert.Equal(t, []float64{-3, -7.5}, f.Powers)
	assert.Equal(t, []Embedding{{1, 0}, {0, 1}}, f.Speakers)
	assert.Equal(t, map[string][]byte{
		"gain_shift.npy":  {0x93, 'N', 'U', 'M'},
		"raw.foo":         []byte("opaque"),
		"median.vad.json": []byte(`[]`),
		"transcript.txt":  []byte("hello"),
	}, f.Extra)

	require.Len(t, f.Chunkings, 1)
	assert.Equal(t, Chunking{
		Segments: []Segment{seg(0, 4)},
		Speakers: []Embedding{{0.5, 0.5}},
		SubVADs:  [][]Segment{{seg(0, 1.5), seg(2, 4)}},
	}, f.Chunkings[KindMax])
}

func TestDecodeFile_EmptyFieldData(t *testing.T) {
	f, err := DecodeFile(shard.Record{Key: "k", Fields: map[string][]byte{FieldVAD: {}}})
	require.NoError(t, err)
	assert.Nil(t, f.VAD)
}

func TestDecodeFile_Invalid(t *testing.T) {
	tests := map[string]string{
		FieldVAD:          `[[0]]`,
		FieldPowers:       `["loud"]`,
		"eq.subvads.json": `{`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFile(shard.Record{Key: "k", Fields: map[string][]byte{name: []byte(data)}})
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestEncodeFile(t *testing.T) {
	f := &File{
		Key:   "abc",
		URL:   "vad-000.tar",
		Extra: map[string][]byte{"gain_shift.npy": []byte("x")},
		Chunkings: map[Kind]Chunking{
			KindRaw: {
				Segments: []Segment{seg(0, 4)},
				Speakers: []Embedding{{1}},
				SubVADs:  [][]Segment{{seg(0, 2), seg(2, 4)}},
			},
			KindEq: {},
		},
	}

	rec, err := EncodeFile(f)
	require.NoError(t, err)

	assert.Equal(t, "abc", rec.Key)
	assert.NotContains(t, rec.Fields, FieldVAD)
	assert.NotContains(t, rec.Fields, FieldSpeakers)
	assert.NotContains(t, rec.Fields, FieldPowers)
	assert.Equal(t, []byte("x"), rec.Fields["gain_shift.npy"])
	assert.JSONEq(t, `[[0, 4]]`, string(rec.Fields["raw.vad.json"]))
	assert.JSONEq(t, `[[1]]`, string(rec.Fields["raw.spk_emb.json"]))
	assert.JSONEq(t, `[[[0, 2], [2, 4]]]`, string(rec.Fields["raw.subvads.json"]))
	assert.Equal(t, "[]", string(rec.Fields["eq.vad.json"]))
	assert.Equal(t, "[]", string(rec.Fields["eq.spk_emb.json"]))
	assert.Equal(t, "[]", string(rec.Fields["eq.subvads.json"]))

	back, err := DecodeFile(rec)
	require.NoError(t, err)
	assert.Equal(t, f.Chunkings[KindRaw], back.Chunkings[KindRaw])
	assert.Equal(t, 0, back.Chunkings[KindEq].Len())
	assert.Equal(t, f.Extra, back.Extra)
}

func TestEncodeFile_KeepsVADWhenSet(t *testing.T) {
	f := &File{Key: "k", VAD: []Segment{}, Powers: []float64{}}

	rec, err := EncodeFile(f)
	require.NoError(t, err)

	assert.Equal(t, "[]", string(rec.Fields[FieldVAD]))
	assert.Equal(t, "[]", string(rec.Fields[FieldPowers]))
	assert.NotContains(t, rec.Fields, FieldSpeakers)
}
