package mvad

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maauso/mvad/internal/shard"
)

// Shard field names of the input VAD data.
const (
	FieldVAD      = "vad.json"
	FieldSpeakers = "spk_emb.json"
	FieldPowers   = "powers.json"
)

// Per-kind output field suffixes; the full name is "<kind>.<suffix>".
const (
	suffixVAD      = FieldVAD
	suffixSpeakers = FieldSpeakers
	suffixSubVADs  = "subvads.json"
)

// ChunkField returns the output field name of a chunking component,
// e.g. ChunkField(KindMax, "vad.json") == "max.vad.json".
func ChunkField(kind Kind, suffix string) string {
	return string(kind) + "." + suffix
}

// DecodeFile decodes a shard record. Known VAD and chunking fields are
// parsed; everything else is kept verbatim in Extra.
func DecodeFile(rec shard.Record) (*File, error) {
	f := &File{
		Key:   rec.Key,
		URL:   rec.URL,
		Extra: make(map[string][]byte),
	}
	for name, data := range rec.Fields {
		var err error
		switch name {
		case FieldVAD:
			err = decodeField(data, &f.VAD)
		case FieldSpeakers:
			err = decodeField(data, &f.Speakers)
		case FieldPowers:
			err = decodeField(data, &f.Powers)
		default:
			var handled bool
			handled, err = decodeChunkField(f, name, data)
			if !handled {
				f.Extra[name] = data
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s of %s: %w", name, rec.Key, err)
		}
	}
	return f, nil
}

// decodeChunkField parses "<kind>.<suffix>" fields into f.Chunkings.
func decodeChunkField(f *File, name string, data []byte) (bool, error) {
	prefix, suffix, ok := strings.Cut(name, ".")
	if !ok {
		return false, nil
	}
	kind, err := ParseKind(prefix)
	if err != nil {
		return false, nil
	}
	c := f.Chunkings[kind]
	switch suffix {
	case suffixVAD:
		err = decodeField(data, &c.Segments)
	case suffixSpeakers:
		err = decodeField(data, &c.Speakers)
	case suffixSubVADs:
		err = decodeField(data, &c.SubVADs)
	default:
		return false, nil
	}
	if f.Chunkings == nil {
		f.Chunkings = make(map[Kind]Chunking, len(Kinds))
	}
	f.Chunkings[kind] = c
	return true, err
}

func decodeField(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// EncodeFile encodes f as a shard record. VAD, speaker and power arrays
// are written only when non-nil, so callers drop them by clearing the
// slices.
func EncodeFile(f *File) (shard.Record, error) {
	rec := shard.Record{
		Key:    f.Key,
		URL:    f.URL,
		Fields: make(map[string][]byte, len(f.Extra)+3*len(f.Chunkings)+3),
	}
	for name, data := range f.Extra {
		rec.Fields[name] = data
	}

	put := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s of %s: %w", name, f.Key, err)
		}
		rec.Fields[name] = data
		return nil
	}

	if f.VAD != nil {
		if err := put(FieldVAD, f.VAD); err != nil {
			return shard.Record{}, err
		}
	}
	if f.Speakers != nil {
		if err := put(FieldSpeakers, f.Speakers); err != nil {
			return shard.Record{}, err
		}
	}
	if f.Powers != nil {
		if err := put(FieldPowers, f.Powers); err != nil {
			return shard.Record{}, err
		}
	}
	for kind, c := range f.Chunkings {
		if err := put(ChunkField(kind, suffixVAD), orEmpty(c.Segments)); err != nil {
			return shard.Record{}, err
		}
		if err := put(ChunkField(kind, suffixSpeakers), orEmpty(c.Speakers)); err != nil {
			return shard.Record{}, err
		}
		if err := put(ChunkField(kind, suffixSubVADs), orEmpty(c.SubVADs)); err != nil {
			return shard.Record{}, err
		}
	}
	return rec, nil
}

// orEmpty keeps empty chunkings encoded as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
