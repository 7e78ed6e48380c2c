package mvad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maauso/mvad/internal/shard"
)

func seg(start, end float64) Segment {
	return Segment{Start: start, End: end}
}

func fileSeq(files ...*File) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		for _, f := range files {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func recordSeq(records ...shard.Record) iter.Seq2[shard.Record, error] {
	return func(yield func(shard.Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func partSeq(parts ...*Part) iter.Seq2[*Part, error] {
	return func(yield func(*Part, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func collectErr[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func writeShard(t *testing.T, records ...shard.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := shard.NewWriter(&buf)
	for _, rec := range records {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readShard(t *testing.T, data []byte, url string) []shard.Record {
	t.Helper()
	return collect(t, shard.Read(bytes.NewReader(data), url))
}

// memStore is an in-memory ShardStore that publishes only on success.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (s *memStore) put(location string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[location] = data
}

func (s *memStore) get(location string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[location]
	return data, ok
}

func (s *memStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	data, ok := s.get(location)
	if !ok {
		return nil, errors.New("not found: " + location)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) WriteAtomic(_ context.Context, location string, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	s.put(location, buf.Bytes())
	return nil
}

var _ ShardStore = (*memStore)(nil)
