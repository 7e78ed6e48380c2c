// Package shard reads and writes WebDataset-style tar shards.
// A shard is an ordered sequence of records; each record is stored as
// consecutive tar members named <key>.<field>.
package shard

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"sort"
	"strings"
	"time"
)

// Record is one keyed entry of a shard.
type Record struct {
	// Key identifies the record within the shard.
	Key string
	// URL is the location of the shard the record was read from.
	URL string
	// Fields maps field names (e.g. "vad.json") to raw payloads.
	Fields map[string][]byte
}

// splitName splits a member name into record key and field name.
// The key keeps any directory prefix and ends at the first dot of the
// base name.
func splitName(name string) (key, field string) {
	dir, base := path.Split(name)
	i := strings.IndexByte(base, '.')
	if i < 0 {
		return name, ""
	}
	return dir + base[:i], base[i+1:]
}

// Read returns a lazy iterator over the records of a tar stream.
// Members of the same record must be contiguous. Iteration stops at the
// first read error, which is yielded once.
func Read(r io.Reader, url string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		tr := tar.NewReader(r)
		var cur *Record
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(Record{}, fmt.Errorf("read shard %s: %w", url, err))
				return
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			key, field := splitName(hdr.Name)
			if field == "" {
				continue
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				yield(Record{}, fmt.Errorf("read member %s: %w", hdr.Name, err))
				return
			}
			if cur != nil && cur.Key != key {
				if !yield(*cur, nil) {
					return
				}
				cur = nil
			}
			if cur == nil {
				cur = &Record{Key: key, URL: url, Fields: make(map[string][]byte)}
			}
			cur.Fields[field] = data
		}
		if cur != nil {
			yield(*cur, nil)
		}
	}
}

// Writer writes records to a tar stream.
type Writer struct {
	tw      *tar.Writer
	modTime time.Time
	count   int
}

// NewWriter creates a Writer on top of w. Close must be called to flush
// the tar trailer; it does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{tw: tar.NewWriter(w), modTime: time.Now()}
}

// Write appends a record. Fields are written in name order so the output
// is stable for identical input.
func (w *Writer) Write(rec Record) error {
	if rec.Key == "" {
		return errors.New("shard: record key is empty")
	}
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := rec.Fields[name]
		hdr := &tar.Header{
			Name:    rec.Key + "." + name,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: w.modTime,
			Format:  tar.FormatPAX,
		}
		if err := w.tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", hdr.Name, err)
		}
		if _, err := w.tw.Write(data); err != nil {
			return fmt.Errorf("write member %s: %w", hdr.Name, err)
		}
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes the tar trailer.
func (w *Writer) Close() error {
	return w.tw.Close()
}

// DerivedName returns the location of a dataset derived from the shard at
// location, e.g. the speaker embeddings computed for an audio shard.
// "-audio-" or "-vad-" in the base name is replaced by "-<kind>-"; other
// names get "-<kind>" inserted before the extension.
func DerivedName(location, kind string) string {
	dir, base := path.Split(location)
	for _, from := range []string{"-audio-", "-vad-"} {
		if strings.Contains(base, from) {
			return dir + strings.Replace(base, from, "-"+kind+"-", 1)
		}
	}
	ext := ""
	if i := strings.Index(base, ".tar"); i >= 0 {
		base, ext = base[:i], base[i:]
	}
	return dir + base + "-" + kind + ext
}
