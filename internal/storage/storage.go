// Package storage provides shard I/O for the mvad pipeline.
// It defines the Storage interface (port) and implementations for local
// disk and S3.
package storage

import (
	"context"
	"io"
	"strings"
)

// Storage defines the interface for reading input shards and writing
// output shards.
type Storage interface {
	// Open returns a reader over the shard at location.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// WriteAtomic calls write with a handle to a temporary destination and
	// publishes the result at location only if write returns nil.
	// On failure nothing is left at location.
	WriteAtomic(ctx context.Context, location string, write func(w io.Writer) error) error
}

const s3Scheme = "s3://"

// ParseS3URL splits an s3://bucket/key location.
// ok is false for locations that are not S3 URLs.
func ParseS3URL(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, s3Scheme)
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
