// Package objstream provides adaptive, seekable read access to objects in
// bucket-scoped stores.
//
// The package sits between format-aware readers (columnar files, archives,
// media containers) and a remote object store that only answers streaming
// range requests. A ReadChannel opened through a Client behaves like a
// local file: it can be read, seeked and closed, while the implementation
// decides per read whether to keep consuming a live range stream, discard a
// short gap in place, serve tail bytes from a one-shot footer cache, or
// issue a new fetch sized to the observed access pattern.
//
// Basic usage:
//
//	client, err := objstream.NewS3Client(ctx, objstream.S3Options{
//		Region: "us-east-1",
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	ch, err := client.Open(ctx, "my-bucket", "data/part-0001.parquet")
//	if err != nil {
//		return err
//	}
//	defer ch.Close()
//
//	if _, err := ch.Seek(-footerLen, io.SeekEnd); err != nil {
//		return err
//	}
//	footer := make([]byte, footerLen)
//	if _, err := io.ReadFull(ch, footer); err != nil {
//		return err
//	}
//
// Transient transport failures are retried with exponential backoff inside
// the fetch layer; a reader only ever sees an error when retries are
// exhausted or the failure is not retryable. Every chunk received from the
// store is CRC32C-validated unless checksums are disabled.
package objstream

import (
	"io"

	"github.com/objstream/objstream/pkg/types"
)

// Re-exported core types, so most callers only import this package.
type (
	ObjectHandle  = types.ObjectHandle
	ObjectInfo    = types.ObjectInfo
	Range         = types.Range
	ReadOptions   = types.ReadOptions
	RequestEvent  = types.RequestEvent
	Interceptor   = types.Interceptor
	AccessPattern = types.AccessPattern
)

// Access pattern hints for ReadOptions.
const (
	PatternAuto       = types.PatternAuto
	PatternSequential = types.PatternSequential
	PatternRandom     = types.PatternRandom
)

// ReadChannel is a seekable byte view over one object. The position moves
// with every successful read; at the end of the object Read returns
// (0, io.EOF). All operations on a closed channel fail.
type ReadChannel interface {
	io.Reader
	io.Seeker
	io.Closer

	// Position returns the current read position.
	Position() int64

	// Info returns the metadata resolved when the channel was opened.
	Info() ObjectInfo
}
