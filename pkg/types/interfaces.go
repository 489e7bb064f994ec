package types

import (
	"context"
	"time"
)

// Chunk is one inbound message of a streamed range read.
type Chunk struct {
	Data []byte

	// CRC32C is the Castagnoli checksum of Data, valid when HasCRC32C is
	// true. Transports that cannot checksum per chunk leave it unset.
	CRC32C    uint32
	HasCRC32C bool
}

// ChunkStream is a lazy, finite, non-restartable sequence of byte chunks.
// Next returns io.EOF when the range is exhausted normally; any other error
// means the stream broke before delivering the full range. Closing a stream
// stops pulling and releases the underlying request.
type ChunkStream interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// Transport exposes the streaming range-read primitive of the remote store.
// Connection establishment, routing, and credential attachment are owned by
// the implementation.
type Transport interface {
	// RangeRead streams the bytes of byteRange for the given object.
	RangeRead(ctx context.Context, h ObjectHandle, byteRange Range) (ChunkStream, error)
}

// Resolver resolves object existence and size before a channel can be
// opened. Called once per open, synchronously, before any read.
type Resolver interface {
	Resolve(ctx context.Context, h ObjectHandle) (*ObjectInfo, error)
}

// Store combines the range-read transport with the simple request/response
// collaborator operations that carry no caching or seek logic.
type Store interface {
	Transport
	Resolver

	// Put creates or overwrites an object with the given content.
	Put(ctx context.Context, h ObjectHandle, data []byte) (*ObjectInfo, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, h ObjectHandle) error

	// List returns objects in a bucket matching prefix, up to limit
	// entries (limit <= 0 means no limit).
	List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error)
}

// Interceptor observes request/response boundaries on the wire. OnRequest
// fires once per outbound request, OnMessage once per inbound message.
// Implementations must be cheap and must not retain Event slices.
type Interceptor interface {
	OnRequest(ev RequestEvent)
	OnMessage(ev RequestEvent)
}

// MetricsSink receives channel-level measurements. A nil sink is valid and
// means no recording.
type MetricsSink interface {
	RecordRead(bytes int64, elapsed time.Duration)
	RecordFetch(byteRange Range, elapsed time.Duration)
	RecordFetchBytes(n int64)
	RecordFooter(hit bool)
	RecordInPlaceSkip(bytes int64)
	RecordChecksumFailure()
	RecordRetry(attempt int)
}
