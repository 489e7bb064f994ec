package types

import (
	"fmt"
	"time"
)

// ObjectHandle identifies an object in a bucket-scoped store. A non-zero
// Generation pins reads to one version of the object.
type ObjectHandle struct {
	Bucket     string `json:"bucket"`
	Name       string `json:"name"`
	Generation int64  `json:"generation,omitempty"`
}

// String returns the handle in bucket/name#generation form.
func (h ObjectHandle) String() string {
	if h.Generation != 0 {
		return fmt.Sprintf("%s/%s#%d", h.Bucket, h.Name, h.Generation)
	}
	return fmt.Sprintf("%s/%s", h.Bucket, h.Name)
}

// ObjectInfo represents resolved metadata about an object.
type ObjectInfo struct {
	Bucket       string            `json:"bucket"`
	Name         string            `json:"name"`
	Generation   int64             `json:"generation,omitempty"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// CRC32C is the Castagnoli checksum of the full object content.
	// Valid only when HasCRC32C is true; not every backend provides it.
	CRC32C    uint32 `json:"crc32c,omitempty"`
	HasCRC32C bool   `json:"has_crc32c,omitempty"`
}

// Handle returns the ObjectHandle for this info, pinned to its generation.
func (i ObjectInfo) Handle() ObjectHandle {
	return ObjectHandle{Bucket: i.Bucket, Name: i.Name, Generation: i.Generation}
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Length returns the number of bytes covered by the range.
func (r Range) Length() int64 { return r.End - r.Start }

// Contains reports whether pos falls inside [Start, End).
func (r Range) Contains(pos int64) bool { return pos >= r.Start && pos < r.End }

// IsZero reports whether the range is empty and unset.
func (r Range) IsZero() bool { return r.Start == 0 && r.End == 0 }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// AccessPattern hints at the expected read locality of a channel and drives
// how aggressively a range fetch over-reads.
type AccessPattern int

const (
	// PatternAuto starts with random-access sizing and upgrades to
	// sequential sizing once consecutive contiguous reads are observed.
	PatternAuto AccessPattern = iota
	// PatternSequential reads to the end of the object on every fetch.
	PatternSequential
	// PatternRandom clips every fetch tightly to the requested length.
	PatternRandom
)

// String returns the lowercase name of the pattern.
func (p AccessPattern) String() string {
	switch p {
	case PatternSequential:
		return "sequential"
	case PatternRandom:
		return "random"
	default:
		return "auto"
	}
}

// ParseAccessPattern parses a pattern name as used in configuration files.
func ParseAccessPattern(s string) (AccessPattern, error) {
	switch s {
	case "", "auto":
		return PatternAuto, nil
	case "sequential":
		return PatternSequential, nil
	case "random":
		return PatternRandom, nil
	default:
		return PatternAuto, fmt.Errorf("unknown access pattern %q", s)
	}
}

// ReadOptions configures a read channel at open time. The zero value is
// usable after Normalize fills in defaults.
type ReadOptions struct {
	// Pattern hints at the expected access locality.
	Pattern AccessPattern `json:"pattern"`

	// InPlaceSeekLimit is the maximum forward skip served by discarding
	// bytes from the live stream instead of issuing a new fetch.
	InPlaceSeekLimit int64 `json:"in_place_seek_limit"`

	// MinRangeRequestSize is the floor on how many bytes to request per
	// fetch, amortizing round-trip cost. It also derives the footer zone.
	MinRangeRequestSize int64 `json:"min_range_request_size"`

	// ChecksumsEnabled turns on per-chunk CRC32C validation.
	ChecksumsEnabled bool `json:"checksums_enabled"`

	// FetchTimeout bounds each underlying fetch operation.
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// Default read option values.
const (
	DefaultInPlaceSeekLimit    = 8 * 1024
	DefaultMinRangeRequestSize = 2 * 1024
	DefaultFetchTimeout        = 30 * time.Second
)

// DefaultReadOptions returns the options used when none are supplied.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Pattern:             PatternAuto,
		InPlaceSeekLimit:    DefaultInPlaceSeekLimit,
		MinRangeRequestSize: DefaultMinRangeRequestSize,
		ChecksumsEnabled:    true,
		FetchTimeout:        DefaultFetchTimeout,
	}
}

// Normalize fills zero-valued numeric fields with their defaults and returns
// the result. ChecksumsEnabled is left as set by the caller.
func (o ReadOptions) Normalize() ReadOptions {
	if o.InPlaceSeekLimit <= 0 {
		o.InPlaceSeekLimit = DefaultInPlaceSeekLimit
	}
	if o.MinRangeRequestSize <= 0 {
		o.MinRangeRequestSize = DefaultMinRangeRequestSize
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	return o
}

// RequestKind classifies an outbound request for observability hooks.
type RequestKind string

const (
	KindRead   RequestKind = "read"
	KindWrite  RequestKind = "write"
	KindStat   RequestKind = "stat"
	KindDelete RequestKind = "delete"
	KindList   RequestKind = "list"
)

// RequestEvent describes one outbound request or one inbound message on the
// wire. Observers receive one event per request and one per message; they
// may drop completion events without affecting correctness.
type RequestEvent struct {
	Kind      RequestKind   `json:"kind"`
	Bucket    string        `json:"bucket"`
	Object    string        `json:"object"`
	RequestID string        `json:"request_id"`
	Elapsed   time.Duration `json:"elapsed"`
	WireBytes int64         `json:"wire_bytes"`

	// Final marks the completion event of a streamed request.
	Final bool `json:"final,omitempty"`
}
