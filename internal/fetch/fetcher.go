// Package fetch turns the transport's one-shot chunk streams into resumable
// range streams. Retry of transient transport failures lives entirely here:
// a broken stream is reopened at the current offset, invisibly to the
// caller, and validation failures surface as terminal errors.
package fetch

import (
	"context"
	"hash/crc32"
	"io"
	"log/slog"
	"time"

	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/retry"
	"github.com/objstream/objstream/pkg/types"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// State describes the lifecycle of a Stream.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Options configures a Fetcher.
type Options struct {
	// Checksums enables per-chunk CRC32C validation.
	Checksums bool

	// Timeout bounds each underlying transport stream. A timed-out stream
	// counts as a transient failure and is reopened at the current offset.
	Timeout time.Duration

	// Retryer bounds reopen attempts. Nil means default retry settings.
	Retryer *retry.Retryer

	// Sink receives fetch measurements. Nil means no recording.
	Sink types.MetricsSink

	Logger *slog.Logger
}

// Fetcher issues range fetches against a transport.
type Fetcher struct {
	transport types.Transport
	retryer   *retry.Retryer
	checksums bool
	timeout   time.Duration
	sink      types.MetricsSink
	logger    *slog.Logger
}

// New creates a Fetcher over the given transport.
func New(transport types.Transport, opts Options) *Fetcher {
	retryer := opts.Retryer
	if retryer == nil {
		retryer = retry.New(retry.DefaultConfig())
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = types.DefaultFetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		transport: transport,
		retryer:   retryer,
		checksums: opts.Checksums,
		timeout:   timeout,
		sink:      opts.Sink,
		logger:    logger,
	}
}

// Fetch opens a stream over byteRange of the object. The caller owns the
// returned stream and must close it.
func (f *Fetcher) Fetch(ctx context.Context, h types.ObjectHandle, byteRange types.Range) (*Stream, error) {
	if byteRange.Start < 0 || byteRange.End < byteRange.Start {
		return nil, errors.InvalidArgument("invalid fetch range %s", byteRange).WithOperation("fetch")
	}

	s := &Stream{
		fetcher:   f,
		handle:    h,
		byteRange: byteRange,
		offset:    byteRange.Start,
		pulled:    byteRange.Start,
		state:     StateIdle,
	}
	if byteRange.Length() == 0 {
		s.state = StateComplete
		return s, nil
	}

	start := time.Now()
	if err := s.open(ctx, byteRange.Start); err != nil {
		s.state = StateFailed
		s.err = err
		return nil, err
	}
	s.state = StateStreaming
	if f.sink != nil {
		f.sink.RecordFetch(byteRange, time.Since(start))
	}
	return s, nil
}

// Stream is a resumable view over one requested byte range. Bytes are
// consumed with Read and Skip; both advance the same offset. A stream is
// not safe for concurrent use.
type Stream struct {
	fetcher   *Fetcher
	handle    types.ObjectHandle
	byteRange types.Range

	cs     types.ChunkStream
	cancel context.CancelFunc

	// offset is the absolute position of the next byte handed to the
	// caller; pulled is the absolute position of the next byte to pull
	// from the transport. pending holds validated, undelivered bytes.
	offset  int64
	pulled  int64
	pending []byte

	// resumes counts consecutive reopens without a delivered chunk.
	resumes int

	state State
	err   error
}

// Offset returns the absolute position of the next unread byte.
func (s *Stream) Offset() int64 { return s.offset }

// Range returns the byte range this stream was opened for.
func (s *Stream) Range() types.Range { return s.byteRange }

// State returns the stream lifecycle state.
func (s *Stream) State() State { return s.state }

// Err returns the terminal error of a failed stream, nil otherwise.
func (s *Stream) Err() error {
	if s.state == StateFailed {
		return s.err
	}
	return nil
}

// Remaining returns how many bytes the stream can still deliver.
func (s *Stream) Remaining() int64 { return s.byteRange.End - s.offset }

// Read copies up to len(p) bytes into p. It returns io.EOF exactly once,
// after the full range has been delivered, and never alongside data.
func (s *Stream) Read(ctx context.Context, p []byte) (int, error) {
	if s.state == StateFailed {
		return 0, s.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	total := 0
	for total < len(p) {
		if len(s.pending) == 0 {
			err := s.pull(ctx)
			if err == io.EOF {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			if err != nil {
				if total > 0 {
					// deliver what we have; the error resurfaces on
					// the next call
					return total, nil
				}
				return 0, err
			}
		}
		n := copy(p[total:], s.pending)
		s.pending = s.pending[n:]
		s.offset += int64(n)
		total += n
	}
	return total, nil
}

// Skip discards up to n bytes from the stream, returning how many were
// discarded. Skipping to the end of the range returns io.EOF only on the
// following call.
func (s *Stream) Skip(ctx context.Context, n int64) (int64, error) {
	if s.state == StateFailed {
		return 0, s.err
	}
	var skipped int64
	for skipped < n {
		if len(s.pending) == 0 {
			err := s.pull(ctx)
			if err == io.EOF {
				return skipped, nil
			}
			if err != nil {
				return skipped, err
			}
		}
		take := int64(len(s.pending))
		if take > n-skipped {
			take = n - skipped
		}
		s.pending = s.pending[take:]
		s.offset += take
		skipped += take
	}
	return skipped, nil
}

// Close releases the underlying transport stream. Closing is idempotent.
func (s *Stream) Close() error {
	s.closeTransport()
	if s.state == StateStreaming || s.state == StateIdle {
		s.state = StateComplete
	}
	s.pending = nil
	return nil
}

// pull fetches the next chunk, validating its checksum and resuming the
// transport stream after transient breaks.
func (s *Stream) pull(ctx context.Context) error {
	if s.state == StateComplete {
		return io.EOF
	}
	if s.state == StateFailed {
		return s.err
	}

	for {
		chunk, err := s.cs.Next(ctx)
		if err == io.EOF {
			if s.pulled < s.byteRange.End {
				return s.fail(errors.Newf(errors.ErrCodeTruncated,
					"stream for %s ended at %d before %d", s.handle, s.pulled, s.byteRange.End).
					WithHandle(s.handle))
			}
			s.closeTransport()
			s.state = StateComplete
			return io.EOF
		}
		if err == nil {
			if s.fetcher.checksums && chunk.HasCRC32C {
				if got := crc32.Checksum(chunk.Data, castagnoli); got != chunk.CRC32C {
					if s.fetcher.sink != nil {
						s.fetcher.sink.RecordChecksumFailure()
					}
					return s.fail(errors.ChecksumMismatch(s.handle, s.byteRange, chunk.CRC32C, got))
				}
			}
			s.pending = chunk.Data
			s.pulled += int64(len(chunk.Data))
			s.resumes = 0
			if s.fetcher.sink != nil {
				s.fetcher.sink.RecordFetchBytes(int64(len(chunk.Data)))
			}
			return nil
		}

		if !errors.IsRetryable(err) {
			return s.fail(err)
		}

		s.resumes++
		if s.resumes >= s.fetcher.retryer.MaxAttempts() {
			return s.fail(errors.Wrap(errors.ErrCodeRetryExhausted,
				"stream made no progress across resume attempts", err).WithHandle(s.handle))
		}
		s.fetcher.logger.Debug("stream broke, resuming",
			"object", s.handle.String(), "offset", s.pulled, "error", err)
		if rerr := s.reopen(ctx); rerr != nil {
			return s.fail(rerr)
		}
	}
}

// open establishes a transport stream starting at the given offset, with
// bounded retries on transient establishment failures.
func (s *Stream) open(ctx context.Context, from int64) error {
	attempt := 0
	return s.fetcher.retryer.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && s.fetcher.sink != nil {
			s.fetcher.sink.RecordRetry(attempt - 1)
		}
		streamCtx, cancel := context.WithTimeout(ctx, s.fetcher.timeout)
		cs, err := s.fetcher.transport.RangeRead(streamCtx, s.handle,
			types.Range{Start: from, End: s.byteRange.End})
		if err != nil {
			cancel()
			return err
		}
		s.closeTransport()
		s.cs = cs
		s.cancel = cancel
		return nil
	})
}

func (s *Stream) reopen(ctx context.Context) error {
	return s.open(ctx, s.pulled)
}

func (s *Stream) fail(err error) error {
	s.closeTransport()
	s.state = StateFailed
	s.err = err
	return err
}

func (s *Stream) closeTransport() {
	if s.cs != nil {
		s.cs.Close()
		s.cs = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
