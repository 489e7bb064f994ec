package channel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/objstream/objstream/internal/fetch"
	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/types"
)

// Channel is a seekable read channel over one object. It owns at most one
// live fetch stream at a time and consults the seek policy on every read to
// decide whether to reuse it, skip within it, serve from the footer cache,
// or replace it.
//
// A channel is safe for concurrent use, though reads are serialized.
type Channel struct {
	mu sync.Mutex

	info    types.ObjectInfo
	handle  types.ObjectHandle
	fetcher *fetch.Fetcher
	opts    types.ReadOptions

	pattern *patternState
	footer  *footerCache
	stream  *fetch.Stream
	pos     int64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc

	sink   types.MetricsSink
	logger *slog.Logger
}

// Open resolves the object and returns a channel positioned at byte zero.
// Resolution happens exactly once; the channel pins the resolved generation
// so every later fetch observes the same version of the object.
func Open(ctx context.Context, resolver types.Resolver, fetcher *fetch.Fetcher,
	h types.ObjectHandle, opts types.ReadOptions,
	sink types.MetricsSink, logger *slog.Logger) (*Channel, error) {

	if h.Bucket == "" || h.Name == "" {
		return nil, errors.InvalidArgument("object handle requires bucket and name").
			WithOperation("open")
	}
	opts = opts.Normalize()
	if logger == nil {
		logger = slog.Default()
	}

	info, err := resolver.Resolve(ctx, h)
	if err != nil {
		return nil, err
	}

	handle := info.Handle()
	if h.Generation != 0 {
		handle.Generation = h.Generation
	}

	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Channel{
		info:    *info,
		handle:  handle,
		fetcher: fetcher,
		opts:    opts,
		pattern: newPatternState(opts.Pattern),
		footer:  newFooterCache(info.Size, opts.MinRangeRequestSize),
		ctx:     cctx,
		cancel:  cancel,
		sink:    sink,
		logger:  logger,
	}
	logger.Debug("channel opened",
		"object", handle.String(), "size", info.Size, "pattern", opts.Pattern)
	return c, nil
}

// Info returns the metadata resolved at open time.
func (c *Channel) Info() types.ObjectInfo { return c.info }

// Position returns the current read position.
func (c *Channel) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Seek repositions the channel. Seeking is lazy: no IO happens until the
// next read, when the policy decides how to serve the new position. The
// resulting position must lie within [0, size]; seeking to the exact size
// is allowed and makes the next read return io.EOF.
func (c *Channel) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.ChannelClosed("seek")
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = c.pos + offset
	case io.SeekEnd:
		target = c.info.Size + offset
	default:
		return 0, errors.InvalidArgument("invalid seek whence %d", whence).WithOperation("seek")
	}
	if target < 0 || target > c.info.Size {
		return 0, errors.InvalidArgument(
			"seek to %d outside object of size %d", target, c.info.Size).WithOperation("seek")
	}
	c.pos = target
	return target, nil
}

// Read fills p with bytes at the current position, advancing it. At the end
// of the object it returns (0, io.EOF); it never returns data and an error
// from the same call.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.ChannelClosed("read")
	}
	if len(p) == 0 {
		return 0, nil
	}
	// A failure detected after a partial delivery is parked in the stream;
	// it must surface before any new fetch can paper over it.
	if c.stream != nil {
		if err := c.stream.Err(); err != nil {
			c.dropStream()
			return 0, c.readErr(err)
		}
	}
	if c.pos >= c.info.Size {
		return 0, io.EOF
	}

	start := time.Now()
	reqLen := int64(len(p))
	if remaining := c.info.Size - c.pos; reqLen > remaining {
		reqLen = remaining
	}

	// A single decision usually suffices; the extra rounds cover a failed
	// in-place skip and a stream that ran out before the target.
	for round := 0; round < 3; round++ {
		d := decide(c.snapshot(reqLen))

		switch d.action {
		case actionFooter:
			hit := c.footer.loaded
			if !hit {
				if err := c.footer.load(c.ctx, c.fetcher, c.handle); err != nil {
					return 0, c.readErr(err)
				}
			}
			if c.sink != nil {
				c.sink.RecordFooter(hit)
			}
			n := c.footer.readAt(c.pos, p[:reqLen])
			c.advance(n, start)
			return n, nil

		case actionSkip:
			skipped, err := c.stream.Skip(c.ctx, d.skip)
			if c.sink != nil && skipped > 0 {
				c.sink.RecordInPlaceSkip(skipped)
			}
			if err != nil || skipped < d.skip {
				c.dropStream()
				continue
			}

		case actionFetch:
			c.dropStream()
			s, err := c.fetcher.Fetch(c.ctx, c.handle, d.fetchRange)
			if err != nil {
				return 0, c.readErr(err)
			}
			c.stream = s
		}

		n, err := c.stream.Read(c.ctx, p[:reqLen])
		if n > 0 {
			c.advance(n, start)
			return n, nil
		}
		if err == io.EOF {
			c.dropStream()
			continue
		}
		if err != nil {
			c.dropStream()
			return 0, c.readErr(err)
		}
	}
	return 0, errors.New(errors.ErrCodeInternalError, "read made no progress").
		WithHandle(c.handle).WithOperation("read")
}

// Close releases the live stream and rejects all further operations.
// Closing twice is a no-op. A read blocked on the transport is unblocked by
// the context cancellation.
func (c *Channel) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.dropStream()
	c.logger.Debug("channel closed", "object", c.handle.String(), "position", c.pos)
	return nil
}

func (c *Channel) snapshot(reqLen int64) state {
	s := state{
		target:              c.pos,
		reqLen:              reqLen,
		objectSize:          c.info.Size,
		footerLoaded:        c.footer.loaded,
		footerStart:         c.footer.start,
		pattern:             c.pattern.effective(),
		inPlaceSeekLimit:    c.opts.InPlaceSeekLimit,
		minRangeRequestSize: c.opts.MinRangeRequestSize,
	}
	if c.stream != nil && c.stream.State() == fetch.StateStreaming {
		s.streamActive = true
		s.streamOffset = c.stream.Offset()
		s.streamEnd = c.stream.Range().End
	}
	return s
}

func (c *Channel) advance(n int, started time.Time) {
	c.pattern.observe(c.pos, c.pos+int64(n))
	c.pos += int64(n)
	if c.sink != nil {
		c.sink.RecordRead(int64(n), time.Since(started))
	}
}

// readErr maps failures caused by Close canceling the channel context to
// the closed-channel error the caller expects.
func (c *Channel) readErr(err error) error {
	if c.ctx.Err() != nil {
		return errors.ChannelClosed("read")
	}
	return err
}

func (c *Channel) dropStream() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}
