package channel

import (
	"context"
	"io"

	"github.com/objstream/objstream/internal/fetch"
	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/types"
)

// footerCache holds the tail of the object so the trailing-metadata access
// pattern of columnar and archive formats costs one fetch per channel, not
// one per probe. Objects no larger than the zone are cached whole.
type footerCache struct {
	start      int64
	objectSize int64
	data       []byte
	loaded     bool
}

func newFooterCache(objectSize, minRangeRequestSize int64) *footerCache {
	start := objectSize - minRangeRequestSize
	if start < 0 {
		start = 0
	}
	return &footerCache{start: start, objectSize: objectSize}
}

// contains reports whether pos falls inside the footer zone.
func (f *footerCache) contains(pos int64) bool {
	return pos >= f.start && pos < f.objectSize
}

// load fetches the footer zone. The loaded flag is set only on success, so
// a failed load may be attempted again by a later read.
func (f *footerCache) load(ctx context.Context, fetcher *fetch.Fetcher, h types.ObjectHandle) error {
	if f.loaded {
		return nil
	}
	s, err := fetcher.Fetch(ctx, h, types.Range{Start: f.start, End: f.objectSize})
	if err != nil {
		return err
	}
	defer s.Close()

	buf := make([]byte, f.objectSize-f.start)
	filled := 0
	for filled < len(buf) {
		n, err := s.Read(ctx, buf[filled:])
		filled += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if int64(filled) != f.objectSize-f.start {
		return errors.Newf(errors.ErrCodeTruncated,
			"footer fetch for %s returned %d of %d bytes", h, filled, len(buf)).
			WithHandle(h)
	}
	f.data = buf
	f.loaded = true
	return nil
}

// readAt copies footer bytes at the absolute position pos into p, returning
// how many bytes were copied.
func (f *footerCache) readAt(pos int64, p []byte) int {
	if !f.loaded || !f.contains(pos) {
		return 0
	}
	return copy(p, f.data[pos-f.start:])
}
