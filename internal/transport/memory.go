package transport

import (
	"context"
	"hash/crc32"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/types"
)

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// ChunkSize is the size of chunks emitted by range-read streams.
	ChunkSize int

	Interceptor types.Interceptor
}

// MemoryStore is an in-memory types.Store. It keeps every generation of an
// object so pinned reads observe a stable version, and it supports fault
// injection for exercising retry and checksum paths.
type MemoryStore struct {
	mu          sync.Mutex
	buckets     map[string]map[string][]memVersion
	gen         int64
	chunkSize   int
	interceptor types.Interceptor

	failOpens     int
	failMidStream int
	corruptChunks int
}

type memVersion struct {
	info types.ObjectInfo
	data []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory(cfg MemoryConfig) *MemoryStore {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &MemoryStore{
		buckets:     make(map[string]map[string][]memVersion),
		chunkSize:   chunkSize,
		interceptor: Combine(cfg.Interceptor),
	}
}

// FailOpens makes the next n range-read opens fail with a transient error.
func (m *MemoryStore) FailOpens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpens = n
}

// FailMidStream makes the next n streams break with a transient error after
// delivering their first chunk.
func (m *MemoryStore) FailMidStream(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMidStream = n
}

// CorruptChunks makes the next n delivered chunks carry a wrong checksum.
func (m *MemoryStore) CorruptChunks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corruptChunks = n
}

// RangeRead streams byteRange of the object, clamping the end to the object
// size the way remote stores do.
func (m *MemoryStore) RangeRead(ctx context.Context, h types.ObjectHandle, byteRange types.Range) (types.ChunkStream, error) {
	m.mu.Lock()
	if m.failOpens > 0 {
		m.failOpens--
		m.mu.Unlock()
		return nil, errors.New(errors.ErrCodeNetworkError, "injected open failure").
			WithHandle(h).WithOperation("range_read")
	}
	v, err := m.lookupLocked(h)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	breakAfterFirst := false
	if m.failMidStream > 0 {
		m.failMidStream--
		breakAfterFirst = true
	}
	data := v.data
	m.mu.Unlock()

	start := byteRange.Start
	end := byteRange.End
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if start < 0 || start > int64(len(data)) {
		return nil, errors.InvalidArgument("range %s outside object of size %d", byteRange, len(data)).
			WithOperation("range_read")
	}

	requestID := newRequestID()
	m.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindRead,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: requestID,
	})

	return &memChunkStream{
		store:           m,
		handle:          h,
		data:            data[start:end],
		chunkSize:       m.chunkSize,
		requestID:       requestID,
		started:         time.Now(),
		breakAfterFirst: breakAfterFirst,
	}, nil
}

type memChunkStream struct {
	store     *MemoryStore
	handle    types.ObjectHandle
	data      []byte
	offset    int
	chunkSize int
	requestID string
	started   time.Time
	chunks    int
	closed    bool

	breakAfterFirst bool
}

func (cs *memChunkStream) Next(ctx context.Context) (types.Chunk, error) {
	if cs.closed {
		return types.Chunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return types.Chunk{}, errors.Wrap(errors.ErrCodeOperationCanceled, "stream read canceled", ctx.Err())
	default:
	}

	if cs.breakAfterFirst && cs.chunks >= 1 {
		cs.closed = true
		return types.Chunk{}, errors.New(errors.ErrCodeNetworkError, "injected stream break").
			WithHandle(cs.handle).WithOperation("range_read")
	}

	if cs.offset >= len(cs.data) {
		cs.closed = true
		cs.store.interceptor.OnMessage(types.RequestEvent{
			Kind:      types.KindRead,
			Bucket:    cs.handle.Bucket,
			Object:    cs.handle.Name,
			RequestID: cs.requestID,
			Elapsed:   time.Since(cs.started),
			Final:     true,
		})
		return types.Chunk{}, io.EOF
	}

	end := cs.offset + cs.chunkSize
	if end > len(cs.data) {
		end = len(cs.data)
	}
	data := cs.data[cs.offset:end]
	cs.offset = end
	cs.chunks++

	sum := crc32.Checksum(data, castagnoli)
	cs.store.mu.Lock()
	if cs.store.corruptChunks > 0 {
		cs.store.corruptChunks--
		sum ^= 0xdeadbeef
	}
	cs.store.mu.Unlock()

	cs.store.interceptor.OnMessage(types.RequestEvent{
		Kind:      types.KindRead,
		Bucket:    cs.handle.Bucket,
		Object:    cs.handle.Name,
		RequestID: cs.requestID,
		Elapsed:   time.Since(cs.started),
		WireBytes: int64(len(data)),
	})

	return types.Chunk{Data: data, CRC32C: sum, HasCRC32C: true}, nil
}

func (cs *memChunkStream) Close() error {
	cs.closed = true
	return nil
}

// Resolve returns metadata for the latest generation, or for the pinned one
// when the handle carries a generation.
func (m *MemoryStore) Resolve(ctx context.Context, h types.ObjectHandle) (*types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindStat,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	v, err := m.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	info := v.info
	return &info, nil
}

// Put stores a new generation of the object.
func (m *MemoryStore) Put(ctx context.Context, h types.ObjectHandle, data []byte) (*types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindWrite,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	m.gen++
	stored := make([]byte, len(data))
	copy(stored, data)

	info := types.ObjectInfo{
		Bucket:       h.Bucket,
		Name:         h.Name,
		Generation:   m.gen,
		Size:         int64(len(stored)),
		LastModified: time.Now(),
		CRC32C:       crc32.Checksum(stored, castagnoli),
		HasCRC32C:    true,
	}

	bucket, ok := m.buckets[h.Bucket]
	if !ok {
		bucket = make(map[string][]memVersion)
		m.buckets[h.Bucket] = bucket
	}
	bucket[h.Name] = append(bucket[h.Name], memVersion{info: info, data: stored})

	out := info
	return &out, nil
}

// Delete removes all generations of the object. Missing objects are not an
// error.
func (m *MemoryStore) Delete(ctx context.Context, h types.ObjectHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindDelete,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	if bucket, ok := m.buckets[h.Bucket]; ok {
		delete(bucket, h.Name)
	}
	return nil
}

// List returns the latest generation of objects matching prefix, sorted by
// name.
func (m *MemoryStore) List(ctx context.Context, bucket, prefix string, limit int) ([]types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindList,
		Bucket:    bucket,
		Object:    prefix,
		RequestID: newRequestID(),
	})

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, nil
	}

	var infos []types.ObjectInfo
	for name, versions := range objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		infos = append(infos, versions[len(versions)-1].info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func (m *MemoryStore) lookupLocked(h types.ObjectHandle) (*memVersion, error) {
	bucket, ok := m.buckets[h.Bucket]
	if !ok {
		return nil, errors.ObjectNotFound(h)
	}
	versions, ok := bucket[h.Name]
	if !ok || len(versions) == 0 {
		return nil, errors.ObjectNotFound(h)
	}
	if h.Generation == 0 {
		return &versions[len(versions)-1], nil
	}
	for i := range versions {
		if versions[i].info.Generation == h.Generation {
			return &versions[i], nil
		}
	}
	return nil, errors.ObjectNotFound(h)
}
