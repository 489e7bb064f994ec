package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	stderr "errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objstream/objstream/internal/buffer"
	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/types"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// S3Config configures the S3 store.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool

	// PoolSize is the number of pooled clients.
	PoolSize int

	// ChunkSize is the size of chunks emitted by range-read streams.
	ChunkSize int

	// Breaker guards the transport when set.
	Breaker *Breaker

	Interceptor types.Interceptor
	Logger      *slog.Logger
}

// S3Store implements types.Store against any S3-compatible endpoint.
//
// Generation mapping: a non-zero handle generation is sent as the S3
// version id in numeric form; Resolve reports a generation only when the
// bucket returns numeric version ids. Buckets with opaque version ids
// read unpinned.
type S3Store struct {
	pool        *clientPool
	breaker     *Breaker
	chunkSize   int
	buffers     *buffer.Pool
	interceptor types.Interceptor
	logger      *slog.Logger
}

const defaultChunkSize = 64 * 1024

// NewS3 creates an S3 store. Static credentials are used when provided,
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to load AWS config", err)
	}

	build := func() *s3.Client {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &S3Store{
		pool:        newClientPool(cfg.PoolSize, build),
		breaker:     cfg.Breaker,
		chunkSize:   chunkSize,
		buffers:     buffer.NewPool(),
		interceptor: Combine(cfg.Interceptor),
		logger:      logger,
	}, nil
}

// RangeRead streams byteRange of the object in fixed-size chunks. The data
// of a returned chunk is valid until the next call to Next.
func (s *S3Store) RangeRead(ctx context.Context, h types.ObjectHandle, byteRange types.Range) (types.ChunkStream, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	client, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(h.Name),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End-1)),
	}
	if h.Generation != 0 {
		input.VersionId = aws.String(strconv.FormatInt(h.Generation, 10))
	}

	requestID := newRequestID()
	s.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindRead,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: requestID,
	})

	start := time.Now()
	out, err := client.GetObject(ctx, input)
	if err != nil {
		s.pool.put(client)
		s.recordFailure()
		return nil, s.translate(err, h, "range_read")
	}
	s.recordSuccess()

	return &s3ChunkStream{
		store:     s,
		client:    client,
		body:      out.Body,
		buf:       s.buffers.Get(s.chunkSize),
		handle:    h,
		requestID: requestID,
		started:   start,
	}, nil
}

type s3ChunkStream struct {
	store     *S3Store
	client    *s3.Client
	body      io.ReadCloser
	buf       []byte
	handle    types.ObjectHandle
	requestID string
	started   time.Time
	closed    bool
}

func (cs *s3ChunkStream) Next(ctx context.Context) (types.Chunk, error) {
	if cs.closed {
		return types.Chunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return types.Chunk{}, errors.Wrap(errors.ErrCodeOperationCanceled, "stream read canceled", ctx.Err())
	default:
	}

	n, err := io.ReadFull(cs.body, cs.buf)
	if n > 0 {
		data := cs.buf[:n]
		cs.store.interceptor.OnMessage(types.RequestEvent{
			Kind:      types.KindRead,
			Bucket:    cs.handle.Bucket,
			Object:    cs.handle.Name,
			RequestID: cs.requestID,
			Elapsed:   time.Since(cs.started),
			WireBytes: int64(n),
		})
		return types.Chunk{
			Data:      data,
			CRC32C:    crc32.Checksum(data, castagnoli),
			HasCRC32C: true,
		}, nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		cs.finish()
		return types.Chunk{}, io.EOF
	}
	cs.store.recordFailure()
	return types.Chunk{}, errors.Wrap(errors.ErrCodeNetworkError, "stream read failed", err).
		WithHandle(cs.handle).WithOperation("range_read")
}

func (cs *s3ChunkStream) finish() {
	cs.store.interceptor.OnMessage(types.RequestEvent{
		Kind:      types.KindRead,
		Bucket:    cs.handle.Bucket,
		Object:    cs.handle.Name,
		RequestID: cs.requestID,
		Elapsed:   time.Since(cs.started),
		Final:     true,
	})
	cs.release()
}

func (cs *s3ChunkStream) Close() error {
	cs.release()
	return nil
}

func (cs *s3ChunkStream) release() {
	if cs.closed {
		return
	}
	cs.closed = true
	cs.body.Close()
	cs.store.buffers.Put(cs.buf)
	cs.store.pool.put(cs.client)
}

// Resolve fetches object metadata with a single HEAD request.
func (s *S3Store) Resolve(ctx context.Context, h types.ObjectHandle) (*types.ObjectInfo, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	client, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(client)

	input := &s3.HeadObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(h.Name),
	}
	if h.Generation != 0 {
		input.VersionId = aws.String(strconv.FormatInt(h.Generation, 10))
	}

	s.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindStat,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	out, err := client.HeadObject(ctx, input)
	if err != nil {
		s.recordFailure()
		return nil, s.translate(err, h, "resolve")
	}
	s.recordSuccess()

	info := &types.ObjectInfo{
		Bucket:   h.Bucket,
		Name:     h.Name,
		Metadata: out.Metadata,
	}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.VersionId != nil {
		if gen, perr := strconv.ParseInt(*out.VersionId, 10, 64); perr == nil {
			info.Generation = gen
		}
	}
	if out.ChecksumCRC32C != nil {
		if sum, ok := decodeCRC32C(*out.ChecksumCRC32C); ok {
			info.CRC32C = sum
			info.HasCRC32C = true
		}
	}
	return info, nil
}

// Put uploads an object with its CRC32C checksum attached.
func (s *S3Store) Put(ctx context.Context, h types.ObjectHandle, data []byte) (*types.ObjectInfo, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	client, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(client)

	sum := crc32.Checksum(data, castagnoli)
	input := &s3.PutObjectInput{
		Bucket:         aws.String(h.Bucket),
		Key:            aws.String(h.Name),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ChecksumCRC32C: aws.String(encodeCRC32C(sum)),
	}

	s.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindWrite,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	out, err := client.PutObject(ctx, input)
	if err != nil {
		s.recordFailure()
		return nil, s.translate(err, h, "put")
	}
	s.recordSuccess()

	info := &types.ObjectInfo{
		Bucket:       h.Bucket,
		Name:         h.Name,
		Size:         int64(len(data)),
		LastModified: time.Now(),
		CRC32C:       sum,
		HasCRC32C:    true,
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.VersionId != nil {
		if gen, perr := strconv.ParseInt(*out.VersionId, 10, 64); perr == nil {
			info.Generation = gen
		}
	}
	return info, nil
}

// Delete removes an object. Deleting a missing object is not an error, S3
// already treats it that way.
func (s *S3Store) Delete(ctx context.Context, h types.ObjectHandle) error {
	if err := s.allow(); err != nil {
		return err
	}
	client, err := s.pool.get(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(client)

	s.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindDelete,
		Bucket:    h.Bucket,
		Object:    h.Name,
		RequestID: newRequestID(),
	})

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(h.Name),
	})
	if err != nil {
		s.recordFailure()
		return s.translate(err, h, "delete")
	}
	s.recordSuccess()
	return nil
}

// List returns objects matching prefix, up to limit entries.
func (s *S3Store) List(ctx context.Context, bucket, prefix string, limit int) ([]types.ObjectInfo, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	client, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(client)

	s.interceptor.OnRequest(types.RequestEvent{
		Kind:      types.KindList,
		Bucket:    bucket,
		Object:    prefix,
		RequestID: newRequestID(),
	})

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var infos []types.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.recordFailure()
			return nil, s.translate(err, types.ObjectHandle{Bucket: bucket}, "list")
		}
		for _, obj := range page.Contents {
			info := types.ObjectInfo{Bucket: bucket}
			if obj.Key != nil {
				info.Name = *obj.Key
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			if obj.ETag != nil {
				info.ETag = *obj.ETag
			}
			infos = append(infos, info)
			if limit > 0 && len(infos) >= limit {
				s.recordSuccess()
				return infos, nil
			}
		}
	}
	s.recordSuccess()
	return infos, nil
}

func (s *S3Store) allow() error {
	if s.breaker == nil {
		return nil
	}
	return s.breaker.Allow()
}

func (s *S3Store) recordSuccess() {
	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
}

func (s *S3Store) recordFailure() {
	if s.breaker != nil {
		s.breaker.RecordFailure()
	}
}

// translate maps SDK errors to the structured error system.
func (s *S3Store) translate(err error, h types.ObjectHandle, op string) error {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if stderr.As(err, &nsk) || stderr.As(err, &nf) {
		return errors.ObjectNotFound(h).WithOperation(op)
	}
	var nsb *s3types.NoSuchBucket
	if stderr.As(err, &nsb) {
		return errors.Newf(errors.ErrCodeBucketNotFound, "bucket %s does not exist", h.Bucket).
			WithHandle(h).WithOperation(op)
	}

	if stderr.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeOperationTimeout, "store request timed out", err).
			WithHandle(h).WithOperation(op)
	}
	if stderr.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeOperationCanceled, "store request canceled", err).
			WithHandle(h).WithOperation(op)
	}

	var ae smithy.APIError
	if stderr.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return errors.ObjectNotFound(h).WithOperation(op)
		case "NoSuchBucket":
			return errors.Newf(errors.ErrCodeBucketNotFound, "bucket %s does not exist", h.Bucket).
				WithHandle(h).WithOperation(op)
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return errors.Wrap(errors.ErrCodeNetworkError, "transient store failure", err).
				WithHandle(h).WithOperation(op)
		case "InvalidRange":
			return errors.InvalidArgument("requested range not satisfiable for %s", h).
				WithOperation(op)
		}
	}

	s.logger.Warn("store request failed", "operation", op, "object", h.String(), "error", err)
	return errors.Wrap(errors.ErrCodeStorageRead, "store request failed", err).
		WithHandle(h).WithOperation(op)
}

// encodeCRC32C renders a checksum the way S3 transmits it, base64 over the
// big-endian bytes.
func encodeCRC32C(sum uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], sum)
	return base64.StdEncoding.EncodeToString(b[:])
}

func decodeCRC32C(s string) (uint32, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
