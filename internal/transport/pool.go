package transport

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objstream/objstream/pkg/errors"
)

// clientPool holds a fixed set of S3 clients so concurrent channels do not
// serialize on one connection.
type clientPool struct {
	clients chan *s3.Client
	size    int
}

func newClientPool(size int, build func() *s3.Client) *clientPool {
	if size <= 0 {
		size = 4
	}
	p := &clientPool{
		clients: make(chan *s3.Client, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.clients <- build()
	}
	return p
}

// get borrows a client, blocking until one is free or ctx is done.
func (p *clientPool) get(ctx context.Context) (*s3.Client, error) {
	select {
	case client := <-p.clients:
		return client, nil
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrCodeConnectionTimeout,
			"timed out waiting for transport client", ctx.Err())
	}
}

// put returns a borrowed client.
func (p *clientPool) put(client *s3.Client) {
	select {
	case p.clients <- client:
	default:
	}
}
