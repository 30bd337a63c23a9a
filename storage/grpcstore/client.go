package grpcstore

import (
	"context"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/dagnode/storage"
)

// Client implements storage.Blockstore over a Blockstore gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client BlockstoreClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

var _ storage.Blockstore = (*Client)(nil)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewBlockstoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, b blocks.Block) error {
	if err := storage.Verify(b); err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(encodeBlock(b.Cid().Bytes(), b.RawData())))
	if err != nil {
		return mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Equals(b.Cid()) {
		return storage.ErrDigestMismatch
	}
	return nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	// Transport is not validity; the digest is.
	return storage.NewBlock(reply.GetValue(), id)
}

func (c *Client) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) Delete(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.client.Delete(ctx, wrapperspb.String(id.String()))
	return mapRPC(err)
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
