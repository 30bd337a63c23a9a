package grpcstore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/dsstore"
	"xdao.co/dagnode/storage/testkit"
)

func newBufClient(t *testing.T, backend storage.Blockstore) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterBlockstoreServer(srv, &Server{Store: backend})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	c := NewClient(cc)
	c.Timeout = 5 * time.Second
	return c
}

func TestGRPCStore_Conformance(t *testing.T) {
	testkit.RunBlockstoreConformance(t, func(t *testing.T) storage.Blockstore {
		return newBufClient(t, dsstore.NewInMemory())
	})
}

func TestGRPCStore_ServerSideVisible(t *testing.T) {
	ctx := context.Background()
	backend := dsstore.NewInMemory()
	client := newBufClient(t, backend)

	b := testkit.RawBlock(t, "hello grpcstore")
	require.NoError(t, client.Put(ctx, b))
	assert.True(t, backend.Has(ctx, b.Cid()))

	require.NoError(t, backend.Delete(ctx, b.Cid()))
	_, err := client.Get(ctx, b.Cid())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMapErrRoundTrip(t *testing.T) {
	for _, want := range []error{storage.ErrNotFound, storage.ErrInvalidCID, storage.ErrDigestMismatch} {
		assert.ErrorIs(t, mapRPC(mapErr(want)), want)
	}
	st, ok := status.FromError(mapErr(assert.AnError))
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NoError(t, mapRPC(nil))
}

func TestDecodeBlockRejectsMissingCID(t *testing.T) {
	_, _, err := decodeBlock(encodeBlock(nil, []byte("x"))[2:])
	assert.Error(t, err)

	id, data, err := decodeBlock(encodeBlock([]byte{1, 2}, []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, id)
	assert.Equal(t, []byte("x"), data)
}
