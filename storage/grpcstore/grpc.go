package grpcstore

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service uses protobuf well-known types so no protoc step is needed.
// Put carries a Block message serialized into a BytesValue:
//
//	service Blockstore {
//	  rpc Put(google.protobuf.BytesValue) returns (google.protobuf.StringValue); // Block
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	  rpc Has(google.protobuf.StringValue) returns (google.protobuf.BoolValue);
//	  rpc Delete(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	}
//	message Block { bytes cid = 1; bytes data = 2; }
const serviceName = "xdao.dagnode.storage.grpcstore.v1.Blockstore"

// BlockstoreServer is the server API for the Blockstore gRPC service.
type BlockstoreServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// UnimplementedBlockstoreServer can be embedded to have forward compatible implementations.
type UnimplementedBlockstoreServer struct{}

func (UnimplementedBlockstoreServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedBlockstoreServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedBlockstoreServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}
func (UnimplementedBlockstoreServer) Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}

// RegisterBlockstoreServer registers the service on a gRPC server.
func RegisterBlockstoreServer(s grpc.ServiceRegistrar, srv BlockstoreServer) {
	s.RegisterService(&Blockstore_ServiceDesc, srv)
}

// BlockstoreClient is the client API for the Blockstore gRPC service.
type BlockstoreClient interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Delete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type blockstoreClient struct{ cc grpc.ClientConnInterface }

func NewBlockstoreClient(cc grpc.ClientConnInterface) BlockstoreClient {
	return &blockstoreClient{cc: cc}
}

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	out := new(Out)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockstoreClient) Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "Put", in, opts)
}

func (c *blockstoreClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "Get", in, opts)
}

func (c *blockstoreClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, "Has", in, opts)
}

func (c *blockstoreClient) Delete(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "Delete", in, opts)
}

func unaryHandler[In any](method string, call func(BlockstoreServer, context.Context, *In) (any, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BlockstoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BlockstoreServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Blockstore_ServiceDesc is the grpc.ServiceDesc for the Blockstore service.
var Blockstore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BlockstoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unaryHandler("Put", func(s BlockstoreServer, ctx context.Context, in *wrapperspb.BytesValue) (any, error) {
			return s.Put(ctx, in)
		})},
		{MethodName: "Get", Handler: unaryHandler("Get", func(s BlockstoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.Get(ctx, in)
		})},
		{MethodName: "Has", Handler: unaryHandler("Has", func(s BlockstoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.Has(ctx, in)
		})},
		{MethodName: "Delete", Handler: unaryHandler("Delete", func(s BlockstoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.Delete(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blockstore.proto",
}

// encodeBlock serializes the Block message carried by Put.
func encodeBlock(id, data []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, id)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

func decodeBlock(b []byte) (id, data []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			id = v
		case 2:
			data = v
		}
	}
	if id == nil {
		return nil, nil, fmt.Errorf("grpcstore: block message without cid")
	}
	return id, data, nil
}
