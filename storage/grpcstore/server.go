package grpcstore

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/dagnode/storage"
)

// Server exposes a storage.Blockstore over the Blockstore gRPC service.
type Server struct {
	UnimplementedBlockstoreServer
	Store  storage.Blockstore
	Logger *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	rawID, data, err := decodeBlock(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := cid.Cast(rawID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := blocks.NewBlockWithCid(data, id)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.Store.Put(ctx, b); err != nil {
		s.log().Warn("put failed", zap.Stringer("cid", id), zap.Error(err))
		return nil, mapErr(err)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	id, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b.RawData()), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	id, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.Store.Has(ctx, id)), nil
}

func (s *Server) Delete(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return nil, mapErr(err)
	}
	s.log().Debug("deleted", zap.Stringer("cid", id))
	return &emptypb.Empty{}, nil
}

func (s *Server) parse(in *wrapperspb.StringValue) (cid.Cid, error) {
	if s == nil || s.Store == nil {
		return cid.Undef, status.Error(codes.FailedPrecondition, "missing block store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}
