package grpcstore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/dagnode/model"
	"xdao.co/dagnode/storage"
)

// mapErr converts store errors into gRPC statuses.
func mapErr(err error) error {
	switch model.Classify(err) {
	case "":
		return nil
	case model.ErrBlockNotFound:
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case model.ErrInvalidCID:
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case model.ErrDigestMismatch:
		return status.Error(codes.DataLoss, storage.ErrDigestMismatch.Error())
	case model.ErrCanceled:
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts gRPC statuses back into store errors.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrDigestMismatch
	default:
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrDigestMismatch.Error():
			return storage.ErrDigestMismatch
		default:
			return err
		}
	}
}
