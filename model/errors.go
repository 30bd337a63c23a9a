package model

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/object"
	"xdao.co/dagnode/pin"
	"xdao.co/dagnode/resolver"
	"xdao.co/dagnode/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrInvalidCID       ErrorCode = "INVALID_CID"
	ErrBlockNotFound    ErrorCode = "BLOCK_NOT_FOUND"
	ErrDigestMismatch   ErrorCode = "DIGEST_MISMATCH"
	ErrUnsupportedCodec ErrorCode = "UNSUPPORTED_CODEC"
	ErrUnsupportedHash  ErrorCode = "UNSUPPORTED_HASH"
	ErrPathNotFound     ErrorCode = "PATH_NOT_FOUND"
	ErrPinned           ErrorCode = "PINNED"
	ErrNotPinned        ErrorCode = "NOT_PINNED"
	ErrCanceled         ErrorCode = "CANCELED"
	ErrInternal         ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Classify maps an error from the node's packages onto its stable code.
// A nil error classifies as the empty code.
func Classify(err error) ErrorCode {
	var coded *CodedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &coded):
		return coded.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCanceled
	case errors.Is(err, cidutil.ErrInvalidCID):
		return ErrInvalidCID
	case storage.IsNotFound(err):
		return ErrBlockNotFound
	case errors.Is(err, storage.ErrDigestMismatch):
		return ErrDigestMismatch
	case errors.Is(err, cidutil.ErrUnsupportedCodec):
		return ErrUnsupportedCodec
	case errors.Is(err, cidutil.ErrUnsupportedHash):
		return ErrUnsupportedHash
	case errors.Is(err, resolver.ErrPathNotFound):
		return ErrPathNotFound
	case errors.Is(err, pin.ErrPinned):
		return ErrPinned
	case errors.Is(err, pin.ErrNotPinned):
		return ErrNotPinned
	case errors.Is(err, object.ErrNoData), errors.Is(err, object.ErrNotDagPB), errors.Is(err, resolver.ErrNotDirectory):
		return ErrInvalidRequest
	default:
		return ErrInternal
	}
}

// Wrap converts err into a CodedError, keeping its message.
func Wrap(err error) *CodedError {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	return NewError(Classify(err), err.Error())
}
