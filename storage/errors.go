package storage

import (
	"errors"

	"xdao.co/dagnode/cidutil"
)

var (
	// ErrNotFound is returned when a block is absent. Its text is part of the
	// removal result contract.
	ErrNotFound       = errors.New("block not found")
	ErrInvalidCID     = cidutil.ErrInvalidCID
	ErrDigestMismatch = errors.New("storage: digest mismatch")
	ErrNotListable    = errors.New("storage: store cannot list blocks")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
