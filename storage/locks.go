package storage

import (
	"hash/fnv"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/dagnode/cidutil"
)

const lockStripes = 256

// KeyLocks serializes writers per block key.
//
// Locks are striped: two different keys may share a stripe, never the
// reverse. The zero value is ready to use.
type KeyLocks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock locks the stripe for id and returns its unlock function.
func (l *KeyLocks) Lock(id cid.Cid) func() {
	var stripe uint32
	if id.Defined() {
		h := fnv.New32a()
		_, _ = h.Write([]byte(cidutil.Key(id)))
		stripe = h.Sum32() % lockStripes
	}
	m := &l.stripes[stripe]
	m.Lock()
	return m.Unlock
}
