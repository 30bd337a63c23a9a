package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/storage"
)

const blockExt = ".data"

// Store is a local filesystem-backed block store.
//
// Each block is one read-only file named after its base32 multihash and
// sharded by the last two characters. Writes go to a temporary file that is
// renamed into place, so readers never observe a partial block.
type Store struct {
	root  string
	locks storage.KeyLocks
}

var (
	_ storage.Blockstore = (*Store)(nil)
	_ storage.Lister     = (*Store)(nil)
)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, b blocks.Block) error {
	if err := storage.Verify(b); err != nil {
		return err
	}
	id := b.Cid()
	unlock := s.locks.Lock(id)
	defer unlock()

	path := s.pathFor(id.Hash())
	if _, err := os.Stat(path); err == nil {
		if _, rerr := s.read(path, id); rerr != nil {
			// Present but unreadable or corrupted: never repair in place.
			return storage.ErrDigestMismatch
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b.RawData()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o444); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	data, err := s.read(s.pathFor(id.Hash()), id)
	if err != nil {
		return nil, err
	}
	return blocks.NewBlockWithCid(data, id)
}

func (s *Store) read(path string, id cid.Cid) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.SumPrefix(b, id.Prefix())
	if err != nil {
		return nil, err
	}
	if !cidutil.SameBlock(got, id) {
		return nil, storage.ErrDigestMismatch
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(s.pathFor(id.Hash()))
	return err == nil
}

func (s *Store) Delete(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	err := os.Remove(s.pathFor(id.Hash()))
	if os.IsNotExist(err) {
		return storage.ErrNotFound
	}
	return err
}

// Keys walks the store directory.
func (s *Store) Keys(ctx context.Context) ([]multihash.Multihash, error) {
	var out []multihash.Multihash
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, blockExt) {
			return nil
		}
		_, raw, err := multibase.Decode("b" + strings.ToLower(strings.TrimSuffix(name, blockExt)))
		if err != nil {
			return fmt.Errorf("localfs: bad block file %q: %w", name, err)
		}
		out = append(out, multihash.Multihash(raw))
		return nil
	})
	return out, err
}

func (s *Store) pathFor(mh multihash.Multihash) string {
	enc, _ := multibase.Encode(multibase.Base32, mh)
	name := strings.ToUpper(enc[1:])
	return filepath.Join(s.root, name[len(name)-3:len(name)-1], name+blockExt)
}
