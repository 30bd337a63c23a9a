// Package ipfs adapts the local Kubo "ipfs" CLI to storage.Blockstore.
//
// It shells out to the CLI and operates on the local repo, so no daemon is
// required. Bytes coming back from the CLI are verified against the requested
// CID; transport is not validity.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/storage"
)

type Store struct {
	bin string
	env []string
}

var _ storage.Blockstore = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env}
}

func (s *Store) Put(ctx context.Context, b blocks.Block) error {
	if err := storage.Verify(b); err != nil {
		return err
	}
	pref := b.Cid().Prefix()
	args := []string{
		"block", "put",
		"--cid-codec=" + cidutil.CodecName(pref.Codec),
		"--mhtype=" + cidutil.HashName(pref.MhType),
	}
	if pref.MhLength > 0 {
		args = append(args, "--mhlen="+strconv.Itoa(pref.MhLength))
	}
	out, err := s.run(ctx, b.RawData(), append(args, "/dev/stdin")...)
	if err != nil {
		return err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !cidutil.SameBlock(got, b.Cid()) {
		return storage.ErrDigestMismatch
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.NewBlock(out, id)
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := s.run(ctx, nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (s *Store) Delete(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	// Pins are this node's concern; the ipfs repo's own pins are overridden.
	_, err := s.run(ctx, nil, "block", "rm", "--force", id.String())
	if err != nil && isLikelyNotFound(err) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %w", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not present")
}
