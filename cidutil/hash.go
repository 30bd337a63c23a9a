package cidutil

import (
	"fmt"

	"github.com/multiformats/go-multihash"
)

// Blake2b256 is the multihash code for blake2b with a 32 byte digest.
const Blake2b256 = multihash.BLAKE2B_MIN + 31

// Hash algorithms this node addresses with. Digests come from go-multihash.
var hashes = map[uint64]string{
	multihash.SHA2_256: "sha2-256",
	multihash.SHA2_512: "sha2-512",
	multihash.SHA3_256: "sha3-256",
	multihash.SHA3_512: "sha3-512",
	Blake2b256:         "blake2b-256",
	multihash.IDENTITY: "identity",
}

// ParseHash maps a multihash name such as "sha2-256" to its code.
func ParseHash(name string) (uint64, error) {
	for code, n := range hashes {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedHash, name)
}

// HashName returns the multihash name for code, or "" if it is not registered.
func HashName(code uint64) string { return hashes[code] }

// sumHash digests data under code. length -1 selects the full digest; a
// shorter length truncates it.
func sumHash(data []byte, code uint64, length int) (multihash.Multihash, error) {
	if _, ok := hashes[code]; !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedHash, code)
	}
	if code == multihash.IDENTITY {
		length = -1
	}
	mh, err := multihash.Sum(data, code, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return mh, nil
}
