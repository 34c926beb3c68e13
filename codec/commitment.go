package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// CommitmentHash computes the message commitment that both sides of a bridge agree on.
//
// Words are encoded as 32-byte big-endian values in the order
// from, to, nonce (omitted when nil), len(payload), payload...
// and the digest is keccak-256 over their concatenation.
func CommitmentHash(from, to, nonce *big.Int, payload []*big.Int) (common.Hash, error) {
	words := make([]*big.Int, 0, 4+len(payload))
	words = append(words, from, to)
	if nonce != nil {
		words = append(words, nonce)
	}
	words = append(words, big.NewInt(int64(len(payload))))
	words = append(words, payload...)

	buf := make([]byte, 0, len(words)*WordSize)
	for i, w := range words {
		b, err := encodeWord(w)
		if err != nil {
			return common.Hash{}, fmt.Errorf("word %d: %w", i, err)
		}
		buf = append(buf, b[:]...)
	}

	return crypto.Keccak256Hash(buf), nil
}

func encodeWord(v *big.Int) ([WordSize]byte, error) {
	if v == nil || v.Sign() < 0 {
		return [WordSize]byte{}, ErrWordOverflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return [WordSize]byte{}, ErrWordOverflow
	}
	return u.Bytes32(), nil
}
