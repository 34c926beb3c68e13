package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

const (
	WordSize     = 32
	HalfWordSize = 16
)

var (
	ErrInvalidLength = errors.New("invalid length")
	ErrWordOverflow  = errors.New("value does not fit into 256 bits")
	ErrHalfOverflow  = errors.New("value does not fit into 128 bits")
)

// SplitUint256 splits a 32-byte hex value into its high and low 128-bit halves.
// high is the big-endian value of the first 16 bytes, low of the last 16.
func SplitUint256(hexStr string) (high, low *big.Int, err error) {
	raw, err := hex.DecodeString(strip0x(hexStr))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %q: %w", hexStr, err)
	}
	if len(raw) != WordSize {
		return nil, nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidLength, WordSize, len(raw))
	}

	high = new(big.Int).SetBytes(raw[:HalfWordSize])
	low = new(big.Int).SetBytes(raw[HalfWordSize:])
	return high, low, nil
}

// JoinUint256 is the inverse of SplitUint256. The result is 64 lower-case hex characters.
func JoinUint256(high, low *big.Int) (string, error) {
	hi, err := toHalf(high)
	if err != nil {
		return "", err
	}
	lo, err := toHalf(low)
	if err != nil {
		return "", err
	}

	word := new(uint256.Int).Lsh(hi, 128)
	word.Or(word, lo)
	b := word.Bytes32()
	return hex.EncodeToString(b[:]), nil
}

// ParseWord parses a decimal or 0x-prefixed hex integer.
func ParseWord(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func toHalf(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		return nil, ErrHalfOverflow
	}
	u, _ := uint256.FromBig(v)
	return u, nil
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
