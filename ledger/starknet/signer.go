package starknet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid stark private key")
	ErrHashOutOfRange    = errors.New("message hash must be below 2^251")

	// r, s^-1 and the signed hash are all bounded by 2^251
	signatureBound = new(big.Int).Lsh(big.NewInt(1), 251)
)

// Signer produces Stark-curve ECDSA signatures with a local private key.
type Signer struct {
	priv *big.Int
	pub  starkcurve.G1Affine
}

func NewSigner(priv *big.Int) (*Signer, error) {
	if priv == nil || priv.Sign() <= 0 || priv.Cmp(fr.Modulus()) >= 0 {
		return nil, ErrInvalidPrivateKey
	}

	_, g := starkcurve.Generators()
	s := &Signer{priv: new(big.Int).Set(priv)}
	s.pub.ScalarMultiplication(&g, s.priv)
	return s, nil
}

// ParsePrivateKey accepts a key either as hex text (with or without 0x, leading zeros optional)
// or as raw big-endian bytes.
func ParsePrivateKey(raw []byte) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if text != "" && isHex(text) {
		key, ok := new(big.Int).SetString(text, 16)
		if !ok {
			return nil, ErrInvalidPrivateKey
		}
		return key, nil
	}
	if len(raw) == 0 {
		return nil, ErrInvalidPrivateKey
	}

	return new(big.Int).SetBytes(raw), nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// PublicKey returns the x coordinate of the public key.
func (s *Signer) PublicKey() *big.Int {
	return s.pub.X.BigInt(new(big.Int))
}

func (s *Signer) Sign(hash *big.Int) (r, sig *big.Int, err error) {
	if hash.Sign() < 0 || hash.Cmp(signatureBound) >= 0 {
		return nil, nil, ErrHashOutOfRange
	}

	n := fr.Modulus()
	_, g := starkcurve.Generators()
	for i := 0; i < 64; i++ {
		k, err := rand.Int(rand.Reader, new(big.Int).Sub(n, big.NewInt(1)))
		if err != nil {
			return nil, nil, err
		}
		k.Add(k, big.NewInt(1))

		var point starkcurve.G1Affine
		point.ScalarMultiplication(&g, k)
		r = point.X.BigInt(new(big.Int))
		if r.Sign() == 0 || r.Cmp(signatureBound) >= 0 {
			continue
		}

		// s = k^-1 * (hash + r * priv) mod n
		sig = new(big.Int).Mul(r, s.priv)
		sig.Add(sig, hash)
		sig.Mul(sig, new(big.Int).ModInverse(k, n))
		sig.Mod(sig, n)
		if sig.Sign() == 0 {
			continue
		}
		w := new(big.Int).ModInverse(sig, n)
		if w.Cmp(signatureBound) >= 0 {
			continue
		}

		return r, sig, nil
	}

	return nil, nil, fmt.Errorf("no valid nonce found for hash %s", hash.Text(16))
}
