package kms

import (
	"crypto/ecdsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	Secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(Secp256k1N, 1)
)

// SubjectPublicKeyInfo is the DER layout KMS returns from GetPublicKey.
type SubjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// ECDSASignature is the DER layout KMS returns from Sign.
type ECDSASignature struct {
	R, S *big.Int
}

// ParsePublicKey decodes a DER SubjectPublicKeyInfo holding a secp256k1 key.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	var spki SubjectPublicKeyInfo
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, fmt.Errorf("parse kms public key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse kms public key: %w", err)
	}

	return pub, nil
}

// CompactSignature turns a DER signature into the 64-byte [R || S] form with s
// normalized to the lower half of the curve order.
func CompactSignature(der []byte) ([]byte, error) {
	var parsed ECDSASignature
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return nil, fmt.Errorf("parse kms signature: %w", err)
	}
	if parsed.R == nil || parsed.S == nil {
		return nil, errors.New("parse kms signature: missing R or S")
	}
	if parsed.S.Cmp(secp256k1HalfN) > 0 {
		parsed.S = new(big.Int).Sub(Secp256k1N, parsed.S)
	}

	sig := make([]byte, 64)
	parsed.R.FillBytes(sig[0:32])
	parsed.S.FillBytes(sig[32:64])
	return sig, nil
}
