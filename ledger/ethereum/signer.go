package ethereum

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Psychedelic/terabethia-relayer/kms"
)

// Signer abstracts transaction signing for the client.
type Signer interface {
	From() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// KeySource yields a plaintext private key. kms.KeyCache implements it.
type KeySource interface {
	Get(ctx context.Context) ([]byte, error)
}

// LocalECDSASigner signs transactions with a secp256k1 key decrypted through KMS.
type LocalECDSASigner struct {
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
}

func NewLocalECDSASigner(ctx context.Context, chainID *big.Int, keys KeySource) (*LocalECDSASigner, error) {
	raw, err := keys.Get(ctx)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		if key, err = crypto.HexToECDSA(string(bytes.TrimPrefix(bytes.TrimSpace(raw), []byte("0x")))); err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
	}

	return &LocalECDSASigner{
		chainID: chainID,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalECDSASigner) From() common.Address { return s.from }

func (s *LocalECDSASigner) SignTx(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
}

// KMSSigner signs transactions remotely; the key never leaves KMS.
type KMSSigner struct {
	chainID *big.Int
	keys    kms.KeyService
	pubkey  []byte
	from    common.Address
}

func NewKMSSigner(ctx context.Context, chainID *big.Int, keys kms.KeyService) (*KMSSigner, error) {
	der, err := keys.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := kms.ParsePublicKey(der)
	if err != nil {
		return nil, err
	}

	return &KMSSigner{
		chainID: chainID,
		keys:    keys,
		pubkey:  crypto.FromECDSAPub(pub),
		from:    crypto.PubkeyToAddress(*pub),
	}, nil
}

func (s *KMSSigner) From() common.Address { return s.from }

func (s *KMSSigner) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(s.chainID)
	hash := signer.Hash(tx)

	der, err := s.keys.Sign(ctx, hash.Bytes())
	if err != nil {
		return nil, err
	}
	sig, err := s.recoverable(hash.Bytes(), der)
	if err != nil {
		return nil, err
	}

	return tx.WithSignature(signer, sig)
}

// recoverable turns a DER signature into the 65-byte [R || S || V] form.
func (s *KMSSigner) recoverable(hash []byte, der []byte) ([]byte, error) {
	compact, err := kms.CompactSignature(der)
	if err != nil {
		return nil, err
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, compact)
	for v := byte(0); v < 2; v++ {
		sig[crypto.RecoveryIDOffset] = v
		pub, err := crypto.Ecrecover(hash, sig)
		if err == nil && bytes.Equal(pub, s.pubkey) {
			return sig, nil
		}
	}

	return nil, errors.New("kms signature does not recover to the signer's public key")
}
