package starknet

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
	"github.com/ethereum/go-ethereum/crypto"
)

const invokeVersion = 1

var (
	invokePrefix = new(big.Int).SetBytes([]byte("invoke"))
	selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
)

func toFelts(values []*big.Int) []*fp.Element {
	felts := make([]*fp.Element, len(values))
	for i, v := range values {
		felts[i] = new(fp.Element).SetBigInt(v)
	}
	return felts
}

// HashElements is the Pedersen chain hash over values followed by their count.
func HashElements(values []*big.Int) *big.Int {
	h := pedersenhash.PedersenArray(toFelts(values)...)
	return h.BigInt(new(big.Int))
}

// SelectorFromName is the entry point selector: keccak-256 of the name truncated to 250 bits.
func SelectorFromName(name string) *big.Int {
	h := new(big.Int).SetBytes(crypto.Keccak256([]byte(name)))
	return h.And(h, selectorMask)
}

// ExecuteCalldata encodes a single call for an account's __execute__ entry point.
func ExecuteCalldata(to *big.Int, selector *big.Int, args []*big.Int) []*big.Int {
	calldata := make([]*big.Int, 0, 4+len(args))
	calldata = append(calldata, big.NewInt(1), to, selector, big.NewInt(int64(len(args))))
	return append(calldata, args...)
}

// InvokeTxHashV1 is the hash a version 1 invoke transaction is signed and identified by.
func InvokeTxHashV1(sender *big.Int, calldata []*big.Int, maxFee *big.Int, chainId *big.Int, nonce uint64) *big.Int {
	return HashElements([]*big.Int{
		invokePrefix,
		big.NewInt(invokeVersion),
		sender,
		big.NewInt(0), // entry point selector, unused since v1
		HashElements(calldata),
		maxFee,
		chainId,
		new(big.Int).SetUint64(nonce),
	})
}
