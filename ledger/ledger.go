package ledger

import (
	"context"
	"math/big"
)

type TxStatus string

const (
	StatusPending             TxStatus = "PENDING"
	StatusAcceptedProvisional TxStatus = "ACCEPTED_PROVISIONAL"
	StatusAcceptedFinal       TxStatus = "ACCEPTED_FINAL"
	// StatusRejected means the transaction was not included and its nonce is still free.
	StatusRejected TxStatus = "REJECTED"
	// StatusReverted means the transaction was included but failed; its nonce is consumed.
	StatusReverted TxStatus = "REVERTED"
	StatusUnknown  TxStatus = "UNKNOWN"
)

func (s TxStatus) Accepted() bool {
	return s == StatusAcceptedProvisional || s == StatusAcceptedFinal
}

// OutgoingMessage is a message waiting on the source ledger.
type OutgoingMessage struct {
	Key  string `json:"msg_key"`
	Hash string `json:"msg_hash"`
}

type SubmitResult struct {
	TxHash string
}

// Source is the ledger messages are relayed from.
type Source interface {
	ListOutgoing(ctx context.Context) ([]OutgoingMessage, error)
	Remove(ctx context.Context, msgs []OutgoingMessage) error
}

// Destination is the ledger messages are delivered to. a and b are the high and low
// halves of the message hash.
type Destination interface {
	Name() string
	Account() string
	GetNonce(ctx context.Context, account string) (uint64, error)
	Submit(ctx context.Context, a, b *big.Int, nonce uint64) (*SubmitResult, error)
	GetStatus(ctx context.Context, txHash string) (TxStatus, error)
}
