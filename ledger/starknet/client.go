package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	pkgerrors "github.com/pkg/errors"

	"github.com/Psychedelic/terabethia-relayer/codec"
	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/ledger"
)

const (
	ChainName = "starknet"

	// JSON-RPC error code of starknet_getTransactionStatus for unknown hashes
	txnHashNotFoundCode = 29

	finalityReceived     = "RECEIVED"
	finalityRejected     = "REJECTED"
	finalityAcceptedOnL2 = "ACCEPTED_ON_L2"
	finalityAcceptedOnL1 = "ACCEPTED_ON_L1"
	executionReverted    = "REVERTED"
)

// KeySource yields the plaintext account key. kms.KeyCache implements it.
type KeySource interface {
	Get(ctx context.Context) ([]byte, error)
}

type invokeTxV1 struct {
	Type          string   `json:"type"`
	SenderAddress string   `json:"sender_address"`
	Calldata      []string `json:"calldata"`
	MaxFee        string   `json:"max_fee"`
	Version       string   `json:"version"`
	Signature     []string `json:"signature"`
	Nonce         string   `json:"nonce"`
}

type transactionStatus struct {
	FinalityStatus  string `json:"finality_status"`
	ExecutionStatus string `json:"execution_status"`
}

// Client submits messages to the Starknet bridge contract through the relay account.
type Client struct {
	rpcClient *rpc.Client

	account  *big.Int
	contract *big.Int
	selector *big.Int
	chainId  *big.Int
	maxFee   *big.Int

	keys   KeySource
	mu     sync.Mutex
	signer *Signer
}

var _ ledger.Destination = (*Client)(nil)

func New(cfg config.StarknetConfig, keys KeySource) (*Client, error) {
	rpcClient, err := rpc.DialContext(context.Background(), cfg.RpcUrl)
	if err != nil {
		return nil, err
	}

	return NewWithRPC(rpcClient, cfg, keys)
}

func NewWithRPC(rpcClient *rpc.Client, cfg config.StarknetConfig, keys KeySource) (*Client, error) {
	c := &Client{
		rpcClient: rpcClient,
		selector:  SelectorFromName(cfg.EntryPoint),
		keys:      keys,
	}

	var err error
	if c.account, err = codec.ParseWord(cfg.AccountAddress); err != nil {
		return nil, fmt.Errorf("accountAddress: %w", err)
	}
	if c.contract, err = codec.ParseWord(cfg.ContractAddress); err != nil {
		return nil, fmt.Errorf("contractAddress: %w", err)
	}
	if c.maxFee, err = codec.ParseWord(cfg.MaxFee); err != nil {
		return nil, fmt.Errorf("maxFee: %w", err)
	}
	if c.chainId, err = parseChainId(cfg.ChainId); err != nil {
		return nil, fmt.Errorf("chainId: %w", err)
	}

	return c, nil
}

// parseChainId accepts a numeric id or a short string such as SN_MAIN.
func parseChainId(s string) (*big.Int, error) {
	if v, err := codec.ParseWord(s); err == nil {
		return v, nil
	}
	if s == "" || len(s) > 31 {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return new(big.Int).SetBytes([]byte(s)), nil
}

func felt(v *big.Int) string {
	return "0x" + v.Text(16)
}

func (c *Client) Name() string {
	return ChainName
}

func (c *Client) Account() string {
	return felt(c.account)
}

func (c *Client) GetNonce(ctx context.Context, account string) (uint64, error) {
	var res string
	if err := c.rpcClient.CallContext(ctx, &res, "starknet_getNonce", "pending", account); err != nil {
		return 0, pkgerrors.Wrapf(err, "get nonce of %s", account)
	}

	n, err := codec.ParseWord(res)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("nonce %s out of range", res)
	}
	return n.Uint64(), nil
}

func (c *Client) loadSigner(ctx context.Context) (*Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signer != nil {
		return c.signer, nil
	}

	raw, err := c.keys.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load account key")
	}
	priv, err := ParsePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(priv)
	if err != nil {
		return nil, err
	}

	c.signer = signer
	return signer, nil
}

func (c *Client) Submit(ctx context.Context, a, b *big.Int, nonce uint64) (*ledger.SubmitResult, error) {
	signer, err := c.loadSigner(ctx)
	if err != nil {
		return nil, err
	}

	calldata := ExecuteCalldata(c.contract, c.selector, []*big.Int{a, b})
	hash := InvokeTxHashV1(c.account, calldata, c.maxFee, c.chainId, nonce)
	r, s, err := signer.Sign(hash)
	if err != nil {
		return nil, err
	}

	tx := invokeTxV1{
		Type:          "INVOKE",
		SenderAddress: felt(c.account),
		MaxFee:        felt(c.maxFee),
		Version:       felt(big.NewInt(invokeVersion)),
		Signature:     []string{felt(r), felt(s)},
		Nonce:         felt(new(big.Int).SetUint64(nonce)),
	}
	for _, v := range calldata {
		tx.Calldata = append(tx.Calldata, felt(v))
	}

	var res struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := c.rpcClient.CallContext(ctx, &res, "starknet_addInvokeTransaction", tx); err != nil {
		return nil, pkgerrors.Wrapf(err, "add invoke transaction with nonce %d", nonce)
	}

	return &ledger.SubmitResult{TxHash: res.TransactionHash}, nil
}

func (c *Client) GetStatus(ctx context.Context, txHash string) (ledger.TxStatus, error) {
	var res transactionStatus
	err := c.rpcClient.CallContext(ctx, &res, "starknet_getTransactionStatus", txHash)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == txnHashNotFoundCode {
			return ledger.StatusUnknown, nil
		}
		return ledger.StatusUnknown, pkgerrors.Wrapf(err, "get status of %s", txHash)
	}

	return res.toStatus(), nil
}

func (s transactionStatus) toStatus() ledger.TxStatus {
	switch s.FinalityStatus {
	case finalityReceived:
		return ledger.StatusPending
	case finalityRejected:
		return ledger.StatusRejected
	case finalityAcceptedOnL2:
		if s.ExecutionStatus == executionReverted {
			return ledger.StatusReverted
		}
		return ledger.StatusAcceptedProvisional
	case finalityAcceptedOnL1:
		if s.ExecutionStatus == executionReverted {
			return ledger.StatusReverted
		}
		return ledger.StatusAcceptedFinal
	default:
		return ledger.StatusUnknown
	}
}
