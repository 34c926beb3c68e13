package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/ledger"
)

const (
	ChainName = "ethereum"

	FinalStatusCacheSize = 1024
	SubmittedCacheSize   = 4096
	DefaultTipCap        = 2_000_000_000

	receiveMessageABI = `[{"type":"function","name":"receiveMessage","stateMutability":"nonpayable",
		"inputs":[{"name":"a","type":"uint256"},{"name":"b","type":"uint256"}],"outputs":[]}]`
)

// ethClient is the subset of ethclient.Client the relay needs.
type ethClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// Client delivers messages to the Ethereum bridge contract.
type Client struct {
	client      ethClient
	signer      Signer
	contract    common.Address
	contractABI abi.ABI

	chainID       *big.Int
	gasLimit      uint64
	confirmations uint64
	finalityDepth uint64

	// final statuses never change
	finalStatus *lru.Cache[common.Hash, ledger.TxStatus]
	// nonces of transactions sent by this process
	submitted *lru.Cache[common.Hash, uint64]
}

var _ ledger.Destination = (*Client)(nil)

func Dial(rpcUrl string) (*ethclient.Client, error) {
	return ethclient.Dial(rpcUrl)
}

func New(client ethClient, signer Signer, cfg config.EthereumConfig) (*Client, error) {
	contractABI, err := abi.JSON(strings.NewReader(receiveMessageABI))
	if err != nil {
		return nil, err
	}
	finalStatus, err := lru.New[common.Hash, ledger.TxStatus](FinalStatusCacheSize)
	if err != nil {
		return nil, err
	}
	submitted, err := lru.New[common.Hash, uint64](SubmittedCacheSize)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	return &Client{
		client:        client,
		signer:        signer,
		contract:      common.HexToAddress(cfg.ContractAddress),
		contractABI:   contractABI,
		chainID:       big.NewInt(cfg.ChainId),
		gasLimit:      cfg.GasLimit,
		confirmations: cfg.Confirmations,
		finalityDepth: cfg.FinalityDepth,
		finalStatus:   finalStatus,
		submitted:     submitted,
	}, nil
}

func (c *Client) Name() string {
	return ChainName
}

func (c *Client) Account() string {
	return c.signer.From().Hex()
}

func (c *Client) GetNonce(ctx context.Context, account string) (uint64, error) {
	if !common.IsHexAddress(account) {
		return 0, fmt.Errorf("invalid account %q", account)
	}

	nonce, err := c.client.PendingNonceAt(ctx, common.HexToAddress(account))
	return nonce, pkgerrors.Wrapf(err, "get nonce of %s", account)
}

func (c *Client) suggestFees(ctx context.Context) (tipCap *big.Int, feeCap *big.Int, err error) {
	tipCap, err = c.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(DefaultTipCap)
	}

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "get latest header")
	}
	if head.BaseFee == nil {
		return nil, nil, errors.New("chain does not support dynamic fee transactions")
	}

	feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)
	return tipCap, feeCap, nil
}

func (c *Client) Submit(ctx context.Context, a, b *big.Int, nonce uint64) (*ledger.SubmitResult, error) {
	calldata, err := c.contractABI.Pack("receiveMessage", a, b)
	if err != nil {
		return nil, err
	}
	tipCap, feeCap, err := c.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &c.contract,
		Value:     big.NewInt(0),
		Gas:       c.gasLimit,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Data:      calldata,
	})
	signed, err := c.signer.SignTx(ctx, unsigned)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sign tx")
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, pkgerrors.Wrapf(err, "send tx with nonce %d", nonce)
	}
	c.submitted.Add(signed.Hash(), nonce)

	return &ledger.SubmitResult{TxHash: signed.Hash().Hex()}, nil
}

func (c *Client) GetStatus(ctx context.Context, txHash string) (ledger.TxStatus, error) {
	hash := common.HexToHash(txHash)
	if status, ok := c.finalStatus.Get(hash); ok {
		return status, nil
	}

	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return c.statusWithoutReceipt(ctx, hash)
	}
	if err != nil {
		return ledger.StatusUnknown, pkgerrors.Wrapf(err, "get receipt of %s", txHash)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		c.finalStatus.Add(hash, ledger.StatusReverted)
		return ledger.StatusReverted, nil
	}

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return ledger.StatusUnknown, pkgerrors.Wrap(err, "get latest header")
	}
	var confs uint64
	if head.Number.Cmp(receipt.BlockNumber) > 0 {
		confs = new(big.Int).Sub(head.Number, receipt.BlockNumber).Uint64()
	}

	switch {
	case confs >= c.finalityDepth:
		c.finalStatus.Add(hash, ledger.StatusAcceptedFinal)
		return ledger.StatusAcceptedFinal, nil
	case confs >= c.confirmations:
		return ledger.StatusAcceptedProvisional, nil
	default:
		return ledger.StatusPending, nil
	}
}

// statusWithoutReceipt reports a transaction the node no longer knows as REJECTED when it was
// sent by this process and its nonce is still free, so it can be resubmitted with the same nonce.
func (c *Client) statusWithoutReceipt(ctx context.Context, hash common.Hash) (ledger.TxStatus, error) {
	_, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return ledger.StatusUnknown, pkgerrors.Wrapf(err, "get transaction %s", hash.Hex())
	}
	if err == nil {
		// in the pool, or mined without an indexed receipt yet
		return ledger.StatusPending, nil
	}

	nonce, ok := c.submitted.Get(hash)
	if !ok {
		return ledger.StatusUnknown, nil
	}
	pending, err := c.client.PendingNonceAt(ctx, c.signer.From())
	if err != nil {
		return ledger.StatusUnknown, pkgerrors.Wrapf(err, "get nonce of %s", c.Account())
	}
	if pending <= nonce {
		c.submitted.Remove(hash)
		return ledger.StatusRejected, nil
	}
	return ledger.StatusUnknown, nil
}
