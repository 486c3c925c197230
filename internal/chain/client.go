package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrInvalidAmount is returned for a contribution that is not a positive number of wei
var ErrInvalidAmount = errors.New("contribution amount must be a positive number of wei")

// Backend is the subset of the JSON-RPC API the client uses. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config contains contract call settings
type Config struct {
	ContractAddress string
	// ChainID is queried from the node when zero.
	ChainID       int64
	SubmitTimeout time.Duration
}

// Client builds, signs and submits crowdfund contract calls
type Client struct {
	backend  Backend
	wallet   Wallet
	contract common.Address
	chainID  *big.Int
	timeout  time.Duration
	logger   *zap.Logger
	closer   func()
	now      func() time.Time

	mu        sync.Mutex
	nextNonce *uint64
}

// SignedTx is a signed transaction that has not been broadcast yet
type SignedTx struct {
	Tx     *types.Transaction
	From   common.Address
	Method string
}

// Hash returns the transaction hash in hex
func (s *SignedTx) Hash() string { return s.Tx.Hash().Hex() }

// Raw returns the RLP encoding of the transaction
func (s *SignedTx) Raw() ([]byte, error) { return s.Tx.MarshalBinary() }

// Receipt confirms the node accepted a transaction. It does not mean the
// transaction was mined.
type Receipt struct {
	TxHash      string    `json:"txHash"`
	From        string    `json:"from"`
	Nonce       uint64    `json:"nonce"`
	Method      string    `json:"method"`
	ValueWei    string    `json:"valueWei"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// TxState is the mined state of a transaction
type TxState int

const (
	TxPending TxState = iota
	TxSucceeded
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxSucceeded:
		return "succeeded"
	case TxFailed:
		return "failed"
	default:
		return "pending"
	}
}

// NewClient creates a client over an existing backend. A nil wallet yields a
// client that answers every submission with NotConnectedError.
func NewClient(backend Backend, wallet Wallet, cfg Config, logger *zap.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		backend:  backend,
		wallet:   wallet,
		contract: common.HexToAddress(cfg.ContractAddress),
		timeout:  timeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cfg.ChainID != 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	}
	return c, nil
}

// Dial connects to a JSON-RPC endpoint
func Dial(ctx context.Context, rpcURL string, wallet Wallet, cfg Config, logger *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}

	c, err := NewClient(ec, wallet, cfg, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close

	if wallet != nil {
		logger.Info("chain client ready",
			zap.String("contract", c.contract.Hex()),
			zap.String("signer", wallet.Address().Hex()),
		)
	} else {
		logger.Warn("chain client has no signer, submissions are disabled")
	}
	return c, nil
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Connected reports whether a signer is configured
func (c *Client) Connected() bool { return c.wallet != nil }

// PrepareProjectCreation signs a createProject call without sending it
func (c *Client) PrepareProjectCreation(ctx context.Context, call ProjectCall) (*SignedTx, error) {
	if c.wallet == nil {
		return nil, &NotConnectedError{}
	}
	data, err := packCreateProject(call)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("failed to encode %s: %w", MethodCreateProject, err)}
	}
	return c.prepare(ctx, MethodCreateProject, data, new(big.Int))
}

// PrepareContribution signs a payable contribute call without sending it
func (c *Client) PrepareContribution(ctx context.Context, projectKey string, amountWei *big.Int) (*SignedTx, error) {
	if c.wallet == nil {
		return nil, &NotConnectedError{}
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	data, err := packContribute(projectKey)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("failed to encode %s: %w", MethodContribute, err)}
	}
	return c.prepare(ctx, MethodContribute, data, new(big.Int).Set(amountWei))
}

// SubmitProjectCreation signs and broadcasts a createProject call
func (c *Client) SubmitProjectCreation(ctx context.Context, call ProjectCall) (*Receipt, error) {
	stx, err := c.PrepareProjectCreation(ctx, call)
	if err != nil {
		return nil, err
	}
	return c.Broadcast(ctx, stx)
}

// SubmitContribution signs and broadcasts a contribute call carrying amountWei
func (c *Client) SubmitContribution(ctx context.Context, projectKey string, amountWei *big.Int) (*Receipt, error) {
	stx, err := c.PrepareContribution(ctx, projectKey, amountWei)
	if err != nil {
		return nil, err
	}
	return c.Broadcast(ctx, stx)
}

// Broadcast sends a signed transaction. A network failure is retried once
// with the same transaction; the node answering "already known" counts as
// accepted.
func (c *Client) Broadcast(ctx context.Context, stx *SignedTx) (*Receipt, error) {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		sendErr := c.send(ctx, stx.Tx)
		if sendErr == nil || isAlreadyKnown(sendErr) {
			receipt := &Receipt{
				TxHash:      stx.Hash(),
				From:        stx.From.Hex(),
				Nonce:       stx.Tx.Nonce(),
				Method:      stx.Method,
				ValueWei:    stx.Tx.Value().String(),
				SubmittedAt: c.now(),
			}
			c.logger.Info("transaction accepted",
				zap.String("tx_hash", receipt.TxHash),
				zap.String("method", stx.Method),
				zap.Uint64("nonce", receipt.Nonce),
				zap.Int("attempt", attempt),
			)
			return receipt, nil
		}

		err = classify("broadcast", sendErr)
		var netErr *NetworkError
		if !errors.As(err, &netErr) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("broadcast failed",
			zap.String("tx_hash", stx.Hash()),
			zap.Int("attempt", attempt),
			zap.Error(sendErr),
		)
	}

	// The node may or may not hold the transaction; ask it for the nonce next time.
	c.resetNonce()
	return nil, err
}

// Rebroadcast resends a raw signed transaction whose receipt has not shown
// up. The node answering "already known" counts as accepted.
func (c *Client) Rebroadcast(ctx context.Context, raw []byte) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("failed to decode raw transaction: %w", err)
	}
	if err := c.send(ctx, tx); err != nil && !isAlreadyKnown(err) {
		return classify("rebroadcast", err)
	}
	c.logger.Info("transaction rebroadcast", zap.String("tx_hash", tx.Hash().Hex()))
	return nil
}

// Discard forgets a signed transaction that will not be broadcast, so its
// nonce is handed out again.
func (c *Client) Discard(stx *SignedTx) {
	c.logger.Debug("discarding signed transaction", zap.String("tx_hash", stx.Hash()))
	c.resetNonce()
}

// TransactionState looks up the receipt of a transaction
func (c *Client) TransactionState(ctx context.Context, txHash string) (TxState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return TxPending, nil
	}
	if err != nil {
		return TxPending, &NetworkError{Op: "receipt lookup", Err: err}
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxSucceeded, nil
	}
	return TxFailed, nil
}

func (c *Client) send(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.SendTransaction(ctx, tx)
}

func (c *Client) prepare(ctx context.Context, method string, data []byte, value *big.Int) (*SignedTx, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	from := c.wallet.Address()

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.nonceLocked(ctx, from)
	if err != nil {
		return nil, err
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.contract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, classify("estimate gas", err)
	}
	gas += gas / 5

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, classify("fetch head", err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, classify("suggest tip", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &c.contract,
			Value:     value,
			Data:      data,
		})
	} else {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, classify("suggest gas price", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &c.contract,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := c.wallet.SignTx(tx, chainID)
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	next := nonce + 1
	c.nextNonce = &next

	return &SignedTx{Tx: signed, From: from, Method: method}, nil
}

// nonceLocked returns the larger of the node's pending nonce and the next
// nonce this client handed out, so back-to-back submissions do not collide.
func (c *Client) nonceLocked(ctx context.Context, from common.Address) (uint64, error) {
	pending, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, classify("fetch nonce", err)
	}
	if c.nextNonce != nil && *c.nextNonce > pending {
		return *c.nextNonce, nil
	}
	return pending, nil
}

func (c *Client) resetNonce() {
	c.mu.Lock()
	c.nextNonce = nil
	c.mu.Unlock()
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, classify("fetch chain id", err)
	}
	c.chainID = id
	return id, nil
}
