package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/metis-devops/task-sender/internal/account"
)

// Backend is the subset of the JSON-RPC surface the wallet needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

type Config struct {
	// CallTimeout bounds every single RPC call.
	CallTimeout time.Duration
	// ReceiptTimeout bounds the wait for a mined receipt, 0 waits until the context ends.
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		CallTimeout:    10 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		PollInterval:   3 * time.Second,
	}
}

type Wallet struct {
	client  Backend
	account *account.Account
	cfg     Config
	logger  *zap.Logger
}

// Outcome is what the network reported for an included transaction.
type Outcome struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber *big.Int
	GasUsed     uint64
}

func (o *Outcome) Succeeded() bool {
	return o.Status == types.ReceiptStatusSuccessful
}

// Dial connects to the rpc endpoint and confirms it answers by reading the chain id.
func Dial(basectx context.Context, rpc string, logger *zap.Logger) (*ethclient.Client, *big.Int, error) {
	newctx, cancel := context.WithTimeout(basectx, time.Second*5)
	defer cancel()

	logger.Sugar().Infow("connecting", "rpc", rpc)
	client, err := ethclient.DialContext(newctx, rpc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", rpc, err)
	}

	chainId, err := client.ChainID(newctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("unable to connect to the network: %w", err)
	}
	return client, chainId, nil
}

func NewWallet(client Backend, acc *account.Account, cfg *Config, logger *zap.Logger) (*Wallet, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if acc == nil {
		return nil, fmt.Errorf("account cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	return &Wallet{
		client:  client,
		account: acc,
		cfg:     *cfg,
		logger:  logger,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.account.Address()
}

// Build reads nonce, chain id and gas price from the endpoint and asks it to
// estimate gas for the resulting request. Nothing is cached between calls.
func (w *Wallet) Build(ctx context.Context, to common.Address, value *big.Int) (*Request, error) {
	if value == nil || value.Sign() < 0 {
		return nil, &SubmitError{Step: StepBuild, Err: errors.New("value must be a non-negative amount")}
	}

	nonce, err := w.nonce(ctx)
	if err != nil {
		return nil, &SubmitError{Step: StepNonce, Err: err}
	}

	chainId, err := w.chainID(ctx)
	if err != nil {
		return nil, &SubmitError{Step: StepChainID, Err: err}
	}

	gasPrice, err := w.gasPrice(ctx)
	if err != nil {
		return nil, &SubmitError{Step: StepGasPrice, Err: err}
	}

	req := &Request{
		From:     w.account.Address(),
		To:       to,
		Value:    new(big.Int).Set(value),
		Data:     []byte{},
		Nonce:    nonce,
		ChainID:  chainId,
		GasPrice: gasPrice,
	}

	gas, err := w.estimateGas(ctx, req)
	if err != nil {
		return nil, &SubmitError{Step: StepEstimateGas, Err: err}
	}
	req.Gas = gas

	w.logger.Sugar().Debugw("built transaction",
		"nonce", req.Nonce,
		"chainId", req.ChainID,
		"gasPrice", req.GasPrice,
		"gas", req.Gas,
		"to", req.To,
		"value", req.Value,
	)
	return req, nil
}

// Submit builds, signs and broadcasts one transaction, then blocks until its
// receipt is observed. A reverted receipt is not an error.
func (w *Wallet) Submit(ctx context.Context, to common.Address, value *big.Int) (*Outcome, error) {
	req, err := w.Build(ctx, to, value)
	if err != nil {
		return nil, err
	}

	if err := w.checkBalance(ctx, req); err != nil {
		return nil, err
	}

	tx, err := w.Sign(req)
	if err != nil {
		return nil, &SubmitError{Step: StepSign, Err: err}
	}

	if err := w.send(ctx, tx); err != nil {
		return nil, &SubmitError{Step: StepSend, TxHash: tx.Hash(), Err: err}
	}
	w.logger.Sugar().Infow("Sent transaction", "tx", tx.Hash(), "nonce", req.Nonce)

	receipt, err := w.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, &SubmitError{Step: StepReceipt, TxHash: tx.Hash(), Err: err}
	}

	outcome := &Outcome{
		TxHash:      tx.Hash(),
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}
	if outcome.Succeeded() {
		w.logger.Sugar().Infow("Transaction confirmed", "tx", outcome.TxHash, "block", outcome.BlockNumber, "gasUsed", outcome.GasUsed)
	} else {
		w.logger.Sugar().Warnw("Transaction failed", "tx", outcome.TxHash, "block", outcome.BlockNumber, "gasUsed", outcome.GasUsed)
	}
	return outcome, nil
}

// Sign produces the EIP-155 signed form of req.
func (w *Wallet) Sign(req *Request) (*types.Transaction, error) {
	if req.ChainID == nil {
		return nil, errors.New("missing chain id")
	}
	return types.SignTx(req.Transaction(), types.NewEIP155Signer(req.ChainID), w.account.PrivateKey())
}

func (w *Wallet) nonce(basectx context.Context) (uint64, error) {
	newctx, cancel := w.callContext(basectx)
	defer cancel()
	return w.client.NonceAt(newctx, w.account.Address(), nil)
}

func (w *Wallet) chainID(basectx context.Context) (*big.Int, error) {
	newctx, cancel := w.callContext(basectx)
	defer cancel()
	return w.client.ChainID(newctx)
}

func (w *Wallet) gasPrice(basectx context.Context) (*big.Int, error) {
	newctx, cancel := w.callContext(basectx)
	defer cancel()
	return w.client.SuggestGasPrice(newctx)
}

func (w *Wallet) estimateGas(basectx context.Context, req *Request) (uint64, error) {
	newctx, cancel := w.callContext(basectx)
	defer cancel()
	return w.client.EstimateGas(newctx, req.CallMsg())
}

func (w *Wallet) checkBalance(basectx context.Context, req *Request) error {
	newctx, cancel := w.callContext(basectx)
	defer cancel()

	balance, err := w.client.BalanceAt(newctx, req.From, nil)
	if err != nil {
		return &SubmitError{Step: StepBalance, Err: err}
	}
	if balance.Cmp(req.Cost()) < 0 {
		return &SubmitError{
			Step: StepBalance,
			Err:  errors.Errorf("insufficient balance: have %s want %s", balance, req.Cost()),
		}
	}
	return nil
}

func (w *Wallet) send(basectx context.Context, tx *types.Transaction) error {
	newctx, cancel := w.callContext(basectx)
	defer cancel()
	return w.client.SendTransaction(newctx, tx)
}

func (w *Wallet) waitMined(basectx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx := basectx
	if w.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(basectx, w.cfg.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var start = time.Now()
	for {
		if receipt := w.receipt(ctx, hash); receipt != nil {
			w.logger.Sugar().Debugw("Receipt found", "tx", hash, "duration", time.Since(start).String())
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "no receipt after %s", time.Since(start).Round(time.Millisecond))
		case <-ticker.C:
		}
	}
}

// receipt returns nil while the transaction is pending or the lookup failed.
func (w *Wallet) receipt(basectx context.Context, hash common.Hash) *types.Receipt {
	newctx, cancel := w.callContext(basectx)
	defer cancel()

	receipt, err := w.client.TransactionReceipt(newctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) && basectx.Err() == nil {
			w.logger.Sugar().Warnw("Failed to check tx", "tx", hash, "err", err)
		}
		return nil
	}
	return receipt
}

func (w *Wallet) callContext(basectx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.CallTimeout <= 0 {
		return context.WithCancel(basectx)
	}
	return context.WithTimeout(basectx, w.cfg.CallTimeout)
}
