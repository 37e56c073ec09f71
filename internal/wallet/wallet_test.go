package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metis-devops/task-sender/internal/account"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type mockBackend struct {
	chainID  *big.Int
	nonce    uint64
	gasPrice *big.Int
	gas      uint64
	balance  *big.Int

	estimateErr error
	sendErr     error
	// pending is the number of receipt lookups answered with NotFound
	pending       int
	receiptStatus uint64
	receiptErr    error

	nonceCalls    int
	chainIDCalls  int
	gasPriceCalls int
	estimated     []ethereum.CallMsg
	sent          []*types.Transaction
	receiptCalls  int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		chainID:       big.NewInt(1),
		nonce:         7,
		gasPrice:      big.NewInt(1_000_000_000),
		gas:           21_000,
		balance:       new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (m *mockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	m.chainIDCalls++
	return new(big.Int).Set(m.chainID), nil
}

func (m *mockBackend) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	m.nonceCalls++
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.gasPriceCalls++
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	m.estimated = append(m.estimated, msg)
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return m.gas, nil
}

func (m *mockBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(m.balance), nil
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.receiptCalls++
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if m.pending > 0 {
		m.pending--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		TxHash:      txHash,
		Status:      m.receiptStatus,
		BlockNumber: big.NewInt(1234),
		GasUsed:     m.gas,
	}, nil
}

func newTestWallet(t *testing.T, backend Backend) *Wallet {
	acc, err := account.Resolve(testKey)
	require.NoError(t, err)

	w, err := NewWallet(backend, acc, &Config{
		CallTimeout:    time.Second,
		ReceiptTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return w
}

func TestNewWallet(t *testing.T) {
	acc, err := account.Resolve(testKey)
	require.NoError(t, err)
	l := zaptest.NewLogger(t)

	_, err = NewWallet(nil, acc, nil, l)
	assert.ErrorContains(t, err, "client cannot be nil")

	_, err = NewWallet(newMockBackend(), nil, nil, l)
	assert.ErrorContains(t, err, "account cannot be nil")

	_, err = NewWallet(newMockBackend(), acc, nil, nil)
	assert.ErrorContains(t, err, "logger cannot be nil")

	_, err = NewWallet(newMockBackend(), acc, &Config{}, l)
	assert.ErrorContains(t, err, "poll interval")

	w, err := NewWallet(newMockBackend(), acc, nil, l)
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), w.cfg)
	assert.Equal(t, acc.Address(), w.Address())
}

func TestBuild(t *testing.T) {
	backend := newMockBackend()
	backend.gasPrice = big.NewInt(42_000_000_000)
	w := newTestWallet(t, backend)

	to := common.HexToAddress("0x742d35Cc6634C0532925a3b8D39E1b86D8a10f23")
	value := big.NewInt(1_500_000_000_000)

	req, err := w.Build(context.Background(), to, value)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), req.Nonce)
	assert.Equal(t, big.NewInt(1), req.ChainID)
	assert.Equal(t, big.NewInt(42_000_000_000), req.GasPrice)
	assert.Equal(t, uint64(21_000), req.Gas)
	assert.Equal(t, value, req.Value)
	assert.Empty(t, req.Data)
	assert.Equal(t, w.Address(), req.From)
	assert.Equal(t, to, req.To)

	// estimate is requested for exactly the built request
	require.Len(t, backend.estimated, 1)
	msg := backend.estimated[0]
	assert.Equal(t, w.Address(), msg.From)
	assert.Equal(t, to, *msg.To)
	assert.Equal(t, value, msg.Value)
	assert.Equal(t, req.GasPrice, msg.GasPrice)
	assert.Empty(t, msg.Data)

	// the caller's value is not aliased
	value.SetInt64(1)
	assert.Equal(t, big.NewInt(1_500_000_000_000), req.Value)
}

func TestBuildReadsFreshState(t *testing.T) {
	backend := newMockBackend()
	w := newTestWallet(t, backend)
	to := w.Address()

	first, err := w.Build(context.Background(), to, big.NewInt(1))
	require.NoError(t, err)

	backend.nonce = 8
	backend.gas = 21_512
	second, err := w.Build(context.Background(), to, big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), first.Nonce)
	assert.Equal(t, uint64(8), second.Nonce)
	assert.Equal(t, uint64(21_512), second.Gas)
	assert.Equal(t, 2, backend.nonceCalls)
	assert.Equal(t, 2, backend.chainIDCalls)
	assert.Equal(t, 2, backend.gasPriceCalls)
	assert.Len(t, backend.estimated, 2)
}

func TestBuildRejectsNegativeValue(t *testing.T) {
	backend := newMockBackend()
	w := newTestWallet(t, backend)

	_, err := w.Build(context.Background(), w.Address(), big.NewInt(-1))
	require.ErrorIs(t, err, ErrSubmit)
	assert.Zero(t, backend.nonceCalls)
}

func TestSubmit(t *testing.T) {
	backend := newMockBackend()
	backend.pending = 2
	w := newTestWallet(t, backend)

	to := common.HexToAddress("0x742d35Cc6634C0532925a3b8D39E1b86D8a10f23")
	outcome, err := w.Submit(context.Background(), to, big.NewInt(1000))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash(), outcome.TxHash)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, big.NewInt(1234), outcome.BlockNumber)
	assert.Equal(t, uint64(21_000), outcome.GasUsed)
	assert.Equal(t, 3, backend.receiptCalls)

	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(1), tx.ChainId())
	assert.Equal(t, big.NewInt(1000), tx.Value())
	assert.Equal(t, to, *tx.To())
	assert.Empty(t, tx.Data())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
}

func TestSubmitRevertedReceipt(t *testing.T) {
	backend := newMockBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	w := newTestWallet(t, backend)

	outcome, err := w.Submit(context.Background(), w.Address(), big.NewInt(1))
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
	assert.NotEqual(t, common.Hash{}, outcome.TxHash)
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(m *mockBackend)
		step     string
		wantSent int
	}{
		{
			name:  "estimate rejected",
			setup: func(m *mockBackend) { m.estimateErr = errors.New("execution reverted") },
			step:  StepEstimateGas,
		},
		{
			name:  "insufficient balance",
			setup: func(m *mockBackend) { m.balance = big.NewInt(10) },
			step:  StepBalance,
		},
		{
			name:  "broadcast rejected",
			setup: func(m *mockBackend) { m.sendErr = errors.New("nonce too low") },
			step:  StepSend,
		},
		{
			name:     "receipt never shows up",
			setup:    func(m *mockBackend) { m.pending = 1 << 30 },
			step:     StepReceipt,
			wantSent: 1,
		},
		{
			name:     "receipt lookups keep failing",
			setup:    func(m *mockBackend) { m.receiptErr = errors.New("connection refused") },
			step:     StepReceipt,
			wantSent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMockBackend()
			tt.setup(backend)

			acc, err := account.Resolve(testKey)
			require.NoError(t, err)
			w, err := NewWallet(backend, acc, &Config{
				CallTimeout:    time.Second,
				ReceiptTimeout: 30 * time.Millisecond,
				PollInterval:   5 * time.Millisecond,
			}, zaptest.NewLogger(t))
			require.NoError(t, err)

			outcome, err := w.Submit(context.Background(), w.Address(), big.NewInt(1000))
			assert.Nil(t, outcome)
			require.ErrorIs(t, err, ErrSubmit)

			var submitErr *SubmitError
			require.ErrorAs(t, err, &submitErr)
			assert.Equal(t, tt.step, submitErr.Step)
			assert.Len(t, backend.sent, tt.wantSent)
		})
	}
}

func TestSubmitStopsOnCancel(t *testing.T) {
	backend := newMockBackend()
	backend.pending = 1 << 30
	acc, err := account.Resolve(testKey)
	require.NoError(t, err)

	w, err := NewWallet(backend, acc, &Config{
		CallTimeout:  time.Second,
		PollInterval: 5 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = w.Submit(ctx, w.Address(), big.NewInt(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, StepReceipt, submitErr.Step)
	assert.Equal(t, backend.sent[0].Hash(), submitErr.TxHash)
}

func TestRequestCost(t *testing.T) {
	req := &Request{Value: big.NewInt(5), GasPrice: big.NewInt(2), Gas: 21_000}
	assert.Equal(t, big.NewInt(42_005), req.Cost())
}
