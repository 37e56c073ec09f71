package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Request is an unsigned gas-price transaction bound to one chain.
type Request struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	Nonce    uint64
	ChainID  *big.Int
	GasPrice *big.Int
	Gas      uint64
}

// CallMsg is the estimate_gas view of the request.
func (r *Request) CallMsg() ethereum.CallMsg {
	to := r.To
	return ethereum.CallMsg{
		From:     r.From,
		To:       &to,
		GasPrice: r.GasPrice,
		Value:    r.Value,
		Data:     r.Data,
	}
}

func (r *Request) Transaction() *types.Transaction {
	to := r.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    r.Nonce,
		GasPrice: r.GasPrice,
		Gas:      r.Gas,
		To:       &to,
		Value:    r.Value,
		Data:     r.Data,
	})
}

// Cost is value + gasPrice * gas.
func (r *Request) Cost() *big.Int {
	cost := new(big.Int).Mul(r.GasPrice, new(big.Int).SetUint64(r.Gas))
	return cost.Add(cost, r.Value)
}
