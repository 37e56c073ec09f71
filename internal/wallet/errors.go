package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrSubmit matches every failure of the submit pipeline.
var ErrSubmit = errors.New("submit transaction")

const (
	StepBuild       = "build"
	StepNonce       = "nonce"
	StepChainID     = "chain id"
	StepGasPrice    = "gas price"
	StepEstimateGas = "estimate gas"
	StepBalance     = "balance"
	StepSign        = "sign"
	StepSend        = "send"
	StepReceipt     = "receipt"
)

type SubmitError struct {
	Step string
	// TxHash is set once the transaction was signed.
	TxHash common.Hash
	Err    error
}

func (e *SubmitError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s (%s): %v", e.Step, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

func (e *SubmitError) Is(target error) bool {
	return target == ErrSubmit
}
