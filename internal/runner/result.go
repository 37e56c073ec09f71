package runner

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/metis-devops/task-sender/internal/wallet"
)

// ErrNotVerified marks an iteration whose transaction was sent but not accepted by the verifier.
var ErrNotVerified = errors.New("task not verified")

// Stage names where an iteration stopped. StageNone means it succeeded.
type Stage string

const (
	StageNone     Stage = ""
	StageSubmit   Stage = "submit"
	StageVerify   Stage = "verify"
	StageRejected Stage = "rejected"
	StagePanic    Stage = "panic"
)

type Result struct {
	Index int
	// TxHash is set as soon as the transaction was broadcast, even if the iteration failed later.
	TxHash   common.Hash
	Outcome  *wallet.Outcome
	Verified bool
	Stage    Stage
	Err      error
	Duration time.Duration
}

func (r *Result) Succeeded() bool {
	return r.Stage == StageNone && r.Err == nil
}

// OutcomeLabel returns "success" or the failing stage, used as a metric label.
func (r *Result) OutcomeLabel() string {
	if r.Succeeded() {
		return "success"
	}
	return string(r.Stage)
}

type Report struct {
	RunID       string
	Total       int
	Results     []*Result
	Succeeded   int
	Failed      int
	Interrupted bool
}

func (r *Report) add(res *Result) {
	r.Results = append(r.Results, res)
	if res.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}
