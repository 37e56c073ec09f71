package status

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/metis-devops/task-sender/internal/runner"
)

/*
	{
	  "healthy": true,
	  "run_id": "5b7c3e0a-6a1f-4c59-9a53-0f9f3f0ad0c1",
	  "iteration": 3,
	  "total": 10,
	  "succeeded": 2,
	  "failed": 1,
	  "last_block": "0xe90cc9",
	  "last_tx": "0x5c50...2060",
	  "updated_at": "2024-03-16T02:12:05Z"
	}
*/

type HealthyResponse struct {
	Healthy   bool         `json:"healthy"`
	RunID     string       `json:"run_id"`
	Iteration int          `json:"iteration"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	LastBlock *hexutil.Big `json:"last_block"`
	LastTx    *common.Hash `json:"last_tx"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Tracker keeps the latest run snapshot. The run is unhealthy once it has
// not progressed for staleAfter, unless every iteration is done.
type Tracker struct {
	mutex      sync.RWMutex
	staleAfter time.Duration
	now        func() time.Time

	started bool
	state   HealthyResponse
}

var _ runner.Recorder = (*Tracker)(nil)

func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (t *Tracker) RunStarted(runID string, total int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.started = true
	t.state = HealthyResponse{
		RunID:     runID,
		Total:     total,
		UpdatedAt: t.now().UTC(),
	}
}

func (t *Tracker) IterationDone(res *runner.Result) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state.Iteration = res.Index
	if res.Succeeded() {
		t.state.Succeeded++
	} else {
		t.state.Failed++
	}
	if res.TxHash != (common.Hash{}) {
		hash := res.TxHash
		t.state.LastTx = &hash
	}
	if res.Outcome != nil && res.Outcome.BlockNumber != nil {
		t.state.LastBlock = (*hexutil.Big)(new(big.Int).Set(res.Outcome.BlockNumber))
	}
	t.state.UpdatedAt = t.now().UTC()
}

// Snapshot returns nil before the run has started.
func (t *Tracker) Snapshot() *HealthyResponse {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.started {
		return nil
	}
	snapshot := t.state
	done := snapshot.Total > 0 && snapshot.Iteration >= snapshot.Total
	snapshot.Healthy = done || t.now().Sub(snapshot.UpdatedAt) < t.staleAfter
	return &snapshot
}
