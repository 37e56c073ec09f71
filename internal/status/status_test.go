package status

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/metis-devops/task-sender/internal/metrics"
	"github.com/metis-devops/task-sender/internal/runner"
	"github.com/metis-devops/task-sender/internal/wallet"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestTracker() (*Tracker, *clock) {
	c := &clock{now: time.Date(2024, 3, 16, 2, 12, 5, 0, time.UTC)}
	tr := NewTracker(5 * time.Minute)
	tr.now = c.Now
	return tr, c
}

func TestTrackerSnapshot(t *testing.T) {
	tr, c := newTestTracker()
	assert.Nil(t, tr.Snapshot())

	tr.RunStarted("run-1", 3)
	snap := tr.Snapshot()
	require.NotNil(t, snap)
	assert.True(t, snap.Healthy)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 3, snap.Total)
	assert.Nil(t, snap.LastBlock)

	hash := common.HexToHash("0x01")
	tr.IterationDone(&runner.Result{
		Index:    1,
		TxHash:   hash,
		Outcome:  &wallet.Outcome{TxHash: hash, Status: 1, BlockNumber: big.NewInt(0xe90cc9)},
		Verified: true,
	})
	tr.IterationDone(&runner.Result{Index: 2, Stage: runner.StageSubmit, Err: wallet.ErrSubmit})

	snap = tr.Snapshot()
	assert.Equal(t, 2, snap.Iteration)
	assert.Equal(t, 1, snap.Succeeded)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, hash, *snap.LastTx)
	assert.Equal(t, big.NewInt(0xe90cc9), snap.LastBlock.ToInt())

	// no progress for longer than the stale window
	c.now = c.now.Add(6 * time.Minute)
	assert.False(t, tr.Snapshot().Healthy)

	// progress makes it healthy again and a finished run stays healthy
	tr.IterationDone(&runner.Result{Index: 3, Verified: true})
	c.now = c.now.Add(time.Hour)
	assert.True(t, tr.Snapshot().Healthy)
}

func TestHealthEndpoint(t *testing.T) {
	tr, _ := newTestTracker()
	server := httptest.NewServer(NewServer(":0", tr, nil, zaptest.NewLogger(t)).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	tr.RunStarted("run-1", 2)
	tr.IterationDone(&runner.Result{
		Index:   1,
		TxHash:  common.HexToHash("0x02"),
		Outcome: &wallet.Outcome{Status: 1, BlockNumber: big.NewInt(255)},
	})

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("content-type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, float64(1), body["iteration"])
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, "0xff", body["last_block"])
	assert.Equal(t, common.HexToHash("0x02").Hex(), body["last_tx"])
	assert.Contains(t, body, "updated_at")
}

func TestPingAndMetricsEndpoints(t *testing.T) {
	tr, _ := newTestTracker()
	m := metrics.NewMetrics()
	m.IterationDone(&runner.Result{Index: 1, Verified: true})

	server := httptest.NewServer(NewServer(":0", tr, m.Registry(), zaptest.NewLogger(t)).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `task_sender_iterations_total{outcome="success"} 1`)
}

func TestServerStartAndStop(t *testing.T) {
	tr, _ := newTestTracker()
	s := NewServer("127.0.0.1:0", tr, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + s.Addr() + "/ping")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	tr, _ := newTestTracker()
	first := NewServer("127.0.0.1:0", tr, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, first.Start(ctx))

	second := NewServer(first.Addr(), tr, nil, zap.NewNop())
	assert.Error(t, second.Start(ctx))
}
