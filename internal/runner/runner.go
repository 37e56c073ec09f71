// Package runner drives a fixed number of send-and-verify iterations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/metis-devops/task-sender/internal/input"
	"github.com/metis-devops/task-sender/internal/wallet"
)

const tracerName = "github.com/metis-devops/task-sender/internal/runner"

type Submitter interface {
	Address() common.Address
	Submit(ctx context.Context, to common.Address, value *big.Int) (*wallet.Outcome, error)
}

type Verifier interface {
	Verify(ctx context.Context, address common.Address, txHash common.Hash) (bool, error)
}

// Recorder observes a run. Implementations must not block.
type Recorder interface {
	RunStarted(runID string, total int)
	IterationDone(res *Result)
}

// RunConfig is fixed for the lifetime of a run.
type RunConfig struct {
	Recipient common.Address
	ValueWei  *big.Int
	Count     int
	SleepMin  time.Duration
	SleepMax  time.Duration
}

func (c *RunConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", c.Count)
	}
	if c.ValueWei == nil || c.ValueWei.Sign() < 0 {
		return fmt.Errorf("value must be a non-negative amount")
	}
	if c.SleepMin < 0 {
		return fmt.Errorf("sleep min cannot be negative")
	}
	if c.SleepMin > c.SleepMax {
		return fmt.Errorf("sleep min %s is greater than sleep max %s", c.SleepMin, c.SleepMax)
	}
	return nil
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Runner)

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorders = append(r.recorders, rec)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

func WithRand(rnd *rand.Rand) Option {
	return func(r *Runner) {
		r.rnd = rnd
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(r *Runner) {
		r.sleep = fn
	}
}

type Runner struct {
	cfg       RunConfig
	submitter Submitter
	verifier  Verifier
	logger    *zap.Logger

	recorders []Recorder
	tracer    trace.Tracer
	rnd       *rand.Rand
	sleep     SleepFunc
}

func NewRunner(cfg *RunConfig, submitter Submitter, verifier Verifier, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter cannot be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       *cfg,
		submitter: submitter,
		verifier:  verifier,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:     sleepContext,
	}
	r.cfg.ValueWei = new(big.Int).Set(cfg.ValueWei)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes every iteration in order. Iteration failures are recorded in
// the report and never stop the run; only ctx cancellation does, between iterations.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{
		RunID: uuid.NewString(),
		Total: r.cfg.Count,
	}
	for _, rec := range r.recorders {
		rec.RunStarted(report.RunID, report.Total)
	}

	sugar := r.logger.Sugar()
	sugar.Infow("Starting run",
		"runId", report.RunID,
		"from", r.submitter.Address(),
		"to", r.cfg.Recipient,
		"value", input.FromWei(r.cfg.ValueWei),
		"count", r.cfg.Count,
	)

	for i := 1; i <= r.cfg.Count; i++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		res := r.iterate(ctx, i)
		report.add(res)
		for _, rec := range r.recorders {
			rec.IterationDone(res)
		}

		if i == r.cfg.Count {
			break
		}
		delay := r.delay()
		sugar.Infow("Sleeping", "duration", delay.String())
		if err := r.sleep(ctx, delay); err != nil {
			report.Interrupted = true
			break
		}
	}

	// a cancel during the last iteration leaves the loop through the count check
	if ctx.Err() != nil {
		report.Interrupted = true
	}
	if report.Interrupted {
		sugar.Warnw("Run interrupted", "runId", report.RunID, "completed", len(report.Results), "total", report.Total)
	}
	sugar.Infow("Run finished",
		"runId", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"total", report.Total,
	)
	return report
}

func (r *Runner) iterate(ctx context.Context, i int) (res *Result) {
	start := time.Now()
	res = &Result{Index: i}

	ctx, span := r.tracer.Start(ctx, "iteration", trace.WithAttributes(
		attribute.Int("iteration", i),
		attribute.Int("total", r.cfg.Count),
	))
	defer span.End()

	sugar := r.logger.Sugar()
	defer func() {
		if p := recover(); p != nil {
			res.Stage = StagePanic
			res.Err = fmt.Errorf("iteration panicked: %v", p)
		}
		res.Duration = time.Since(start)

		if res.TxHash != (common.Hash{}) {
			span.SetAttributes(attribute.String("tx.hash", res.TxHash.Hex()))
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Stage))
			sugar.Errorw(color.RedString("❌ Transaction %d failed", i), "stage", res.Stage, "tx", res.TxHash, "error", res.Err)
		} else {
			sugar.Infow(color.GreenString("✅ Transaction %d verified", i), "tx", res.TxHash)
		}
		sugar.Infow(fmt.Sprintf("Transaction %d end", i), "duration", res.Duration.String())
	}()

	sugar.Infow(fmt.Sprintf("Transaction %d begin", i))
	r.runOnce(ctx, res)
	return res
}

// runOnce fills res with the submit and verify outcome of one iteration.
func (r *Runner) runOnce(ctx context.Context, res *Result) {
	outcome, err := r.submitter.Submit(ctx, r.cfg.Recipient, r.cfg.ValueWei)
	if err != nil {
		var submitErr *wallet.SubmitError
		if errors.As(err, &submitErr) {
			res.TxHash = submitErr.TxHash
		}
		res.Stage = StageSubmit
		res.Err = err
		return
	}
	res.Outcome = outcome
	res.TxHash = outcome.TxHash

	if !outcome.Succeeded() {
		r.logger.Sugar().Warnw("Transaction reverted, verifying anyway", "tx", outcome.TxHash, "block", outcome.BlockNumber)
	}

	ok, err := r.verifier.Verify(ctx, r.submitter.Address(), outcome.TxHash)
	if err != nil {
		res.Stage = StageVerify
		res.Err = err
		return
	}
	if !ok {
		res.Stage = StageRejected
		res.Err = ErrNotVerified
		return
	}
	res.Verified = true
}

// delay is uniform in [SleepMin, SleepMax].
func (r *Runner) delay() time.Duration {
	span := r.cfg.SleepMax - r.cfg.SleepMin
	if span <= 0 {
		return r.cfg.SleepMin
	}
	return r.cfg.SleepMin + time.Duration(r.rnd.Int64N(int64(span)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
