package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/metis-devops/task-sender/internal/account"
	"github.com/metis-devops/task-sender/internal/config"
	"github.com/metis-devops/task-sender/internal/input"
	"github.com/metis-devops/task-sender/internal/logger"
	"github.com/metis-devops/task-sender/internal/metrics"
	"github.com/metis-devops/task-sender/internal/prompt"
	"github.com/metis-devops/task-sender/internal/runner"
	"github.com/metis-devops/task-sender/internal/status"
	"github.com/metis-devops/task-sender/internal/telemetry"
	"github.com/metis-devops/task-sender/internal/verifier"
	"github.com/metis-devops/task-sender/internal/wallet"
)

const serviceName = "task-sender"

func run(cmd *cobra.Command, args []string) error {
	basectx := cmd.Context()

	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	v := viper.GetViper()
	if err := config.ReadFile(v, configFile); err != nil {
		return err
	}
	cfg := config.NewConfig(v)

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, JSON: cfg.JSONLogs})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Sync() //nolint:errcheck

	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	sess, err := setup(basectx, cfg, prompt.NewPrompter(rnd), l)
	if err != nil {
		return err
	}
	defer sess.Close()

	vc, err := verifier.NewClient(&verifier.Config{
		URL:       cfg.VerifyURL,
		TaskID:    cfg.TaskID,
		Timeout:   cfg.VerifyTimeout,
		Headers:   cfg.VerifyHeaders,
		AuthToken: cfg.VerifyAuthToken,
	}, l)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	tracker := status.NewTracker(cfg.StaleAfter)
	if err := startStatusServer(basectx, cfg, tracker, m, l); err != nil {
		return err
	}

	r, err := runner.NewRunner(&runner.RunConfig{
		Recipient: sess.params.Recipient,
		ValueWei:  sess.params.ValueWei,
		Count:     sess.params.Count,
		SleepMin:  cfg.SleepMin,
		SleepMax:  cfg.SleepMax,
	}, sess.wallet, vc, l,
		runner.WithRecorder(m),
		runner.WithRecorder(tracker),
		runner.WithRand(rnd),
	)
	if err != nil {
		return err
	}

	report := r.Run(basectx)
	for _, res := range report.Results {
		if !res.Succeeded() {
			l.Sugar().Infow("Failed iteration", "iteration", res.Index, "stage", res.Stage, "tx", res.TxHash, "error", res.Err)
		}
	}
	return nil
}

// session holds what a run needs before the first transaction.
type session struct {
	account  *account.Account
	params   *prompt.Params
	client   *ethclient.Client
	wallet   *wallet.Wallet
	shutdown telemetry.ShutdownFunc
	logger   *zap.Logger
}

func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.shutdown != nil {
		if err := s.shutdown(context.Background()); err != nil {
			s.logger.Sugar().Warnw("Failed to flush traces", "error", err)
		}
	}
}

// setup validates the configuration and collects the run parameters before
// anything touches the network, so bad input never waits on an rpc endpoint.
func setup(ctx context.Context, cfg *config.Config, prompter *prompt.Prompter, l *zap.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		l.Sugar().Errorw("Invalid configuration", "error", err)
		return nil, err
	}

	acc, err := account.Resolve(cfg.PrivateKey)
	if err != nil {
		l.Sugar().Errorw("Invalid private key", "error", err)
		return nil, err
	}

	params, err := prompter.Collect(acc.Address(), prompt.Answers{
		To:     cfg.To,
		Amount: cfg.Amount,
		Count:  cfg.Count,
	})
	if err != nil {
		l.Sugar().Errorw("Invalid input", "error", err)
		return nil, err
	}
	l.Sugar().Infow("Run parameters",
		"to", params.Recipient,
		"amount", input.FromWei(params.ValueWei),
		"wei", params.ValueWei,
		"count", params.Count,
	)

	s := &session{account: acc, params: params, logger: l}

	shutdown, err := telemetry.InitTracer(ctx, serviceName, cfg.OtelEndpoint)
	if err != nil {
		l.Sugar().Warnw("Tracing disabled", "error", err)
	}
	s.shutdown = shutdown

	client, chainId, err := wallet.Dial(ctx, cfg.RPCURL, l)
	if err != nil {
		l.Sugar().Errorw("Failed to connect", "error", err)
		s.Close()
		return nil, err
	}
	s.client = client
	l.Sugar().Infow("chain info", "address", acc.Address(), "chainId", chainId)

	s.wallet, err = wallet.NewWallet(client, acc, &wallet.Config{
		CallTimeout:    cfg.CallTimeout,
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.PollInterval,
	}, l)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func startStatusServer(ctx context.Context, cfg *config.Config, tracker *status.Tracker, m *metrics.Metrics, l *zap.Logger) error {
	if cfg.StatusAddr == "" {
		return nil
	}
	server := status.NewServer(cfg.StatusAddr, tracker, m.Registry(), l)
	if err := server.Start(ctx); err != nil {
		l.Sugar().Errorw("Failed to start status server", "error", err)
		return err
	}
	return nil
}
