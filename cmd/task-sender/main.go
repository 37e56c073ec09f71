package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metis-devops/task-sender/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "task-sender",
	Short: "Send minimal-value transactions and report each one to the task verifier",
	Long: `Sends a fixed number of transactions from the account behind PRIVATE_KEY through RPC_URL,
waits for every receipt and reports the transaction hash to the task verification endpoint.
Recipient, amount and count are asked interactively unless given as flags.`,
	SilenceUsage: true,
	RunE:         run,
}

var (
	configFile string
	envFile    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded when present")

	config.RegisterFlags(rootCmd.Flags())
	config.BindFlags(viper.GetViper(), rootCmd.Flags())
}

func main() {
	basectx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(basectx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
