// Package main is the labelscan command line client. It runs the scan
// pipeline locally and keeps its history in a SQLite file.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/labelscan/internal/history"
	"github.com/kiranshivaraju/labelscan/internal/logging"
)

// localOwner is the history owner for every CLI scan.
const localOwner = "local"

var (
	// Global flags
	verbose      bool
	historyPath  string
	historyLimit int
	timeout      time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "labelscan",
	Short: "Scan product ingredient labels for health risks",
	Long: `labelscan reads the ingredient list from a photo of a product label,
rates each ingredient's health risk and suggests safer alternative products.

Provider settings (AI_PROVIDER, GEMINI_API_KEY, ...) are read from the
environment or a .env file. Use --offline to run without a model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, true)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Install(logger, "labelscan")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", defaultHistoryPath(), "Scan history database file")
	rootCmd.PersistentFlags().IntVar(&historyLimit, "history-limit", history.DefaultLimit, "Number of scans kept in history")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(kbCmd)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "labelscan-history.db"
	}
	return filepath.Join(home, ".labelscan", "history.db")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
