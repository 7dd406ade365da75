package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantave/quantave/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the live trading pipeline",
	Long: `Starts the execution engine and resumes every strategy persisted in
live mode. Runs until interrupted; on shutdown, queued signals are
recorded as failed trades and live strategies keep their mode so they
resume on the next start.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// The engine gets its own lifetime: Shutdown below drains it after
	// the supervisors stop, waiting out any in-flight order poll.
	execEngine.Start(context.Background())
	if err := liveManager.Resume(ctx); err != nil {
		logger.Error("failed to resume live strategies", zap.Error(err))
	}

	running := liveManager.Running()
	fmt.Printf("Pipeline running, %d live strategies: %v\n", len(running), running)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Canceling the root context stops the supervisors without touching
	// their persisted mode, so live strategies resume on the next start.
	cancel()
	execEngine.Shutdown(shutdownCtx)

	if err := db.Close(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}
	logger.Info("pipeline stopped")
	return nil
}
