package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantave/quantave/internal/broker"
	"github.com/quantave/quantave/internal/cache"
	"github.com/quantave/quantave/internal/config"
	"github.com/quantave/quantave/internal/control"
	"github.com/quantave/quantave/internal/engine"
	"github.com/quantave/quantave/internal/live"
	"github.com/quantave/quantave/internal/store"
	"github.com/quantave/quantave/internal/transport"
)

var (
	// Global instances
	cfg         *config.Config
	client      *broker.Client
	dataCache   *cache.Cache
	db          *store.Store
	execEngine  *engine.Engine
	liveManager *live.Manager
	cmdHandler  *control.Handler
	logger      *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quantave",
	Short: "Live trading pipeline with streaming data and automated execution",
	Long: `quantave runs trading strategies against live market data. It keeps
a streaming connection open with automatic failover, validates every
signal against risk limits, executes orders with retries, and recovers
failed trades in the background.`,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogger)
}

func initLogger() {
	verbose := false
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" || v == "yes" {
		verbose = true
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
}

// initializeApp sets up all dependencies
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client = broker.NewClient(cfg)
	dataCache = cache.NewCache(cfg.CacheTTL)

	db, err = store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	execEngine = engine.New(cfg, client, db, dataCache, logger)
	liveManager = live.NewManager(cfg, db, execEngine, client, dataCache,
		func() transport.Transport { return transport.NewAlpacaStream(cfg, logger) },
		func() transport.Transport { return transport.NewRedisStream(cfg, logger) },
		logger)
	cmdHandler = control.NewHandler(liveManager, db, logger)

	return nil
}
