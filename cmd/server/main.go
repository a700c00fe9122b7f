// Package main provides the entry point for the wealth simulation server.
// The server exposes the Monte Carlo comparison of two funding strategies
// over an appreciating portfolio: borrowing against it versus selling it
// down, with the identical return sequences feeding both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wealthpath-desktop/wealth-backend/internal/api"
	"github.com/wealthpath-desktop/wealth-backend/internal/config"
	"github.com/wealthpath-desktop/wealth-backend/internal/data"
	"github.com/wealthpath-desktop/wealth-backend/internal/metrics"
	"github.com/wealthpath-desktop/wealth-backend/internal/simulation"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
	"github.com/wealthpath-desktop/wealth-backend/pkg/utils"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Configuration file (YAML)")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	dataDir := flag.String("data", "", "Return-series directory (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	demo := flag.Bool("demo", false, "Run a built-in demo simulation and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "data":
			cfg.Data.Dir = *dataDir
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	if *demo {
		runDemo(logger)
		return
	}

	logger.Info("Starting Wealth Simulation Backend",
		zap.String("addr", cfg.Addr()),
		zap.String("dataDir", cfg.Data.Dir),
		zap.String("logLevel", cfg.Log.Level),
	)

	// Initialize return-series catalog
	catalog, err := data.NewCatalog(logger, cfg.Data.Dir)
	if err != nil {
		logger.Fatal("Failed to initialize catalog", zap.Error(err))
	}

	m := metrics.New()

	// Setup WebSocket hub for real-time progress updates
	wsHub := api.NewHub(logger, cfg.WebSocket)
	go wsHub.Run()

	server := api.NewServer(logger, cfg, catalog, wsHub, m)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("http", fmt.Sprintf("http://%s/api/v1", cfg.Addr())),
		zap.String("ws", fmt.Sprintf("ws://%s/ws", cfg.Addr())),
		zap.String("metrics", fmt.Sprintf("http://%s/metrics", cfg.Addr())),
	)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received")

	// Graceful server shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	wsHub.Stop()

	logger.Info("Server stopped")
}

// runDemo executes one simulation against a built-in two-asset portfolio and
// prints the strategy comparison.
func runDemo(logger *zap.Logger) {
	req := &types.SimulationRequest{
		Config: types.DefaultSimulationConfig(),
		Assets: []types.PortfolioAsset{
			{
				ID:     "us-equities",
				Name:   "US Equities",
				Weight: 0.7,
				Class:  types.AssetClassEquityIndex,
				Returns: []float64{
					0.01, 0.34, 0.20, 0.31, 0.27, 0.20, -0.10, -0.13, -0.23, 0.26,
					0.09, 0.03, 0.14, 0.04, -0.38, 0.23, 0.13, 0.00, 0.13, 0.30,
					0.11, -0.01, 0.10, 0.19, -0.06, 0.29, 0.16, 0.27, -0.19, 0.24,
				},
			},
			{
				ID:     "aggregate-bonds",
				Name:   "Aggregate Bonds",
				Weight: 0.3,
				Class:  types.AssetClassBond,
				Returns: []float64{
					-0.03, 0.18, 0.04, 0.09, 0.09, -0.01, 0.11, 0.08, 0.10, 0.04,
					0.04, 0.02, 0.04, 0.07, 0.05, 0.06, 0.07, 0.08, 0.04, -0.02,
					0.06, 0.01, 0.03, 0.04, 0.00, 0.09, 0.08, -0.02, -0.13, 0.06,
				},
			},
		},
	}
	req.Config.Seed = 1

	engine := simulation.NewEngine(logger)
	engine.OnProgress(func(pct float64, completed, total int) {
		fmt.Printf("\r  %6.2f%%  (%d/%d iterations)", pct, completed, total)
	})

	fmt.Printf("Running %d iterations over %d years...\n",
		req.Config.Iterations, req.Config.HorizonYears)

	out, err := engine.Run(context.Background(), req)
	if err != nil {
		logger.Fatal("Demo simulation failed", zap.Error(err))
	}
	fmt.Println()

	printStrategy := func(name string, r *types.StrategyResult) {
		fmt.Printf("\n%s\n", name)
		fmt.Printf("  Terminal P10/P50/P90:  %s / %s / %s\n",
			utils.FormatMoney(r.TerminalPercentiles.P10, "USD"),
			utils.FormatMoney(r.TerminalPercentiles.P50, "USD"),
			utils.FormatMoney(r.TerminalPercentiles.P90, "USD"))
		fmt.Printf("  Success rate:          %s\n", utils.FormatPercent(r.SuccessRate))
		fmt.Printf("  Median CAGR:           %s\n", utils.FormatPercent(r.MedianCAGR))
		fmt.Printf("  Median taxes paid:     %s\n", utils.FormatMoney(r.MedianTaxes, "USD"))
		if r.MarginCallRate > 0 {
			fmt.Printf("  Margin call rate:      %s\n", utils.FormatPercent(r.MarginCallRate))
		}
		if r.DepletionRate > 0 {
			fmt.Printf("  Depletion rate:        %s\n", utils.FormatPercent(r.DepletionRate))
		}
	}

	printStrategy("Buy-Borrow-Die", &out.Leverage)
	printStrategy("Sell-to-Fund", &out.Sell)

	fmt.Printf("\nEstate comparison (median iteration)\n")
	fmt.Printf("  Net estate, leverage:  %s\n", utils.FormatMoney(out.Comparison.NetEstateLeverage, "USD"))
	fmt.Printf("  Net estate, sell:      %s\n", utils.FormatMoney(out.Comparison.NetEstateSell, "USD"))
	fmt.Printf("  Differential:          %s\n", utils.FormatMoney(out.Comparison.Differential, "USD"))
	fmt.Printf("\nSeed %d, %d paths excluded, finished in %s\n",
		out.Seed, out.ExcludedPaths, utils.FormatDuration(out.Elapsed))
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}

	return logger
}
