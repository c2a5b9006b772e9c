// Command arbitrageur runs the MEXC/BingX spot arbitrage engine.
//
// Architecture:
//
//	main.go                      — entry point: loads config, wires adapters, runs the coordinator
//	internal/exchange/mexc       — C1 adapter: MEXC spot REST + WS (buy venue)
//	internal/exchange/bingx      — C1 adapter: BingX spot REST + WS (sell venue)
//	internal/marketdata          — C2: single-writer-multi-reader order-book service
//	internal/bookmath            — C3: cumulative-curve depth aggregation
//	internal/evaluator           — C4: opportunity evaluator
//	internal/legfsm              — C5: order state machine (submit -> terminal)
//	internal/coordinator         — C6: paired-execution coordinator + Recovery Planner
//	internal/guard               — stuck-position operator-intervention latch
//	internal/store               — execution-record log + stuck markers (survives restarts)
//
// How it makes money:
//
//	It buys BTC on MEXC at the best ask and immediately sells the filled
//	amount on BingX into the best bids, capturing any cross-venue spread
//	that clears the configured minimum profit thresholds.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arbtrader/mexc-bingx-arb/internal/config"
	"github.com/arbtrader/mexc-bingx-arb/internal/coordinator"
	"github.com/arbtrader/mexc-bingx-arb/internal/evaluator"
	"github.com/arbtrader/mexc-bingx-arb/internal/exchange/bingx"
	"github.com/arbtrader/mexc-bingx-arb/internal/exchange/mexc"
	"github.com/arbtrader/mexc-bingx-arb/internal/guard"
	"github.com/arbtrader/mexc-bingx-arb/internal/legfsm"
	"github.com/arbtrader/mexc-bingx-arb/internal/marketdata"
	"github.com/arbtrader/mexc-bingx-arb/internal/store"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arbitrageur",
	Short: "arbitrageur runs the MEXC/BingX BTC-USDC spot arbitrage engine",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/config.yaml", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearStuckCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the arbitrage engine and run until SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine()
	},
}

var clearStuckCmd = &cobra.Command{
	Use:   "clear-stuck",
	Short: "clear a persisted stuck-position marker, acknowledging it was resolved by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		st, err := store.Open(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		return st.ClearStuckMarker(cfg.Pair.Symbol)
	},
}

func runEngine() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return err
	}

	logger := newLogger(cfg.Logging)

	mexcAdapter := mexc.New(mexc.Config{
		APIKey:       cfg.Exchange.MEXCAPIKey,
		APISecret:    cfg.Exchange.MEXCAPISecret,
		WSURLs:       cfg.MEXC.WSEndpoints,
		PingInterval: cfg.MEXC.PingInterval,
		DryRun:       cfg.DryRun,
	}, logger)

	bingxAdapter := bingx.New(bingx.Config{
		APIKey:    cfg.Exchange.BingXAPIKey,
		APISecret: cfg.Exchange.BingXAPISecret,
		WSURLs:    cfg.BingX.WSEndpoints,
		DryRun:    cfg.DryRun,
	}, logger)

	md := marketdata.New(cfg.Pair.Symbol, mexcAdapter, bingxAdapter,
		marketdata.VenueConfig{
			RESTFallbackEnabled: cfg.MEXC.RESTFallback,
			StaleTimeout:        cfg.MEXC.StaleTimeout,
			RESTMaxDeviation:    cfg.MEXC.DecimalRESTMaxDeviationQuote,
			PollInterval:        cfg.MEXC.StaleTimeout / 2,
		},
		marketdata.VenueConfig{},
		cfg.Trading.OrderBookDepth,
		logger,
	)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()

	g := guard.New(logger)
	if marker, err := st.LoadStuckMarker(cfg.Pair.Symbol); err != nil {
		logger.Error("failed to load persisted stuck marker", "error", err)
	} else if marker != nil {
		g.MarkStuck(marker.Symbol, marker.Reason)
		logger.Warn("resuming with a persisted stuck position; trading halted until cleared",
			"symbol", marker.Symbol, "reason", marker.Reason)
	}

	params := coordinator.Params{
		Symbol:                   cfg.Pair.Symbol,
		RecheckInterval:          cfg.Trading.RecheckInterval,
		PreExecPriceTolerancePct: cfg.Trading.Decimal.PreExecPriceTolerancePct,
		EmergencyDiscountPct:     cfg.Trading.Decimal.EmergencyDiscountPct,
		MaxRecoveryRetries:       3,
		Evaluator: evaluator.Params{
			MinProfitQuote:  cfg.Trading.Decimal.MinProfitQuote,
			MinProfitPct:    cfg.Trading.Decimal.MinProfitPct,
			MaxBasePerTrade: cfg.Trading.Decimal.MaxBasePerTrade,
			MaxSlippageBps:  cfg.Trading.Decimal.MaxSlippageBps,
		},
		Leg: legfsm.Params{
			PollInterval: cfg.Trading.OrderPollInterval,
			Timeout:      cfg.Trading.OrderTimeout,
		},
		OrderBookDepth: cfg.Trading.OrderBookDepth,
	}

	coord := coordinator.New(params, mexcAdapter, bingxAdapter, md, st, g, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok\n"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	md.Start(ctx)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}
	logger.Info("arbitrage engine started",
		"symbol", cfg.Pair.Symbol,
		"recheck_interval", cfg.Trading.RecheckInterval,
		"dry_run", cfg.DryRun,
	)

	coord.Run(ctx)

	logger.Info("shutdown signal received, waiting for market-data goroutines to exit")
	md.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	if g.IsStuck() {
		logger.Error("exiting with a stuck position outstanding; operator intervention required")
		return errors.New("stuck position outstanding")
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
