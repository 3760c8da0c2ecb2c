package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/api"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/config"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/journal"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/order"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/replicate"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/shutdown"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/stream"
	"github.com/Devansh-ops/delta-exchange-copy-trade/pkg/delta"
	"github.com/Devansh-ops/delta-exchange-copy-trade/pkg/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogDir)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting copy-trade bot",
		zap.String("version", version),
		zap.String("ws_url", cfg.WebsocketURL),
		zap.Float64("multiplier", cfg.Multiplier),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("order_type", cfg.OrderType),
	)

	var store *journal.Store
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			logger.Fatal("journal dir", zap.Error(err))
		}
		store, err = journal.OpenStore(cfg.JournalPath)
		if err != nil {
			logger.Fatal("journal store", zap.Error(err))
		}
		defer store.Close()
	}
	jr := journal.New(logger, store, cfg.VerboseDecisions)

	ledger := replicate.NewLedger(cfg.MaxTopupPerSymbol, cfg.SymbolCaps)
	queue := order.NewQueue(cfg.QueueSize)
	client := delta.NewClient(delta.Config{
		APIBase:          cfg.APIBase,
		APIKey:           cfg.APIKey,
		APISecret:        cfg.APISecret,
		UserAgent:        cfg.UserAgent,
		OrderType:        cfg.OrderType,
		TimeInForce:      cfg.TimeInForce,
		SelfTagPrefix:    cfg.SelfTagPrefix,
		DryRun:           cfg.DryRun,
		LimitSlippageBps: cfg.LimitSlippageBps,
		LimitIOCFallback: cfg.LimitIOCFallback,
		ConnTimeout:      cfg.HTTPConnTimeout,
		ReadTimeout:      cfg.HTTPTimeout,
		Retries:          cfg.HTTPRetries,
		RatePerSec:       cfg.OrderRatePerSec,
		RateBurst:        cfg.OrderRateBurst,
	}, logger)

	coord := shutdown.New(logger)
	coord.OnStop(queue.InjectSentinel)

	worker := order.NewWorker(queue, ledger, client, jr, logger, coord.Done())
	go worker.Run()

	engine := replicate.NewEngine(replicate.EngineParams{
		Multiplier:    cfg.Multiplier,
		MaxPerTrade:   cfg.MaxTopupPerTrade,
		AllowSymbols:  cfg.AllowSymbols,
		SelfTagPrefix: cfg.SelfTagPrefix,
		FillSeen:      replicate.NewDedup(cfg.FillIDTTL, cfg.FillIDMax),
		TradeSeen:     replicate.NewDedup(cfg.TradeIDTTL, cfg.TradeIDMax),
		Ledger:        ledger,
		Queue:         queue,
		Journal:       jr,
		Log:           logger,
	})

	router := stream.NewRouter(engine, logger)
	manager := stream.NewManager(stream.ManagerConfig{
		Session: stream.SessionConfig{
			URL:          cfg.WebsocketURL,
			APIKey:       cfg.APIKey,
			APISecret:    cfg.APISecret,
			Insecure:     cfg.WSInsecure,
			DialTimeout:  cfg.HTTPConnTimeout + cfg.HTTPTimeout,
			PingInterval: cfg.PingInterval,
			PingTimeout:  cfg.PingTimeout,
		},
		Channels:      []string{"orders", "positions", "user_trades"},
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		BackoffJitter: cfg.BackoffJitter,
	}, router, logger, coord.Done())

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		manager.Run()
	}()

	apiServer := api.NewServer(manager, ledger, queue, store, api.Meta{
		Multiplier: cfg.Multiplier,
		DryRun:     cfg.DryRun,
		OrderType:  cfg.OrderType,
		Venue:      cfg.APIBase,
		Version:    version,
	}, logger)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: apiServer.Router}
	go func() {
		logger.Info("status api listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status api failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("signal received", zap.String("signal", s.String()))
	coord.Shutdown(s.String())

	// Give the worker a bounded window to finish the job in flight.
	select {
	case <-worker.Done():
		logger.Info("worker drained")
	case <-time.After(cfg.DrainWait):
		logger.Warn("worker drain timed out", zap.Duration("waited", cfg.DrainWait))
	}

	select {
	case <-feedDone:
	case <-time.After(2 * time.Second):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	logger.Info("stopped")
}
