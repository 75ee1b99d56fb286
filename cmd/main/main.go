package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-pulse/src/analysis"
	"market-pulse/src/bus"
	"market-pulse/src/config"
	"market-pulse/src/data_source/synthetic"
	"market-pulse/src/data_source/yahoo"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/network"
	"market-pulse/src/scheduler"
	"market-pulse/src/server"
	"market-pulse/src/storage"
	"market-pulse/src/utils"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.MConfig, cfg.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)
	clk := clock.New()

	// 2. Cache (best effort, falls back to no cache)
	initCtx, initCancel := context.WithTimeout(ctx, 15*time.Second)
	cache, err := storage.NewCache(initCtx, cfg.MConfig, appLogger.With("storage"))
	initCancel()
	if err != nil {
		appLogger.Critical("Failed to init cache: %v", err)
	}
	writer := storage.NewAsyncWriter(cache, cfg.Storage.WriteBuffer, appLogger.With("writer"), m)
	writer.Start()

	// 3. Upstream
	var networkManager interfaces.INetworkManager = network.NewAsyncNetworkManager(cfg.MConfig, appLogger.With("network"), m)
	var provider interfaces.IQuoteProvider = yahoo.NewYahooFinanceSource(cfg.MConfig, networkManager, appLogger.With("yahoo"), m)

	// 4. Delivery
	connections := server.NewRegistry(clk, m)
	broadcaster := server.NewBroadcaster(connections, appLogger.With("broadcast"), m, clk)

	if cfg.Bus.Enabled {
		mirror, err := bus.NewNATSMirror(cfg.Bus.URL, cfg.Bus.SubjectPrefix, cfg.Name, appLogger.With("bus"))
		if err != nil {
			appLogger.Warning("Frame mirror disabled: %v", err)
		} else {
			broadcaster.AddMirror(mirror)
			defer mirror.Close()
		}
	}

	// 5. Scheduler
	deps := scheduler.Deps{
		Provider:  provider,
		Publisher: broadcaster,
		Cache:     cache,
		Writer:    writer,
		Analyzer:  analysis.NewAnalysisFacade(appLogger.With("analysis")),
		Synthetic: synthetic.NewGenerator(),
	}
	if cfg.Scheduler.RespectMarketHours {
		deps.Hours = utils.NewMarketHours(cfg.Scheduler.Roster, appLogger.With("calendar"))
	}
	sched := scheduler.NewScheduler(cfg, deps, appLogger.With("scheduler"), m, clk)

	// 6. Server
	srv := server.NewServer(cfg, appLogger.With("server"), connections, broadcaster, sched, cache.Name(), m, registry)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		appLogger.Critical("Failed to start scheduler: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown: %v", err)
	}

	writer.Stop()
	if err := cache.Close(); err != nil {
		appLogger.Error("Cache close: %v", err)
	}
	appLogger.Info("Bye")
}
