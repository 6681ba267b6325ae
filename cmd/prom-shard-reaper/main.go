package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/couchbaselabs/prom-shard-reaper/internal/httpserver"
	"github.com/couchbaselabs/prom-shard-reaper/internal/orchestrator"
	"github.com/couchbaselabs/prom-shard-reaper/internal/selfmetrics"
	"github.com/couchbaselabs/prom-shard-reaper/internal/state"
	"github.com/couchbaselabs/prom-shard-reaper/pkg/config"
)

const shutdownGrace = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate-config" {
		fmt.Print(config.Sample())
		os.Exit(0)
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n       %s generate-config\n", os.Args[0], os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Read(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel.ToZap())
	logCfg.Encoding = "console"
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Debug("loaded config", zap.Object("cfg", cfg))

	publisher := state.NewPublisher()
	fetcher := orchestrator.NewHTTPFetcher()
	orch := orchestrator.New(cfg, fetcher, publisher, logger.Named("orchestrator").Sugar())

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(selfmetrics.New(publisher, cfg.NumShards))

	srv := httpserver.New(publisher, logger.Named("httpserver").Sugar(), func() int64 {
		return orch.ConsecutiveFailures.Load()
	})
	mux := srv.Mux(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var orchDone sync.WaitGroup
	orchDone.Add(1)
	go func() {
		defer orchDone.Done()
		orch.Run(ctx)
	}()

	httpSrv := &http.Server{Addr: cfg.Listen, Handler: mux}
	go func() {
		logger.Sugar().Infow("HTTP server starting", "address", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalw("HTTP server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorw("error during HTTP shutdown", "err", err)
	}

	// Make sure the orchestrator's in-flight scrape has observed
	// cancellation and returned before the process exits (spec §4.6).
	orchDone.Wait()
}
