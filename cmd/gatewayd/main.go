// Copyright 2025 ChaosChain
//
// gatewayd is the transaction orchestration gateway's entrypoint: it
// wires every internal/ component together and serves the HTTP surface.
// Flag parsing, signal handling, and graceful shutdown follow a plain
// net/http entrypoint shape, no framework.

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaoschain/gateway/internal/api"
	"github.com/chaoschain/gateway/internal/audit"
	"github.com/chaoschain/gateway/internal/chain"
	"github.com/chaoschain/gateway/internal/config"
	"github.com/chaoschain/gateway/internal/evidence"
	"github.com/chaoschain/gateway/internal/guard"
	"github.com/chaoschain/gateway/internal/logging"
	"github.com/chaoschain/gateway/internal/metrics"
	"github.com/chaoschain/gateway/internal/nonce"
	"github.com/chaoschain/gateway/internal/reconcile"
	"github.com/chaoschain/gateway/internal/signer"
	"github.com/chaoschain/gateway/internal/store"
	"github.com/chaoschain/gateway/internal/workflow"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
)

func main() {
	var (
		overlayPath = flag.String("config", "", "path to an optional YAML config overlay")
		signers     = flag.String("signers", "", "comma-separated list of registered signer addresses")
		workers     = flag.Int("workers", 8, "number of workflow worker goroutines")
		showHelp    = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *overlayPath != "" {
		overlay, err := config.LoadOverlay(*overlayPath)
		if err != nil {
			log.Fatalf("load config overlay: %v", err)
		}
		overlay.Apply(cfg)
	}

	logger := logging.NewDevelopment()
	if cfg.LogLevel == "silent" {
		logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeClient, err := store.Open(ctx, cfg.StoreURL, store.WithMaxOpenConns(20), store.WithConnMaxLifetime(5*time.Minute))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer storeClient.Close()
	repo := store.NewRepository(storeClient)

	chainAdapter, err := chain.Dial(ctx, cfg.ChainRPCURL, chain.WithConfirmations(1), chain.WithPollInterval(3*time.Second))
	if err != nil {
		log.Fatalf("dial chain rpc: %v", err)
	}

	archiver := newArchiver(ctx, cfg, logger)
	trail := newAuditTrail(ctx, cfg, logger)
	defer trail.Close()

	nonceSerializer := nonce.NewSerializer()
	reconciler := reconcile.New(chainAdapter, cfg.ReconcileStaleness, logger)
	signerRegistry := newSignerRegistry(*signers)
	sink := metrics.NewPrometheus()

	engine := workflow.New(repo, chainAdapter, nonceSerializer, archiver, reconciler, signerRegistry, sink, trail, logger, cfg)

	apiServer := api.NewServer(engine)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: apiServer}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: sink.Handler()}

	go engine.Start(ctx, *workers)

	go func() {
		logger.Info("gateway api listening", logging.F("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	go func() {
		logger.Info("gateway metrics listening", logging.F("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", logging.F("error", err.Error()))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", logging.F("error", err.Error()))
	}
}

func newArchiver(ctx context.Context, cfg *config.Config, logger *logging.Logger) *evidence.Archiver {
	if cfg.StorageEndpoint == "" {
		logger.Warn("STORAGE_ENDPOINT not set, evidence archival disabled")
		return evidence.NewArchiver(nil, "", evidence.WithDisabled())
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		logger.Error("gcs client init failed, evidence archival disabled", logging.F("error", err.Error()))
		return evidence.NewArchiver(nil, "", evidence.WithDisabled())
	}
	return evidence.NewArchiver(client, cfg.StorageBucket)
}

// newAuditTrail builds the optional Firestore audit trail. Disabled by
// default (FIRESTORE_AUDIT_ENABLED=false) since the trail is a
// supplemental mirror, not the system of record.
func newAuditTrail(ctx context.Context, cfg *config.Config, logger *logging.Logger) *audit.Trail {
	if !cfg.AuditEnabled {
		return audit.New(nil, "", logger, audit.WithDisabled())
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProject})
	if err != nil {
		logger.Error("firebase app init failed, audit trail disabled", logging.F("error", err.Error()))
		return audit.New(nil, "", logger, audit.WithDisabled())
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		logger.Error("firestore client init failed, audit trail disabled", logging.F("error", err.Error()))
		return audit.New(nil, "", logger, audit.WithDisabled())
	}
	return audit.New(client, "workflow_audit_events", logger)
}

func newSignerRegistry(csv string) *signer.Registry {
	reg := signer.NewRegistry()
	if csv == "" {
		return reg
	}
	for _, raw := range splitAndTrim(csv) {
		addr, err := guard.NewSignerAddress(raw)
		if err != nil {
			log.Printf("skipping invalid signer address %q: %v", raw, err)
			continue
		}
		reg.Register(addr)
	}
	return reg
}

func splitAndTrim(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, trimSpace(csv[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
