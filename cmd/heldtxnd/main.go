// Command heldtxnd is the held-transaction daemon's entry point: it loads
// configuration, opens the database pool, wires the Manager/reaper and
// the transactions/records HTTP handlers, and serves until signalled to
// stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/api/records"
	"github.com/sushant-115/heldtxn/api/transactions"
	"github.com/sushant-115/heldtxn/core/dbfacade"
	"github.com/sushant-115/heldtxn/core/heldtx"
	"github.com/sushant-115/heldtxn/internal/config"
	"github.com/sushant-115/heldtxn/pkg/logger"
	"github.com/sushant-115/heldtxn/pkg/telemetry"
)

// applicationPoolSize is the pool headroom the embedding application's own,
// non-held-transaction request path needs; the pool is sized to this plus
// max_concurrent so held transactions never starve ordinary queries.
const applicationPoolSize = 10

func main() {
	configPath := flag.String("config", "heldtxnd.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg := config.New()
	if err := cfg.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zlog, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		os.Exit(1)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlog.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			zlog.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewHeldTxnMetrics(tel.Meter)
	if err != nil {
		zlog.Fatal("failed to register held-transaction metrics", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to parse database_url", zap.Error(err))
	}
	poolCfg.MaxConns = int32(applicationPoolSize + cfg.MaxConcurrent)

	db, err := dbfacade.Open(ctx, poolCfg)
	if err != nil {
		zlog.Fatal("failed to open database pool", zap.Error(err))
	}
	defer db.Close()

	manager := heldtx.NewManager(cfg.HeldTxConfig(), db, heldtx.SystemClock{}, zlog, metrics, tel.Tracer)
	manager.StartReaper()
	defer manager.Shutdown(context.Background())

	dispatcher := transactions.NewDispatcher(manager)
	transactionHandlers := transactions.NewHandlers(manager, zlog)
	recordHandlers := records.NewHandlers(records.NewStore(db.Pool()), dispatcher, zlog)

	mux := http.NewServeMux()
	mux.Handle("/transactions", transactionHandlers)
	mux.Handle("/transactions/", transactionHandlers)
	mux.Handle("/records", recordHandlers)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		zlog.Info("held-transaction daemon listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http server shutdown did not complete cleanly", zap.Error(err))
	}
}
