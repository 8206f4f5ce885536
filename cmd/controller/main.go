package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wso2/gateway-core/internal/tracing"
	"github.com/wso2/gateway-core/pkg/api"
	"github.com/wso2/gateway-core/pkg/config"
	"github.com/wso2/gateway-core/pkg/logger"
	"github.com/wso2/gateway-core/pkg/snapshot"
	"github.com/wso2/gateway-core/pkg/storage"
)

var (
	version = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CP_CONFIG"), "path to CP config TOML file")
	flag.Parse()

	cfg, err := config.LoadCP(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})
	log.Info("starting gateway controller", slog.String("version", version), slog.String("bind", cfg.Bind))

	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{ServiceName: "gateway-controller"})
	if err != nil {
		log.Error("failed to init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	store, err := openStore(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	builder := snapshot.NewBuilder(store)
	channel := snapshot.NewChannel(builder, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := channel.Publish(ctx); err != nil {
		log.Warn("initial snapshot build failed, starting with no published snapshot", slog.Any("error", err))
	}
	cancel()

	xdsServer := snapshot.NewServer(channel, cfg.GRPCBind, log)
	go func() {
		if err := xdsServer.Serve(); err != nil {
			log.Error("xds server stopped", slog.Any("error", err))
		}
	}()

	adminServer := api.NewServer(store, channel, log)
	httpServer := &http.Server{Addr: cfg.Bind, Handler: adminServer.Handler()}
	go func() {
		log.Info("admin api listening", slog.String("bind", cfg.Bind))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin api stopped", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down gateway controller")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	xdsServer.Stop()
}

// openStore picks SQLiteStore for a "file:" database_url and MemoryStore
// otherwise, matching the teacher's storage-type switch but narrowed to the
// two backends this gateway ships.
func openStore(databaseURL string, log *slog.Logger) (storage.Store, error) {
	const filePrefix = "file:"
	if len(databaseURL) >= len(filePrefix) && databaseURL[:len(filePrefix)] == filePrefix {
		return storage.NewSQLiteStore(databaseURL[len(filePrefix):], log)
	}
	return storage.NewMemoryStore(), nil
}
