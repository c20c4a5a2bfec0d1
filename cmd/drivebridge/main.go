// drivebridge is a protocol gateway that exposes a remote id-addressed
// object store as a path-based filesystem over SFTP and FTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/adapter/ftp"
	"github.com/marmos91/drivebridge/pkg/adapter/sftp"
	"github.com/marmos91/drivebridge/pkg/config"
	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setupLogger(&cfg.Logging); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	// Shut down on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("drivebridge failed: %v", err)
		os.Exit(1)
	}
}

// run wires the store, bridge, adapters and metrics, then serves.
func run(ctx context.Context, cfg *config.Config) error {
	storeMetrics := metrics.NewNoopStoreMetrics()
	bridgeMetrics := metrics.NewNoopBridgeMetrics()
	var metricsServer *metrics.Server

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		storeMetrics = metrics.NewStoreMetrics()
		bridgeMetrics = metrics.NewBridgeMetrics()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Listen})
	}

	st, err := config.CreateStore(ctx, &cfg.Store, storeMetrics)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	logger.Info("Using %s store, root folder %q", cfg.Store.Type, cfg.Bridge.RootFolderID)

	b := config.CreateBridge(st, &cfg.Bridge, bridgeMetrics)

	srv := server.New(b, cfg.Server.ShutdownTimeout)
	if metricsServer != nil {
		srv.SetMetricsServer(metricsServer)
	}

	if cfg.Adapters.SFTP.Enabled {
		if err := srv.AddAdapter(sftp.NewSFTPAdapter(cfg.Adapters.SFTP)); err != nil {
			return err
		}
	}
	if cfg.Adapters.FTP.Enabled {
		if err := srv.AddAdapter(ftp.NewFTPAdapter(cfg.Adapters.FTP)); err != nil {
			return err
		}
	}

	return srv.Serve(ctx)
}

// setupLogger applies the logging configuration.
func setupLogger(cfg *config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.Output, err)
		}
		logger.SetOutput(f)
	}
	return nil
}
