package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"s3drive/internal/config"
	"s3drive/internal/state"
	"s3drive/internal/storage"
	"s3drive/internal/web"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	var configPath string
	defaultConfigPath, err := state.ConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "state path error: %v\n", err)
		os.Exit(1)
	}

	var addr string
	var allowRemote bool
	flag.StringVar(&configPath, "config", defaultConfigPath, "path to config file")
	flag.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	flag.BoolVar(&allowRemote, "allow-remote", false, "permit non-loopback listen addresses")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, addr, allowRemote)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server stopped")
		stop()
		os.Exit(1)
	}
	logger.Info("server exited")
}

func applyFlags(cfg *config.Config, addr string, allowRemote bool) {
	if strings.TrimSpace(addr) != "" {
		cfg.Server.Addr = strings.TrimSpace(addr)
	}
	if allowRemote {
		cfg.Server.AllowRemote = true
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	addr, err := web.ValidateListenAddress(cfg.Server.Addr, cfg.Server.AllowRemote)
	if err != nil {
		return err
	}
	cfg.Server.Addr = addr
	if cfg.Server.MetricsAddr != "" {
		metricsAddr, err := web.ValidateListenAddress(cfg.Server.MetricsAddr, cfg.Server.AllowRemote)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		cfg.Server.MetricsAddr = metricsAddr
	}
	if cfg.Server.AllowRemote && !cfg.AuthEnabled() {
		logger.Warn("listening on a remote address without basic auth; anyone who can reach it can read and modify the bucket")
	}

	localDir, err := state.LocalBucketDir()
	if err != nil {
		return err
	}
	store, err := storage.NewFromConfig(ctx, cfg, localDir)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"addr":    cfg.Server.Addr,
		"backend": cfg.Backend,
		"bucket":  cfg.BucketLabel(),
		"auth":    cfg.AuthEnabled(),
	}).Info("starting s3drive")

	return web.New(cfg, store, logger).Run(ctx)
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
