package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tidekv/tidekv/config"
	"github.com/tidekv/tidekv/fs"
	"github.com/tidekv/tidekv/lsm"
	"github.com/tidekv/tidekv/metrics"
	"github.com/tidekv/tidekv/redis"
	"github.com/tidekv/tidekv/server"
)

const shutdownTimeout = 10 * time.Second

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	if cfg.Dir == "" {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		return zcfg.Build()
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}
	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "tidekv.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
		LocalTime:  true,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFile),
		level,
	)
	return zap.New(core, zap.AddCaller()), nil
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logger.Sync()

	fsys, err := fs.DirFs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening data dir %s: %w", cfg.DataDir, err)
	}
	opts := cfg.Engine.Options()
	opts.Logger = logger
	engine, err := lsm.Open(fsys, opts)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	store := redis.NewStore(engine)
	metrics.Register(engine.Stats)

	srv := server.New(store, logger)
	go func() {
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	admin := &http.Server{Addr: cfg.AdminAddr, Handler: server.AdminRouter(engine)}
	go func() {
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()

	logger.Info("tidekv started",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("admin_addr", cfg.AdminAddr),
		zap.String("data_dir", cfg.DataDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := admin.Shutdown(ctx); err != nil {
		logger.Warn("admin shutdown", zap.Error(err))
	}
	if err := srv.Close(); err != nil {
		logger.Warn("server close", zap.Error(err))
	}
	// final flush of everything still buffered in the memtable
	if err := engine.Close(); err != nil {
		logger.Error("engine close", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tidekv-server:", err)
		os.Exit(1)
	}
}
