package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shortlyhq/shortly-sagas/internal/bus/natsbus"
	"github.com/shortlyhq/shortly-sagas/internal/gateway/httpx"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/cache"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/config"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/telemetry"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

const serviceName = "gateway"

func main() {
	logger := telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.Gateway
	if err := config.Load(&cfg); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracer(ctx, serviceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialise tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	conn, err := natsbus.Connect(natsbus.Config{
		URL:    cfg.NATSURL,
		Name:   serviceName,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	caller, err := rpc.NewClient(conn, serviceName, logger)
	if err != nil {
		logger.Error("failed to create rpc client", "error", err)
		os.Exit(1)
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, serviceName)
	handler := httpx.NewHandler(conn, caller, redisCache, logger)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpx.NewRouter(handler),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}()

	logger.Info("gateway running", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
