package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shortlyhq/shortly-sagas/internal/bus/natsbus"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/config"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/telemetry"
	urlservice "github.com/shortlyhq/shortly-sagas/internal/url-service"
)

const serviceName = "url-service"

func main() {
	logger := telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.Worker
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

	svc := urlservice.NewService(conn, logger)
	if err := svc.Register(conn); err != nil {
		logger.Error("failed to register handlers", "error", err)
		os.Exit(1)
	}

	logger.Info("url service running", "nats_url", cfg.NATSURL)
	<-ctx.Done()
	logger.Info("url service shutting down")
}
