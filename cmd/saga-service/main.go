package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shortlyhq/shortly-sagas/internal/bus/natsbus"
	"github.com/shortlyhq/shortly-sagas/internal/composite"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/deletion"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding/memstore"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding/sqlitestore"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/config"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/telemetry"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

const serviceName = "saga-service"

func main() {
	logger := telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.SagaService
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

	var store onboarding.Store
	if cfg.SQLitePath != "" {
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open saga store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
		logger.Info("using sqlite saga store", "path", cfg.SQLitePath)
	} else {
		store = memstore.New()
		logger.Warn("using in-memory saga store, in-flight onboardings will not survive a restart")
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

	engine := onboarding.NewEngine(store, conn, logger)
	if err := engine.Register(conn); err != nil {
		logger.Error("failed to register onboarding engine", "error", err)
		os.Exit(1)
	}

	caller, err := rpc.NewClient(conn, serviceName, logger)
	if err != nil {
		logger.Error("failed to create rpc client", "error", err)
		os.Exit(1)
	}

	aggregator := composite.NewAggregator(caller, logger)
	workflow := deletion.NewWorkflow(caller, logger)

	responder := rpc.NewResponder(conn, logger)
	handlers := map[string]rpc.HandlerFunc{
		contracts.KindOnboardingStatusRequest:  engine.HandleStatus,
		contracts.KindVerifyEmailRequest:       engine.HandleVerify,
		contracts.KindGetUserWithURLsRequest:   aggregator.HandleGet,
		contracts.KindListUsersWithURLsRequest: aggregator.HandleList,
		contracts.KindDeleteAccountRequest:     workflow.Handle,
	}
	for topic, fn := range handlers {
		if err := conn.Subscribe(topic, responder.Handle(fn)); err != nil {
			logger.Error("failed to subscribe", "topic", topic, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("saga service running", "nats_url", cfg.NATSURL)
	<-ctx.Done()
	logger.Info("saga service shutting down")
}
