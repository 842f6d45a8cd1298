package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/review-orchestrator/internal/agent"
	"github.com/joseph-ayodele/review-orchestrator/internal/async"
	"github.com/joseph-ayodele/review-orchestrator/internal/checklist"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/export"
	"github.com/joseph-ayodele/review-orchestrator/internal/llm/openai"
	repo "github.com/joseph-ayodele/review-orchestrator/internal/repository"
	"github.com/joseph-ayodele/review-orchestrator/internal/server"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
	"github.com/joseph-ayodele/review-orchestrator/internal/telemetry"
	"github.com/joseph-ayodele/review-orchestrator/internal/tools"
	"github.com/joseph-ayodele/review-orchestrator/internal/workflow"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		logger.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := repo.InitDatabase(ctx, cfg.Database, false, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Cleanup()

	objects, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	registry, err := tools.LoadRegistry(cfg.Tools.MCPRegistryFile)
	if err != nil {
		logger.Error("failed to load mcp registry", "error", err)
		os.Exit(1)
	}

	gateway := agent.NewGateway(
		agent.NewHTTPRuntime(cfg.Agent.RuntimeURL, &http.Client{}, nil),
		agent.WithTimeout(cfg.Agent.Timeout),
		agent.WithRateLimit(cfg.Agent.RateLimit, cfg.Agent.RateBurst),
		agent.WithLogger(logger),
	)
	executor := workflow.NewExecutor(db.Store, objects, gateway, workflow.Config{
		FanOutLimit:          cfg.Workflow.FanOutLimit,
		RetryMaxAttempts:     cfg.Workflow.RetryMaxAttempts,
		RetryInitialInterval: cfg.Workflow.RetryInitialInterval,
		RetryMaxInterval:     cfg.Workflow.RetryMaxInterval,
		DefaultMCPServers:    registry.Servers,
	}, logger)

	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open queue", "backend", cfg.Queue.Backend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = transport.Close() }()

	controller := async.NewController(transport, executor, db.Store, async.ControllerConfig{
		Concurrency:     cfg.Queue.JobConcurrency,
		Visibility:      cfg.Queue.VisibilityTimeout,
		RetryVisibility: cfg.Queue.RetryVisibility,
		MaxReceives:     cfg.Queue.MaxReceives,
		MaxWait:         cfg.Queue.MaxWait,
	}, logger)

	var extractor server.ChecklistExtractor
	if cfg.LLM.APIKey != "" {
		generator := openai.NewClient(openai.Config{
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, nil, logger)
		extractor = checklist.NewExtractor(generator, objects, db.Store, checklist.WithLogger(logger))
		logger.Info("checklist extraction enabled", "model", cfg.LLM.Model)
	} else {
		extractor = disabledExtractor{}
		logger.Warn("OPENAI_API_KEY not set, checklist extraction disabled")
	}

	review := server.NewReviewServer(db.Store, controller, extractor, export.NewService(db.Store, logger), objects, logger)
	grpcServer, health := server.NewGRPCServer(review, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("review-orchestrator listening", "addr", addr, "queue", cfg.Queue.Backend)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return controller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		health.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("review-orchestrator stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("review-orchestrator stopped")
}

func newTransport(ctx context.Context, cfg *common.Config, logger *slog.Logger) (async.Transport, error) {
	if cfg.Queue.Backend != "redis" {
		logger.Warn("using in-memory queue, pending reviews are lost on restart")
		return async.NewMemoryTransport(cfg.Queue.DedupWindow), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return async.NewRedisTransport(client, cfg.Queue.Name, cfg.Queue.DedupWindow, cfg.Queue.PollInterval), nil
}

type disabledExtractor struct{}

func (disabledExtractor) Extract(context.Context, checklist.ExtractRequest) (checklist.ExtractResult, error) {
	return checklist.ExtractResult{}, common.NewAppError("EXTRACTION_DISABLED", "checklist extraction is not configured", common.ErrPrecondition)
}
