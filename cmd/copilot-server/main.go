// cmd/copilot-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"po-copilot/internal/backend"
	"po-copilot/internal/common/config"
	"po-copilot/internal/common/database"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/common/observability"
	"po-copilot/internal/genai"
	"po-copilot/internal/notify"
	"po-copilot/internal/pipeline/corroborate"
	"po-copilot/internal/pipeline/decompose"
	"po-copilot/internal/pipeline/execute"
	"po-copilot/internal/pipeline/guard"
	"po-copilot/internal/pipeline/orchestrator"
	"po-copilot/internal/pipeline/parse"
	"po-copilot/internal/pipeline/plan"
	"po-copilot/internal/pipeline/resolve"
	"po-copilot/internal/pipeline/validate"
	"po-copilot/internal/server"
	"po-copilot/internal/store"
	"po-copilot/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting copilot server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()
	if cfg.Observability.JaegerEndpoint != "" {
		if err := obs.EnableTracing(cfg.App.Name, cfg.Observability.JaegerEndpoint); err != nil {
			zapLog.Fatal("tracing setup failed", zap.Error(err))
		}
		zapLog.Info("Tracing enabled", zap.String("collector", cfg.Observability.JaegerEndpoint))
	}

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if err := esClient.EnsureAuditIndex(ctx, cfg.Database.Elasticsearch.AuditIndex); err != nil {
		zapLog.Fatal("audit index setup failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Intent registry ---
	reg := registry.Builtin()
	if cfg.Registry.Path != "" {
		reg, err = registry.Load(cfg.Registry.Path)
		if err != nil {
			zapLog.Fatal("intent registry load failed", zap.Error(err), zap.String("path", cfg.Registry.Path))
		}
	}

	// --- External clients ---
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey,
		time.Duration(cfg.Backend.Timeout)*time.Millisecond)
	genaiClient := genai.NewClient(&genai.Config{
		BaseURL:    cfg.APIs.GenAI.BaseURL,
		APIKey:     cfg.APIs.GenAI.APIKey,
		Timeout:    time.Duration(cfg.APIs.GenAI.Timeout) * time.Millisecond,
		MaxRetries: cfg.APIs.GenAI.MaxRetries,
	}, log)

	// --- Stores ---
	conversations := store.NewConversationStore(redis.Client, 0,
		cfg.Pipeline.MaxActiveEntities, log)
	plans := store.NewPlanStore(pg.DB, log)
	if err := plans.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("plan schema setup failed", zap.Error(err))
	}
	audit := store.NewAuditLog(esClient.Client, cfg.Database.Elasticsearch.AuditIndex, log)

	// --- Notifications ---
	var notifier orchestrator.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		n, err := notify.NewNotifier(ctx, cfg.Notifications, log)
		if err != nil {
			zapLog.Fatal("notifier setup failed", zap.Error(err))
		}
		notifier = n
	}

	// --- Pipeline ---
	parser := parse.NewParser(genaiClient, reg, decompose.NewDecomposer(log), log)
	resolver := resolve.NewResolver(backendClient, reg, redis.Client,
		time.Duration(cfg.Pipeline.SnapshotCacheTTL)*time.Second, log)

	orch := orchestrator.New(orchestrator.Params{
		Parser:        parser,
		Validator:     validate.NewValidator(reg),
		Resolver:      resolver,
		Corroborator:  corroborate.NewCorroborator(log),
		Guard:         guard.NewEngine(reg, log),
		Builder:       plan.NewBuilder(reg, log),
		Executor:      execute.NewExecutor(backendClient, audit, log),
		Conversations: conversations,
		Plans:         plans,
		Audit:         audit,
		Health:        backendClient,
		Notifier:      notifier,
		Sink:          orchestrator.LogSink{Logger: log},
		Observer:      obs,
		Threshold:     cfg.Pipeline.ConfidenceThreshold,
		Logger:        log,
	})

	srv := server.New(orch, conversations, audit, log)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(runCtx, cfg.Server.Address,
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second); err != nil {
		zapLog.Fatal("HTTP server failed", zap.Error(err))
	}

	zapLog.Info("Copilot server stopped gracefully")
}
