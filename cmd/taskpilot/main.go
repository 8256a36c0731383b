package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Strob0t/TaskPilot/internal/adapter/agentcli"
	"github.com/Strob0t/TaskPilot/internal/adapter/gitcli"
	"github.com/Strob0t/TaskPilot/internal/adapter/gitlab"
	tphttp "github.com/Strob0t/TaskPilot/internal/adapter/http"
	tpnats "github.com/Strob0t/TaskPilot/internal/adapter/nats"
	"github.com/Strob0t/TaskPilot/internal/adapter/natskv"
	"github.com/Strob0t/TaskPilot/internal/adapter/otel"
	"github.com/Strob0t/TaskPilot/internal/adapter/postgres"
	"github.com/Strob0t/TaskPilot/internal/adapter/ristretto"
	"github.com/Strob0t/TaskPilot/internal/adapter/ws"
	"github.com/Strob0t/TaskPilot/internal/config"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/git"
	"github.com/Strob0t/TaskPilot/internal/logger"
	"github.com/Strob0t/TaskPilot/internal/middleware"
	"github.com/Strob0t/TaskPilot/internal/port/cache"
	"github.com/Strob0t/TaskPilot/internal/port/notifier"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
	"github.com/Strob0t/TaskPilot/internal/secrets"
	"github.com/Strob0t/TaskPilot/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"poll_interval", cfg.Poller.Interval,
		"runners", cfg.Runners.Enabled,
	)

	ctx := context.Background()

	// --- Observability ---
	shutdownOTel, err := otel.Setup(ctx, cfg.Logging.Service, cfg.OTel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	vault, err := secrets.NewVault(secrets.EnvLoader("TASKPILOT_SECRET_"))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres connected, migrations applied")

	queue, err := tpnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	var l1 cache.Cache
	if cfg.Cache.Shared {
		kv, err := queue.KeyValue(ctx, "taskpilot-signals", cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		l1 = natskv.New(kv)
	} else {
		mem, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer mem.Close()
		l1 = mem
	}

	gitcli.SetPool(git.NewPool(cfg.Git.MaxConcurrent))
	for name, cmd := range cfg.Runners.Commands {
		agentcli.Register(worker.RunnerType(name), cmd)
	}

	var notify notifier.Notifier
	if cfg.Poller.NotifyOnSuccess {
		name, webhook := "", ""
		switch {
		case cfg.Slack.WebhookURL != "":
			name, webhook = "slack", cfg.Slack.WebhookURL
		case cfg.Discord.WebhookURL != "":
			name, webhook = "discord", cfg.Discord.WebhookURL
		}
		if name != "" {
			notify, err = notifier.New(name, map[string]string{"webhook_url": webhook})
			if err != nil {
				return fmt.Errorf("notifier %s: %w", name, err)
			}
			slog.Info("notifier enabled", "provider", name, "available", notifier.Available())
		}
	}

	// --- Services ---
	store := postgres.NewStore(pool)
	hub := ws.NewHub()
	signals := service.NewSignalCache(store, l1, cfg.Cache.TTL)

	selector, err := service.NewRunnerSelector(cfg.Runners.Enabled)
	if err != nil {
		return fmt.Errorf("runners: %w", err)
	}

	syncer := service.NewWorkerRepositorySynchronizer(store)
	trigger := service.NewPipelineTrigger(store, vault, syncer,
		func(baseURL, token string) repohost.Host { return gitlab.NewHost(baseURL, token) },
		cfg.Pipeline, cfg.Executor, cfg.Runners.Enabled)
	trigger.SetMetrics(metrics)
	router := service.NewWorkerTypeRouter(store, queue, trigger)

	workerID := cfg.Poller.WorkerID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = host + "-" + uuid.NewString()[:8]
	}

	processor := service.NewIssueProcessor(store, signals, selector, router, vault,
		notify, hub, workerID, cfg.Poller.LockTimeout, cfg.Poller.WorkspaceRoot)
	processor.SetMetrics(metrics)

	// --- Background loops ---
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := service.NewDispatchExecutor(store, vault, queue, hub, cfg.Poller.WorkspaceRoot)
	consumer := service.NewQueueConsumer(queue, executor.Execute,
		cfg.Queue.Prefetch, cfg.Queue.MaxRetries)
	consumer.SetMetrics(metrics)
	cancelConsume, err := consumer.Start(runCtx)
	if err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	defer cancelConsume()

	poller := service.NewPoller(store, processor, cfg.Poller.Interval, workerID)
	go poller.Run(runCtx)

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(tphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tphttp.SecurityHeaders)
	r.Use(middleware.CorrelationID)
	r.Use(tphttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	health := &tphttp.Health{DB: pool, Queue: queue, Version: version}
	tphttp.MountRoutes(r, health, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-runCtx.Done()
	slog.Info("shutting down", "worker_id", workerID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
