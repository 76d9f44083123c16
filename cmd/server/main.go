package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/client"
	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/handler"
	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/middleware"
	"github.com/cleanflow/api/internal/server"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/internal/store"
	ws "github.com/cleanflow/api/internal/websocket"
	"github.com/cleanflow/api/internal/worker"
	"github.com/cleanflow/api/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Task record store
	st, err := store.Open(cfg.Store.Driver, cfg.Store.SQLitePath, redisClient)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer st.Close()
	log.Printf("Info: task record store backend: %s", cfg.Store.Driver)

	// Metrics
	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	validate := validator.New()

	// WebSocket hub, optionally fed through the redis relay
	hub := ws.NewHub(recorder)
	go hub.Run()
	defer hub.Close()

	var broadcaster ws.Broadcaster = hub
	if cfg.Broadcast.Relay == "redis" {
		relay := ws.NewRedisRelay(redisClient, hub)
		go func() {
			if err := relay.Run(ctx, nil); err != nil {
				log.Printf("Relay stopped: %v", err)
			}
		}()
		broadcaster = relay
		log.Println("Info: broadcasting deltas through redis relay")
	}

	// R2 storage (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
			jwksVerifier = nil
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Workflow tracker and the sink task mutations feed
	tracker := workflow.NewTracker(redisClient, broadcaster, recorder)
	var sink service.EventSink = service.NewTrackerSink(tracker)
	var queue service.EventSink
	if cfg.Workflow.Async {
		emitter := worker.NewAsynqEmitter(asynqClient)
		sink = emitter
		queue = emitter
		log.Println("Info: workflow events are processed asynchronously")
	}

	// Services
	cache, err := service.NewStatusCache(cfg.Cache.StatusSize, recorder)
	if err != nil {
		log.Fatalf("Failed to create status cache: %v", err)
	}
	coordinator := service.NewCoordinator(st, broadcaster, sink, cache, recorder)
	propertyService := service.NewPropertyService(st, cache)
	uploadService := service.NewUploadService(storage, coordinator)

	// Auth
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if tokenVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(tokenVerifier, cfg.JWT.Secret)
		} else if tokenVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(tokenVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}

	app := server.New(server.Handlers{
		Property: handler.NewPropertyHandler(propertyService, validate),
		Task:     handler.NewTaskHandler(coordinator, uploadService, validate),
		Workflow: handler.NewWorkflowHandler(tracker, queue, validate),
		Auth:     handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret),
	}, server.Options{
		Auth:        apiAuthMiddleware,
		RateLimiter: middleware.NewRateLimiter(redisClient),
		RateLimit:   cfg.RateLimit,
		Hub:         hub,
		Metrics:     recorder.Handler(),
		LogLevel:    cfg.Server.LogLevel,
		Health: fiber.Map{
			"store": cfg.Store.Driver,
			"r2":    storage != nil,
			"auth":  jwksVerifier != nil || cfg.JWT.Secret != "",
			"relay": cfg.Broadcast.Relay,
		},
	})

	// Background workers and the reconcile schedule
	go startWorkerServer(cfg, redisOpt, tracker, st)
	scheduler, err := startScheduler(cfg, redisOpt)
	if err != nil {
		log.Printf("Warning: reconcile scheduler not started: %v", err)
	} else {
		defer scheduler.Shutdown()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server error: %v", err)
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, tracker *workflow.Tracker, st store.Store) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			worker.QueueWorkflow: 10,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	workflowWorker := worker.NewWorkflowWorker(tracker)
	reconcileWorker := worker.NewReconcileWorker(tracker, st, cfg.Workflow.StaleAfter)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeWorkflowEvent, workflowWorker.ProcessTask)
	mux.HandleFunc(worker.TaskTypeReconcile, reconcileWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func startScheduler(cfg *config.Config, redisOpt asynq.RedisClientOpt) (*asynq.Scheduler, error) {
	if cfg.Workflow.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("reconcile interval is disabled")
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
	cronspec := fmt.Sprintf("@every %s", cfg.Workflow.ReconcileInterval)
	if _, err := scheduler.Register(cronspec, worker.NewReconcileTask(), asynq.Queue(worker.QueueWorkflow), asynq.MaxRetry(0)); err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		return nil, err
	}
	log.Printf("Info: reconciling workflow jobs %s", cronspec)
	return scheduler, nil
}
