package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/adapters/primary/http/handlers"
	"fraud-classifier-service/internal/adapters/primary/http/middleware"
	"fraud-classifier-service/internal/adapters/primary/queue"
	"fraud-classifier-service/internal/adapters/secondary/kubernetes"
	"fraud-classifier-service/internal/config"
	ports "fraud-classifier-service/internal/core/ports/output"
	"fraud-classifier-service/internal/core/services"
	"fraud-classifier-service/internal/metrics"
	"fraud-classifier-service/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	if cfg.Metrics.Enabled {
		if err := metrics.InitMetrics(prometheus.DefaultRegisterer); err != nil {
			log.Fatalf("init metrics: %v", err)
		}
	}

	repo, closeRegistry, err := registry.Open(context.Background(), &cfg.Registry)
	if err != nil {
		log.Fatalf("open registry: %v", err)
	}
	defer closeRegistry()

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	registrySvc := services.NewRegistryService(repo)
	inferenceSvc := services.NewInferenceService(registrySvc, services.InferenceConfig{
		ModelName:    cfg.Service.ModelName,
		ModelTag:     cfg.Service.ModelTag,
		MaxBatchSize: cfg.Service.MaxBatchSize,
	})

	// Kubernetes client (optional - based on config)
	var cluster ports.ClusterClient
	if cfg.Kubernetes.Enabled {
		client, err := kubernetes.NewClient(&cfg.Kubernetes)
		if err != nil {
			log.Warnf("kubernetes client init failed (continuing without cluster integration): %v", err)
		} else {
			cluster = client
			log.Info("kubernetes client initialized")
		}
	} else {
		log.Info("kubernetes integration disabled")
	}
	deploySvc := services.NewDeployService(cluster, kubernetes.Renderer{}, cfg.Kubernetes.DefaultNS)

	h := handlers.New(inferenceSvc, registrySvc, cfg.Service.Route)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging())
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	router.Use(gin.Recovery())
	h.RegisterHealthRoutes(router)

	protected := router.Group("/")
	if cfg.Auth.APIKeyHash != "" {
		protected.Use(middleware.APIKey(cfg.Auth.APIKeyHash))
		log.Info("API key authentication enabled")
	}
	h.RegisterRoutes(protected)
	api := protected.Group("/api/v1")
	h.RegisterRegistryRoutes(api)
	h.RegisterDeploymentRoutes(api, deploySvc)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	fatal := make(chan error, 2)
	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal <- fmt.Errorf("server error: %w", err)
		}
	}()

	// The model loads while the listener is already up; predict answers 503
	// until Ready.
	go func() {
		if err := inferenceSvc.Start(context.Background()); err != nil {
			fatal <- fmt.Errorf("load model %s:%s: %w", cfg.Service.ModelName, cfg.Service.ModelTag, err)
		}
	}()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	var workerWG sync.WaitGroup
	consumer, err := newQueueConsumer(workerCtx, &cfg.Queue)
	if err != nil {
		log.Fatalf("init queue consumer: %v", err)
	}
	if consumer != nil {
		scorer := services.NewBatchScorer(consumer, inferenceSvc, cfg.Queue.MaxConcurrency)
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			scorer.Run(workerCtx)
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down server...")
	case err := <-fatal:
		log.WithError(err).Error("fatal startup error, shutting down")
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	stopWorker()
	workerWG.Wait()
	inferenceSvc.Shutdown()
	closeRegistry()

	log.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newQueueConsumer returns nil when no queue driver is configured.
func newQueueConsumer(ctx context.Context, cfg *config.QueueConfig) (ports.QueueConsumer, error) {
	switch cfg.Driver {
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		consumer := queue.NewRedisConsumer(client, cfg.JobsQueue, cfg.ResultsQueue, cfg.WaitTime)
		n, err := consumer.Recover(ctx)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"queue": cfg.JobsQueue, "recovered": n}).Info("redis batch queue enabled")
		return consumer, nil

	case config.QueueSQS:
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		log.WithField("queue_url", cfg.SQSJobsURL).Info("sqs batch queue enabled")
		return queue.NewSQSConsumer(client, cfg.SQSJobsURL, cfg.SQSResultsURL, cfg.WaitTime), nil

	default:
		log.Info("batch queue disabled")
		return nil, nil
	}
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
