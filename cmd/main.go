package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventrouter/internal/buffer"
	"github.com/jittakal/kafeventrouter/internal/config"
	"github.com/jittakal/kafeventrouter/internal/config/dto"
	"github.com/jittakal/kafeventrouter/internal/dedup"
	"github.com/jittakal/kafeventrouter/internal/handler"
	"github.com/jittakal/kafeventrouter/internal/kafka"
	"github.com/jittakal/kafeventrouter/internal/observability"
	"github.com/jittakal/kafeventrouter/internal/pipeline"
	"github.com/jittakal/kafeventrouter/internal/router"
	"github.com/jittakal/kafeventrouter/internal/server"
	"github.com/jittakal/kafeventrouter/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Load configuration
	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		Output:      cfg.Observability.Logging.Output,
		Service:     cfg.Application.Name,
		Environment: cfg.Application.Environment,
	})
	logger.Info("starting event router",
		"version", cfg.Application.Version,
		"mode", cfg.Runtime.Mode,
		"dedup_backend", cfg.Dedup.Backend,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := dedup.New(ctx, newDedupConfig(cfg.Dedup), logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create dedup store: %w", err)
	}
	defer store.Close()

	rt, err := router.New(store, router.Config{
		TTL:         cfg.Dedup.TTL(),
		Strategy:    router.Strategy(cfg.Dedup.Strategy),
		Duplicates:  router.DuplicateMode(cfg.Routing.Duplicates),
		ErrorPrefix: cfg.Routing.ErrorPrefix,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	healthChecker := server.NewStoreHealthChecker(store, 2*time.Second)

	switch cfg.Runtime.Mode {
	case dto.ModeLambda:
		h := handler.NewFirehoseHandler(rt, logger, metrics)
		handler.StartLambda(h, func() {
			logger.Info("lambda runtime shutting down")
			if err := store.Close(); err != nil {
				logger.Error("failed to close dedup store", "error", err)
			}
		})
		return nil

	case dto.ModeHTTP:
		h := handler.NewFirehoseHandler(rt, logger, metrics)
		transform := handler.TransformHandler(h, int64(cfg.HTTP.MaxBodyMB)*1024*1024)
		httpServer := newServer(cfg, healthChecker, registry, transform, logger)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}

		<-ctx.Done()
		logger.Info("received termination signal")
		healthChecker.SetReady(false)
		return shutdownServer(cfg, httpServer)

	case dto.ModeKafka:
		return runKafka(ctx, cfg, rt, healthChecker, registry, metrics, logger)

	default:
		return fmt.Errorf("unsupported runtime mode: %s", cfg.Runtime.Mode)
	}
}

func runKafka(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	rt *router.Router,
	healthChecker *server.StoreHealthChecker,
	registry *prometheus.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
) error {
	// Track cleanup functions
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, fn)
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	security := kafka.SecurityConfig{
		Protocol:      cfg.Kafka.SecurityProtocol,
		SASLMechanism: cfg.Kafka.SASLMechanism,
		SASLUsername:  cfg.Kafka.SASLUsername,
		SASLPassword:  cfg.Kafka.SASLPassword,
		AWSRegion:     cfg.Kafka.AWSRegion,
	}

	sink, err := storage.NewSinkFromConfig(cfg.Storage, "", logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage sink: %w", err)
	}
	addCleanup("storage-sink", sink.Close)

	dlqPublisher, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, security, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		MaxRetries:  cfg.Kafka.DLQ.MaxRetries,
	}, logger, metrics, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlqPublisher.Close)

	consumer, err := kafka.NewSaramaConsumer(kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		Security:            security,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", consumer.Close)

	// Initialize buffer manager
	bufferSizeBytes := int64(cfg.Processing.BufferSizeMB) * 1024 * 1024
	buffers := buffer.NewManager(bufferSizeBytes, cfg.FileRotation.MaxRecordsPerFile, metrics)

	policy := storage.NewPolicy(storage.PolicyConfig{
		MaxFileSizeMB:      cfg.FileRotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.FileRotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
		Strategy:           cfg.FileRotation.Strategy,
	})

	p, err := pipeline.New(pipeline.Config{
		BatchMaxRecords: cfg.Kafka.Batch.MaxRecords,
		BatchMaxWait:    time.Duration(cfg.Kafka.Batch.MaxWaitMS) * time.Millisecond,
		FlushInterval:   time.Duration(cfg.Processing.BufferFlushIntervalSec) * time.Second,
		Retry: pipeline.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
			Multiplier:     cfg.Retry.BackoffMultiplier,
			Jitter:         cfg.Retry.Jitter,
		},
	}, rt, buffers, policy, sink, dlqPublisher, consumer, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Start HTTP server
	httpServer := newServer(cfg, healthChecker, registry, nil, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		return shutdownServer(cfg, httpServer)
	})

	if err := consumer.Subscribe(ctx, cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	events, errs, err := consumer.Consume(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	logger.Info("application started successfully", "topics", cfg.Kafka.Consumer.Topics)

	runErr := p.Run(ctx, events, errs)
	if runErr != nil {
		logger.Error("pipeline stopped", "error", runErr)
	} else {
		logger.Info("initiating graceful shutdown")
	}
	healthChecker.SetReady(false)

	// Buffered records are written before the writers close.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()
	p.FlushAll(flushCtx)

	return runErr
}

func newDedupConfig(c dto.DedupConfig) dedup.Config {
	return dedup.Config{
		Backend: c.Backend,
		TTL:     c.TTL(),
		DynamoDB: dedup.DynamoDBConfig{
			TableName:      c.DynamoDB.TableName,
			Region:         c.DynamoDB.Region,
			Endpoint:       c.DynamoDB.Endpoint,
			ConsistentRead: c.DynamoDB.ConsistentRead,
		},
		Redis: dedup.RedisConfig{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			KeyPrefix:    c.Redis.KeyPrefix,
			PoolSize:     c.Redis.PoolSize,
			MinIdleConns: c.Redis.MinIdleConns,
			DialTimeout:  time.Duration(c.Redis.DialTimeoutMS) * time.Millisecond,
			ReadTimeout:  time.Duration(c.Redis.ReadTimeoutMS) * time.Millisecond,
			WriteTimeout: time.Duration(c.Redis.WriteTimeoutMS) * time.Millisecond,
		},
		Memory: dedup.MemoryConfig{
			CleanWindow:        time.Duration(c.Memory.CleanWindowSeconds) * time.Second,
			MaxEntriesInWindow: c.Memory.MaxEntriesInWindow,
			Shards:             c.Memory.Shards,
		},
	}
}

func newServer(
	cfg *dto.ApplicationConfig,
	healthChecker server.HealthChecker,
	registry *prometheus.Registry,
	transform http.Handler,
	logger *slog.Logger,
) *server.Server {
	return server.NewServer(server.Config{
		HealthPort:     cfg.Observability.Health.Port,
		LivenessPath:   cfg.Observability.Health.LivenessPath,
		ReadinessPath:  cfg.Observability.Health.ReadinessPath,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
		TransformPort:  cfg.HTTP.Port,
		TransformPath:  cfg.HTTP.TransformPath,
		ReadTimeout:    time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}, healthChecker, registry, transform, logger)
}

func shutdownServer(cfg *dto.ApplicationConfig, s *server.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()
	return s.Shutdown(ctx)
}
