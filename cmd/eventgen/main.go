package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jittakal/kafeventrouter/internal/generator"
	"github.com/jittakal/kafeventrouter/internal/kafka"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"

	// Command-line flags
	brokers        = flag.String("brokers", getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), "Comma separated Kafka bootstrap servers")
	topic          = flag.String("topic", getEnv("EVENTGEN_TOPIC", "raw-events"), "Topic to produce to")
	eventNames     = flag.String("event-names", getEnv("EVENTGEN_EVENT_NAMES", strings.Join(generator.DefaultEventNames, ",")), "Comma separated event names (type:subtype)")
	intervalMs     = flag.Int("interval-ms", getEnvInt("EVENTGEN_INTERVAL_MS", 100), "Delay between messages in milliseconds")
	count          = flag.Int("count", getEnvInt("EVENTGEN_COUNT", 0), "Number of messages to produce, 0 runs until interrupted")
	duplicateRatio = flag.Float64("duplicate-ratio", getEnvFloat("EVENTGEN_DUPLICATE_RATIO", 0.1), "Share of messages replaying a recent event")
	emptyNameRatio = flag.Float64("empty-name-ratio", getEnvFloat("EVENTGEN_EMPTY_NAME_RATIO", 0.02), "Share of messages without an event name")
	cloudEvents    = flag.Bool("cloudevents", getEnv("EVENTGEN_CLOUDEVENTS", "false") == "true", "Wrap payloads as structured CloudEvents")
	logLevel       = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger, err := initLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting eventgen",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	gen, err := generator.New(generator.Config{
		EventNames:     splitList(*eventNames),
		DuplicateRatio: *duplicateRatio,
		EmptyNameRatio: *emptyNameRatio,
		CloudEvents:    *cloudEvents,
	}, logger)
	if err != nil {
		logger.Fatal("Invalid generator configuration", zap.Error(err))
	}

	security := kafka.SecurityConfig{
		Protocol:      getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
		SASLMechanism: getEnv("KAFKA_SASL_MECHANISM", kafka.MechanismPlain),
		SASLUsername:  os.Getenv("KAFKA_SASL_USERNAME"),
		SASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),
		AWSRegion:     os.Getenv("AWS_REGION"),
	}
	producer, err := kafka.NewSyncProducer(splitList(*brokers), security)
	if err != nil {
		logger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Producing events",
		zap.String("topic", *topic),
		zap.Float64("duplicateRatio", *duplicateRatio),
		zap.Float64("emptyNameRatio", *emptyNameRatio),
		zap.Bool("cloudEvents", *cloudEvents),
	)

	stats, err := gen.Run(ctx, producer, *topic, time.Duration(*intervalMs)*time.Millisecond, *count)
	if err != nil {
		logger.Error("Event generation failed", zap.Error(err))
	}

	logger.Info("Shutdown complete",
		zap.Int("sent", stats.Sent),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("emptyNames", stats.EmptyNames),
		zap.Int("failed", stats.Failed),
	)
}

// initLogger initializes the zap logger based on the log level
func initLogger(level string) (*zap.Logger, error) {
	var config zap.Config

	switch level {
	case "debug":
		config = zap.NewDevelopmentConfig()
	default:
		config = zap.NewProductionConfig()
		if err := config.Level.UnmarshalText([]byte(level)); err != nil {
			config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}

	return config.Build()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}
