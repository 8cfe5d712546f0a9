package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/kafeventrouter/internal/config/dto"
	"github.com/spf13/viper"
)

// envAliases binds plain environment variable names onto config keys. The
// APP_ prefixed name is listed first so it takes precedence.
var envAliases = map[string][]string{
	"dedup.dynamodb.table_name": {"APP_DEDUP_DYNAMODB_TABLE_NAME", "EVENT_CACHE_TABLE_NAME"},
	"dedup.ttl_hours":           {"APP_DEDUP_TTL_HOURS", "EVENT_CACHE_TTL_HOURS"},
	"dedup.dynamodb.region":     {"APP_DEDUP_DYNAMODB_REGION", "AWS_REGION"},
}

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envAliases {
		args := append([]string{key}, names...)
		// BindEnv only fails without a key.
		_ = v.BindEnv(args...)
	}

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables. A missing
// file is not an error so the Lambda runtime can be configured purely from
// the environment.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	config, err := l.read(path)
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if err := l.Validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadConvert loads configuration for the conversion job. Only the storage
// and convert sections are validated. The format of the convert section
// replaces storage.format and, when it differs, the compression falls back
// to the default of the new format.
func (l *Loader) LoadConvert(path string) (*dto.ApplicationConfig, error) {
	config, err := l.read(path)
	if err != nil {
		return nil, err
	}

	if config.Convert.Format != "" && config.Convert.Format != config.Storage.Format {
		config.Storage.Format = config.Convert.Format
		config.Storage.Compression = ""
	}
	if config.Convert.InputPath == "" {
		return nil, errors.New("config validation failed: convert.input_path is required")
	}
	if err := ValidateStorage(&config.Storage); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (l *Loader) read(path string) (*dto.ApplicationConfig, error) {
	// Set defaults
	l.setDefaults()

	// Load from file if provided
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	// Only expand if the value contains ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	// Unmarshal configuration
	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafeventrouter")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Runtime defaults
	l.v.SetDefault("runtime.mode", dto.ModeLambda)

	// Dedup defaults
	l.v.SetDefault("dedup.backend", "dynamodb")
	l.v.SetDefault("dedup.strategy", "put_if_absent")
	l.v.SetDefault("dedup.ttl_hours", 24)
	l.v.SetDefault("dedup.dynamodb.table_name", "")
	l.v.SetDefault("dedup.dynamodb.region", "")
	l.v.SetDefault("dedup.dynamodb.endpoint", "")
	l.v.SetDefault("dedup.dynamodb.consistent_read", true)
	l.v.SetDefault("dedup.redis.addr", "")
	l.v.SetDefault("dedup.redis.password", "")
	l.v.SetDefault("dedup.redis.db", 0)
	l.v.SetDefault("dedup.redis.key_prefix", "kafeventrouter:dedup:")
	l.v.SetDefault("dedup.redis.pool_size", 10)
	l.v.SetDefault("dedup.redis.min_idle_conns", 2)
	l.v.SetDefault("dedup.redis.dial_timeout_ms", 5000)
	l.v.SetDefault("dedup.redis.read_timeout_ms", 3000)
	l.v.SetDefault("dedup.redis.write_timeout_ms", 3000)
	l.v.SetDefault("dedup.memory.clean_window_seconds", 60)
	l.v.SetDefault("dedup.memory.max_entries_in_window", 600000)
	l.v.SetDefault("dedup.memory.shards", 1024)

	// Routing defaults
	l.v.SetDefault("routing.duplicates", "omit")
	l.v.SetDefault("routing.error_prefix", "error")

	// HTTP defaults
	l.v.SetDefault("http.port", 8081)
	l.v.SetDefault("http.transform_path", "/transform")
	l.v.SetDefault("http.max_body_mb", 6)
	l.v.SetDefault("http.read_timeout_seconds", 30)
	l.v.SetDefault("http.write_timeout_seconds", 60)

	// Kafka defaults
	l.v.SetDefault("kafka.bootstrap_servers", []string{})
	l.v.SetDefault("kafka.security_protocol", "SASL_SSL")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.sasl_username", "")
	l.v.SetDefault("kafka.sasl_password", "")
	l.v.SetDefault("kafka.aws_region", "")
	l.v.SetDefault("kafka.consumer.group_id", "")
	l.v.SetDefault("kafka.consumer.topics", []string{})
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")
	l.v.SetDefault("kafka.dlq.max_retries", 3)
	l.v.SetDefault("kafka.batch.max_records", 500)
	l.v.SetDefault("kafka.batch.max_wait_ms", 1000)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "json")
	l.v.SetDefault("storage.compression", "snappy")
	l.v.SetDefault("storage.file.base_path", "./data")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// File rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 128)
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.strategy", "any")

	// Processing defaults
	l.v.SetDefault("processing.buffer_size_mb", 64)
	l.v.SetDefault("processing.buffer_flush_interval_seconds", 60)

	// Retry defaults
	l.v.SetDefault("retry.max_attempts", 5)
	l.v.SetDefault("retry.initial_backoff_ms", 100)
	l.v.SetDefault("retry.max_backoff_ms", 30000)
	l.v.SetDefault("retry.backoff_multiplier", 2.0)
	l.v.SetDefault("retry.jitter", true)

	// Convert defaults
	l.v.SetDefault("convert.database", "events")
	l.v.SetDefault("convert.table", "raw_events")
	l.v.SetDefault("convert.input_path", "./data")
	l.v.SetDefault("convert.output_path", "curated")
	l.v.SetDefault("convert.format", "parquet")

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := validateDedup(&config.Dedup); err != nil {
		return err
	}

	switch config.Routing.Duplicates {
	case "omit", "drop":
	default:
		return fmt.Errorf("unsupported routing.duplicates: %s (supported: omit, drop)", config.Routing.Duplicates)
	}

	switch config.Runtime.Mode {
	case dto.ModeLambda:
	case dto.ModeHTTP:
		if err := validatePort("http.port", config.HTTP.Port); err != nil {
			return err
		}
		if !strings.HasPrefix(config.HTTP.TransformPath, "/") {
			return fmt.Errorf("http.transform_path must start with '/': %s", config.HTTP.TransformPath)
		}
		if config.HTTP.MaxBodyMB <= 0 {
			return errors.New("http.max_body_mb must be positive")
		}
	case dto.ModeKafka:
		if err := validateKafka(&config.Kafka); err != nil {
			return err
		}
		if err := ValidateStorage(&config.Storage); err != nil {
			return err
		}
		// File rotation validation
		if config.FileRotation.Strategy != "any" && config.FileRotation.Strategy != "all" {
			return fmt.Errorf("unsupported rotation strategy: %s", config.FileRotation.Strategy)
		}
		if config.Retry.MaxAttempts < 1 {
			return errors.New("retry.max_attempts must be at least 1")
		}
	default:
		return fmt.Errorf("unsupported runtime mode: %s (supported: lambda, http, kafka)", config.Runtime.Mode)
	}

	// Port validation
	if config.Runtime.Mode != dto.ModeLambda {
		if err := validatePort("observability.health.port", config.Observability.Health.Port); err != nil {
			return err
		}
	}

	return nil
}

func validateDedup(c *dto.DedupConfig) error {
	if c.TTLHours <= 0 {
		return fmt.Errorf("dedup.ttl_hours must be positive, got %d", c.TTLHours)
	}

	switch c.Strategy {
	case "put_if_absent", "check_then_put":
	default:
		return fmt.Errorf("unsupported dedup.strategy: %s (supported: put_if_absent, check_then_put)", c.Strategy)
	}

	switch c.Backend {
	case "dynamodb":
		return c.DynamoDB.Validate()
	case "redis":
		return c.Redis.Validate()
	case "memory":
		return nil
	default:
		return fmt.Errorf("unsupported dedup backend: %s", c.Backend)
	}
}

func validateKafka(c *dto.KafkaConfig) error {
	if len(c.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(c.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if c.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	if c.Batch.MaxRecords <= 0 {
		return errors.New("kafka.batch.max_records must be positive")
	}
	if c.Batch.MaxWaitMS <= 0 {
		return errors.New("kafka.batch.max_wait_ms must be positive")
	}
	return nil
}

// ValidateStorage validates the storage backend and format settings.
func ValidateStorage(c *dto.StorageConfig) error {
	switch c.Backend {
	case "s3":
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	case "azure":
		if err := c.Azure.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	case "gcs":
		if err := c.GCS.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	case "file":
		if err := c.File.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Backend)
	}

	// Format validation
	switch c.Format {
	case "json", "parquet", "avro":
	default:
		return fmt.Errorf("unsupported storage format: %s", c.Format)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: %d", name, port)
	}
	return nil
}
