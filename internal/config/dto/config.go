package dto

import (
	"fmt"
	"time"
)

// Runtime modes.
const (
	ModeLambda = "lambda"
	ModeHTTP   = "http"
	ModeKafka  = "kafka"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Runtime       RuntimeConfig       `mapstructure:"runtime"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Convert       ConvertConfig       `mapstructure:"convert"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RuntimeConfig selects how batches reach the router.
type RuntimeConfig struct {
	Mode string `mapstructure:"mode"`
}

// DedupConfig contains dedup store configuration
type DedupConfig struct {
	Backend  string            `mapstructure:"backend"`
	Strategy string            `mapstructure:"strategy"`
	TTLHours int               `mapstructure:"ttl_hours"`
	DynamoDB DynamoDBConfig    `mapstructure:"dynamodb"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Memory   MemoryDedupConfig `mapstructure:"memory"`
}

// TTL returns the dedup retention window.
func (c DedupConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// DynamoDBConfig contains DynamoDB dedup table configuration
type DynamoDBConfig struct {
	TableName      string `mapstructure:"table_name"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ConsistentRead bool   `mapstructure:"consistent_read"`
}

// RedisConfig contains Redis dedup configuration
type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	KeyPrefix      string `mapstructure:"key_prefix"`
	PoolSize       int    `mapstructure:"pool_size"`
	MinIdleConns   int    `mapstructure:"min_idle_conns"`
	DialTimeoutMS  int    `mapstructure:"dial_timeout_ms"`
	ReadTimeoutMS  int    `mapstructure:"read_timeout_ms"`
	WriteTimeoutMS int    `mapstructure:"write_timeout_ms"`
}

// MemoryDedupConfig contains in-process dedup cache configuration
type MemoryDedupConfig struct {
	CleanWindowSeconds int `mapstructure:"clean_window_seconds"`
	MaxEntriesInWindow int `mapstructure:"max_entries_in_window"`
	Shards             int `mapstructure:"shards"`
}

// RoutingConfig contains router output settings
type RoutingConfig struct {
	Duplicates  string `mapstructure:"duplicates"`
	ErrorPrefix string `mapstructure:"error_prefix"`
}

// HTTPConfig contains the transform endpoint settings
type HTTPConfig struct {
	Port                int    `mapstructure:"port"`
	TransformPath       string `mapstructure:"transform_path"`
	MaxBodyMB           int    `mapstructure:"max_body_mb"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
	Batch            BatchConfig    `mapstructure:"batch"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// BatchConfig controls how consumed messages are grouped into router batches
type BatchConfig struct {
	MaxRecords int `mapstructure:"max_records"`
	MaxWaitMS  int `mapstructure:"max_wait_ms"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	Container   string `mapstructure:"container"`
	BasePath    string `mapstructure:"base_path"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64  `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int    `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	Strategy           string `mapstructure:"strategy"`
}

// ProcessingConfig contains buffering settings for the kafka runtime
type ProcessingConfig struct {
	BufferSizeMB           int `mapstructure:"buffer_size_mb"`
	BufferFlushIntervalSec int `mapstructure:"buffer_flush_interval_seconds"`
}

// RetryConfig contains retry settings for batches aborted by the dedup store
type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter"`
}

// ConvertConfig contains settings of the columnar conversion job
type ConvertConfig struct {
	Database   string `mapstructure:"database"`
	Table      string `mapstructure:"table"`
	InputPath  string `mapstructure:"input_path"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns the shutdown grace period.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Runtime.Mode == "" {
		return fmt.Errorf("runtime mode is required")
	}
	if c.Dedup.Backend == "" {
		return fmt.Errorf("dedup backend is required")
	}
	return nil
}

// Validate validates DynamoDB configuration.
func (c *DynamoDBConfig) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("dynamodb table name is required (EVENT_CACHE_TABLE_NAME)")
	}
	return nil
}

// Validate validates Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
