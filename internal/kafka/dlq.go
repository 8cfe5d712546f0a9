package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/consumer"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DLQPublisher = (*DLQPublisher)(nil)

// DLQ failure reasons.
const (
	ReasonMalformed     = "malformed"
	ReasonStorageFailed = "storage_failed"
)

// DLQEvent represents an event published to the dead letter queue.
// OriginalPayload is base64 encoded in JSON since it may not be valid JSON.
type DLQEvent struct {
	OriginalPayload   []byte    `json:"original_payload"`
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	FailureReason     string    `json:"failure_reason"`
	FailureTimestamp  time.Time `json:"failure_timestamp"`
	RetryCount        int       `json:"retry_count"`
	ProcessorID       string    `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
	MaxRetries  int
}

// Validate validates DLQ configuration.
func (c DLQConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TopicSuffix == "" {
		return errors.New("topic suffix is required when DLQ is enabled")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	return nil
}

// DLQMetricsCollector defines metrics operations for the DLQ publisher.
type DLQMetricsCollector interface {
	IncDLQMessages(reason string, status string)
}

// DLQPublisher publishes failed events to a dead letter queue.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	metrics     DLQMetricsCollector
	mu          sync.RWMutex
	closed      bool
	processorID string
	now         func() time.Time
}

// NewDLQPublisher creates a new DLQ publisher. A disabled publisher accepts
// and discards every event.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) (*DLQPublisher, error) {
	if err := dlqConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dlq config: %w", err)
	}

	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, metrics, processorID), nil
	}

	producer, err := NewSyncProducer(bootstrapServers, security)
	if err != nil {
		return nil, err
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return newDLQPublisher(producer, dlqConfig, logger, metrics, processorID), nil
}

func newDLQPublisher(
	producer sarama.SyncProducer,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      dlqConfig,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
		now:         time.Now,
	}
}

// TopicFor returns the DLQ topic of a source topic.
func (p *DLQPublisher) TopicFor(topic string) string {
	return topic + p.config.TopicSuffix
}

// Publish publishes a failed event to the DLQ.
func (p *DLQPublisher) Publish(
	ctx context.Context,
	payload []byte,
	source event.SourceMetadata,
	reason string,
) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrConsumerClosed
	}

	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, skipping publish", "reason", reason)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := p.TopicFor(source.Topic)

	dlqData, err := json.Marshal(DLQEvent{
		OriginalPayload:   payload,
		OriginalTopic:     source.Topic,
		OriginalPartition: source.Partition,
		OriginalOffset:    source.Offset,
		FailureReason:     reason,
		FailureTimestamp:  p.now().UTC(),
		RetryCount:        0,
		ProcessorID:       p.processorID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(dlqData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(source.Topic)},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(source.Offset, 10))},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: p.now(),
	}
	if len(source.Key) > 0 {
		msg.Key = sarama.ByteEncoder(source.Key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.incMessages(reason, "failure")
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"original_offset", source.Offset,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.incMessages(reason, "success")
	p.logger.Info("published event to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"original_offset", source.Offset,
		"reason", reason,
	)

	return nil
}

func (p *DLQPublisher) incMessages(reason, status string) {
	if p.metrics != nil {
		p.metrics.IncDLQMessages(reason, status)
	}
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing DLQ publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
