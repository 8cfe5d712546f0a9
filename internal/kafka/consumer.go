// Package kafka implements the Kafka consumer, the dead letter queue
// publisher and the shared broker security setup.
package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/consumer"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ consumer.Consumer = (*SaramaConsumer)(nil)
)

const contentTypeCloudEvents = "application/cloudevents+json"

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	Security            SecurityConfig
	AutoOffsetReset     string
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	MaxProcessingTime   time.Duration
}

// Validate validates consumer configuration.
func (c ConsumerConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return errors.New("bootstrap servers are required")
	}
	if c.GroupID == "" {
		return errors.New("group id is required")
	}
	if c.AutoOffsetReset != "" && c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return fmt.Errorf("unsupported auto offset reset: %s", c.AutoOffsetReset)
	}
	return nil
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveRebalanceDuration(groupID string, duration float64)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SaramaConsumer implements the consumer.Consumer interface using the Sarama library.
// Offsets are only marked once the caller commits a message, so a batch the
// router could not finish is delivered again after a restart or rebalance.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	logger        *slog.Logger
	metrics       MetricsCollector
	topics        []string
	ready         chan bool
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumer creates a new Kafka consumer using Sarama library.
func NewSaramaConsumer(
	config ConsumerConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SaramaConsumer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}

	saramaConfig, err := newConsumerConfig(config)
	if err != nil {
		return nil, err
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"security_protocol", config.Security.Protocol,
		"session_timeout_ms", config.SessionTimeoutMS,
	)

	return newSaramaConsumer(consumerGroup, config, logger, metrics), nil
}

func newSaramaConsumer(group sarama.ConsumerGroup, config ConsumerConfig, logger *slog.Logger, metrics MetricsCollector) *SaramaConsumer {
	return &SaramaConsumer{
		consumerGroup: group,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan bool),
	}
}

func newConsumerConfig(config ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	// Marked offsets are flushed periodically; only processed messages are marked.
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	if saramaConfig.Consumer.MaxProcessingTime <= 0 {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// Subscribe subscribes to the specified topics.
func (c *SaramaConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.ErrConsumerClosed
	}
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}

	c.topics = topics
	c.logger.Info("subscribed to topics", "topics", topics)
	return nil
}

// Consume starts consuming messages and returns channels for events and errors.
// It blocks until the first consumer group session is set up or ctx ends.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *event.ConsumedEvent, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, apperrors.ErrConsumerClosed
	}
	topics := c.topics
	c.mu.RUnlock()

	eventChan := make(chan *event.ConsumedEvent, 100)
	errorChan := make(chan error, 10)

	handler := &consumerGroupHandler{
		consumer:  c,
		eventChan: eventChan,
		ready:     c.ready,
	}

	go func() {
		defer close(eventChan)
		defer close(errorChan)

		for {
			// Consume returns on every rebalance and must be called again.
			if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("consumer group error", "error", err)
				select {
				case errorChan <- err:
				default:
				}
				return
			}
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled")
				return
			}
		}
	}()

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Warn("consumer group reported error", "error", err)
		}
	}()

	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	c.logger.Info("kafka consumer started and ready")
	return eventChan, errorChan, nil
}

// Commit records commit metrics for a partition. Offsets themselves are
// marked through ConsumedEvent.CommitFunc inside the session.
func (c *SaramaConsumer) Commit(ctx context.Context, partition event.PartitionID, offset int64) error {
	startTime := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return apperrors.ErrConsumerClosed
	}

	c.logger.Debug("offset committed",
		"topic", partition.Topic,
		"partition", partition.Partition,
		"offset", offset,
	)

	if c.metrics != nil {
		c.metrics.ObserveCommitLatency(partition.Topic, partition.Partition, time.Since(startTime).Seconds())
		c.metrics.IncOffsetCommits(partition.Topic, partition.Partition, "success")
	}

	return nil
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer       *SaramaConsumer
	eventChan      chan<- *event.ConsumedEvent
	ready          chan bool
	readyOnce      sync.Once
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if h.consumer.metrics != nil {
		h.consumer.metrics.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			h.consumer.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(
			h.consumer.config.GroupID,
			time.Since(h.rebalanceStart).Seconds(),
		)
	}

	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim forwards messages from a partition to the event channel.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	h.consumer.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			h.consumer.logger.Debug("received kafka message",
				"topic", message.Topic,
				"partition", message.Partition,
				"offset", message.Offset,
				"value_size", len(message.Value),
			)

			consumedEvent := newConsumedEvent(message, func() error {
				session.MarkMessage(message, "")
				return nil
			})

			select {
			case h.eventChan <- consumedEvent:
				if h.consumer.metrics != nil {
					h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
				}
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				"topic", claim.Topic(),
				"partition", claim.Partition(),
			)
			return nil
		}
	}
}

func newConsumedEvent(message *sarama.ConsumerMessage, commit func() error) *event.ConsumedEvent {
	headers := extractHeaders(message.Headers)
	return &event.ConsumedEvent{
		Payload: unwrapPayload(message.Value, headers),
		Metadata: event.SourceMetadata{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			Key:       message.Key,
			Headers:   headers,
			Timestamp: message.Timestamp,
		},
		CommitFunc: commit,
	}
}

// unwrapPayload returns the event payload carried by a message. A structured
// CloudEvent is replaced by its data attribute; every other value passes
// through untouched and is classified by the router.
func unwrapPayload(value []byte, headers map[string]string) []byte {
	if headers["content-type"] != contentTypeCloudEvents && !bytes.Contains(value, []byte(`"specversion"`)) {
		return value
	}

	var ce cloudevents.Event
	if err := json.Unmarshal(value, &ce); err != nil {
		return value
	}
	if err := ce.Validate(); err != nil {
		return value
	}
	if data := ce.Data(); len(data) > 0 {
		return data
	}
	return value
}

// extractHeaders extracts headers from Kafka message.
func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		result[string(header.Key)] = string(header.Value)
	}
	return result
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
