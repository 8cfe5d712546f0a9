// Package generator produces synthetic raw events for exercising the kafka
// runtime end to end, including duplicates and records without a name.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"go.uber.org/zap"
)

const (
	// DefaultSource is the CloudEvents source of generated events.
	DefaultSource = "/kafeventrouter/eventgen"

	contentTypeCloudEvents = "application/cloudevents+json"
	recentWindow           = 256
)

// DefaultEventNames covers several type/subtype pairs plus a name without a
// subtype.
var DefaultEventNames = []string{
	"signup:web",
	"signup:mobile",
	"purchase:card",
	"purchase:wallet",
	"session:start",
	"session:end",
	"profile:update",
	"heartbeat",
}

// Config controls the shape of generated traffic.
type Config struct {
	EventNames []string
	Source     string
	// DuplicateRatio is the share of messages that replay a recent event.
	DuplicateRatio float64
	// EmptyNameRatio is the share of messages sent without an event name.
	EmptyNameRatio float64
	// CloudEvents wraps each payload in a structured CloudEvent.
	CloudEvents bool
}

// Validate checks ratios and event names.
func (c Config) Validate() error {
	if len(c.EventNames) == 0 {
		return errors.New("at least one event name is required")
	}
	if c.DuplicateRatio < 0 || c.DuplicateRatio > 1 {
		return fmt.Errorf("duplicate ratio must be within [0, 1], got %v", c.DuplicateRatio)
	}
	if c.EmptyNameRatio < 0 || c.EmptyNameRatio > 1 {
		return fmt.Errorf("empty name ratio must be within [0, 1], got %v", c.EmptyNameRatio)
	}
	return nil
}

// RawEvent is the payload the router consumes.
type RawEvent struct {
	EventUUID string      `json:"event_uuid"`
	EventName string      `json:"event_name"`
	CreatedAt int64       `json:"created_at"`
	User      UserData    `json:"user"`
	Context   ContextData `json:"context"`
}

// UserData describes the actor of a generated event.
type UserData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// ContextData carries request details of a generated event.
type ContextData struct {
	IP        string  `json:"ip"`
	UserAgent string  `json:"user_agent"`
	Amount    float64 `json:"amount,omitempty"`
}

// Message is a generated Kafka message.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Event     RawEvent
	Duplicate bool
}

// Generator generates fake raw events
type Generator struct {
	config Config
	faker  faker.Faker
	logger *zap.Logger
	now    func() time.Time
	recent []RawEvent
	next   int
}

// New creates a new event generator
func New(config Config, logger *zap.Logger) (*Generator, error) {
	return newGenerator(config, faker.New(), logger)
}

func newGenerator(config Config, f faker.Faker, logger *zap.Logger) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Source == "" {
		config.Source = DefaultSource
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		config: config,
		faker:  f,
		logger: logger,
		now:    time.Now,
		recent: make([]RawEvent, 0, recentWindow),
	}, nil
}

// Next returns the next message. A duplicate replays the uuid, name and
// creation time of a recent event with a fresh payload body.
func (g *Generator) Next() (*Message, error) {
	raw, duplicate := g.nextEvent()

	msg := &Message{
		Key:       []byte(raw.EventUUID),
		Headers:   map[string]string{"content-type": "application/json"},
		Event:     raw,
		Duplicate: duplicate,
	}

	var err error
	if g.config.CloudEvents {
		msg.Value, err = g.wrap(raw)
		msg.Headers["content-type"] = contentTypeCloudEvents
	} else {
		msg.Value, err = json.Marshal(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return msg, nil
}

func (g *Generator) nextEvent() (RawEvent, bool) {
	if len(g.recent) > 0 && g.chance(g.config.DuplicateRatio) {
		prev := g.recent[g.faker.IntBetween(0, len(g.recent)-1)]
		dup := g.newEvent()
		dup.EventUUID = prev.EventUUID
		dup.EventName = prev.EventName
		dup.CreatedAt = prev.CreatedAt
		return dup, true
	}

	raw := g.newEvent()
	if g.chance(g.config.EmptyNameRatio) {
		raw.EventName = ""
	}
	g.remember(raw)
	return raw, false
}

func (g *Generator) newEvent() RawEvent {
	name := g.config.EventNames[g.faker.IntBetween(0, len(g.config.EventNames)-1)]
	raw := RawEvent{
		EventUUID: uuid.New().String(),
		EventName: name,
		CreatedAt: g.now().Unix(),
		User: UserData{
			ID:      "U" + g.faker.UUID().V4()[0:8],
			Name:    g.faker.Person().Name(),
			Email:   g.faker.Internet().Email(),
			City:    g.faker.Address().City(),
			Country: g.faker.Address().CountryCode(),
		},
		Context: ContextData{
			IP:        g.faker.Internet().Ipv4(),
			UserAgent: g.randomUserAgent(),
		},
	}
	if strings.HasPrefix(name, "purchase") {
		raw.Context.Amount = float64(g.faker.IntBetween(100, 50000)) / 100
	}
	return raw
}

func (g *Generator) remember(raw RawEvent) {
	if len(g.recent) < recentWindow {
		g.recent = append(g.recent, raw)
		return
	}
	g.recent[g.next] = raw
	g.next = (g.next + 1) % recentWindow
}

func (g *Generator) chance(ratio float64) bool {
	if ratio <= 0 {
		return false
	}
	return g.faker.IntBetween(1, 100) <= int(ratio*100)
}

func (g *Generator) wrap(raw RawEvent) ([]byte, error) {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(uuid.New().String())
	ce.SetType(cloudEventType(raw.EventName))
	ce.SetSource(g.config.Source)
	ce.SetTime(time.Unix(raw.CreatedAt, 0).UTC())
	if err := ce.SetData(cloudevents.ApplicationJSON, raw); err != nil {
		return nil, err
	}
	return json.Marshal(ce)
}

func cloudEventType(name string) string {
	if name == "" {
		return "com.kafeventrouter.unnamed"
	}
	return "com.kafeventrouter." + name
}

func (g *Generator) randomUserAgent() string {
	agents := []string{"web/1.0", "ios/2.3", "android/2.1", "cli/0.9"}
	weights := []int{50, 25, 20, 5}

	rand := g.faker.IntBetween(1, 100)
	cumulative := 0

	for i, weight := range weights {
		cumulative += weight
		if rand <= cumulative {
			return agents[i]
		}
	}

	return agents[0]
}

// Stats counts what Run produced.
type Stats struct {
	Sent       int
	Duplicates int
	EmptyNames int
	Failed     int
}

// Run produces count messages to topic, one per interval. A count of zero
// runs until the context is cancelled.
func (g *Generator) Run(ctx context.Context, producer sarama.SyncProducer, topic string, interval time.Duration, count int) (Stats, error) {
	var stats Stats
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for count == 0 || stats.Sent+stats.Failed < count {
		select {
		case <-ctx.Done():
			g.logger.Info("Stopping event generation", zap.Int("sent", stats.Sent))
			return stats, nil
		case <-ticker.C:
		}

		msg, err := g.Next()
		if err != nil {
			return stats, err
		}

		partition, offset, err := producer.SendMessage(toProducerMessage(topic, msg))
		if err != nil {
			stats.Failed++
			g.logger.Error("Failed to produce event",
				zap.String("topic", topic),
				zap.String("eventUUID", msg.Event.EventUUID),
				zap.Error(err),
			)
			continue
		}

		stats.Sent++
		if msg.Duplicate {
			stats.Duplicates++
		}
		if msg.Event.EventName == "" {
			stats.EmptyNames++
		}
		g.logger.Debug("Produced event",
			zap.String("topic", topic),
			zap.String("eventName", msg.Event.EventName),
			zap.Bool("duplicate", msg.Duplicate),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset),
		)
	}

	return stats, nil
}

func toProducerMessage(topic string, msg *Message) *sarama.ProducerMessage {
	headers := make([]sarama.RecordHeader, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.ByteEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	}
}
