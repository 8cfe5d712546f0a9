// Package pipeline runs the kafka runtime. Consumed messages are grouped
// into batches and routed, routed records are buffered per output prefix
// and flushed to the storage sink by the rotation policy or a timer.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/internal/kafka"
	"github.com/jittakal/kafeventrouter/pkg/buffer"
	"github.com/jittakal/kafeventrouter/pkg/consumer"
	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Processor routes a batch of raw records.
type Processor interface {
	Process(ctx context.Context, records []event.RawRecord) ([]event.OutputRecord, error)
}

// Sink writes the records of one prefix as a single file.
type Sink interface {
	Write(ctx context.Context, prefix string, records []event.Record) (string, int64, error)
}

// Buffers holds routed records per output prefix.
type Buffers interface {
	buffer.Manager
	Add(record event.Record) error
}

// Committer records committed offsets.
type Committer interface {
	Commit(ctx context.Context, partition event.PartitionID, offset int64) error
}

// Config contains pipeline settings.
type Config struct {
	BatchMaxRecords int
	BatchMaxWait    time.Duration
	// FlushInterval forces every buffer out regardless of the policy.
	FlushInterval time.Duration
	Retry         RetryConfig
}

// Pipeline moves consumed messages through the router into storage.
type Pipeline struct {
	processor Processor
	buffers   Buffers
	policy    storage.RotationPolicy
	sink      Sink
	dlq       consumer.DLQPublisher
	committer Committer
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a pipeline. committer may be nil.
func New(
	config Config,
	processor Processor,
	buffers Buffers,
	policy storage.RotationPolicy,
	sink Sink,
	dlq consumer.DLQPublisher,
	committer Committer,
	logger *slog.Logger,
) (*Pipeline, error) {
	if processor == nil || buffers == nil || policy == nil || sink == nil || dlq == nil {
		return nil, errors.New("processor, buffers, policy, sink and dlq are required")
	}
	if config.BatchMaxRecords <= 0 {
		return nil, fmt.Errorf("batch max records must be positive, got %d", config.BatchMaxRecords)
	}
	if config.BatchMaxWait <= 0 {
		return nil, fmt.Errorf("batch max wait must be positive, got %s", config.BatchMaxWait)
	}

	return &Pipeline{
		processor: processor,
		buffers:   buffers,
		policy:    policy,
		sink:      sink,
		dlq:       dlq,
		committer: committer,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run consumes events until ctx ends or the event channel closes. It
// returns an error when a batch cannot be routed after all retries; the
// messages of that batch stay uncommitted.
func (p *Pipeline) Run(ctx context.Context, events <-chan *event.ConsumedEvent, errs <-chan error) error {
	batch := make([]*event.ConsumedEvent, 0, p.config.BatchMaxRecords)

	var (
		batchTimer *time.Timer
		deadline   <-chan time.Time
	)
	stopTimer := func() {
		if batchTimer != nil {
			batchTimer.Stop()
			batchTimer, deadline = nil, nil
		}
	}
	defer stopTimer()

	var flushTick <-chan time.Time
	if p.config.FlushInterval > 0 {
		ticker := time.NewTicker(p.config.FlushInterval)
		defer ticker.Stop()
		flushTick = ticker.C
	}

	handle := func() error {
		stopTimer()
		if len(batch) == 0 {
			return nil
		}
		err := p.HandleBatch(ctx, batch)
		batch = batch[:0]
		return err
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, stopping pipeline", "pending_messages", len(batch))
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("consumer error", "error", err)

		case msg, ok := <-events:
			if !ok {
				p.logger.Info("event channel closed")
				return handle()
			}
			batch = append(batch, msg)
			if len(batch) == 1 {
				batchTimer = time.NewTimer(p.config.BatchMaxWait)
				deadline = batchTimer.C
			}
			if len(batch) >= p.config.BatchMaxRecords {
				if err := handle(); err != nil {
					return err
				}
			}

		case <-deadline:
			batchTimer, deadline = nil, nil
			if err := handle(); err != nil {
				return err
			}

		case <-flushTick:
			p.FlushAll(ctx)
		}
	}
}

// HandleBatch routes one batch, buffers its Ok records, parks its failed
// records in the DLQ, flushes the prefixes the policy selects and commits
// the batch. A batch the router aborts is returned as a ProcessingError
// positioned at the first message it could not route.
func (p *Pipeline) HandleBatch(ctx context.Context, batch []*event.ConsumedEvent) error {
	if len(batch) == 0 {
		return nil
	}

	raws := make([]event.RawRecord, len(batch))
	byID := make(map[string]*event.ConsumedEvent, len(batch))
	for i, msg := range batch {
		id := msg.RecordID()
		raws[i] = event.RawRecord{
			RecordID:                    id,
			ApproximateArrivalTimestamp: msg.Metadata.Timestamp.UnixMilli(),
			Data:                        base64.StdEncoding.EncodeToString(msg.Payload),
		}
		byID[id] = msg
	}

	// A failed attempt returns the output of the records it routed; only the
	// rest is sent again, since those keys are already reserved.
	var (
		out       []event.OutputRecord
		remaining = raws
	)
	err := retry(ctx, p.config.Retry, func(attempt int, err error) {
		p.logger.Warn("routing batch failed, retrying",
			"attempt", attempt,
			"records", len(remaining),
			"error", err,
		)
	}, func() error {
		routed, err := p.processor.Process(ctx, remaining)
		out = append(out, routed...)

		var rerr *apperrors.RouteError
		if errors.As(err, &rerr) && rerr.Index > 0 && rerr.Index < len(remaining) {
			remaining = remaining[rerr.Index:]
		}
		return err
	})

	routed, failed := p.dispatch(ctx, out, byID)

	if err != nil {
		// Routed records are buffered so a shutdown flush writes them; the
		// batch itself stays uncommitted.
		first := batch[len(batch)-len(remaining)]
		return &apperrors.ProcessingError{
			PartitionID: event.PartitionID{Topic: first.Metadata.Topic, Partition: first.Metadata.Partition},
			Offset:      first.Metadata.Offset,
			RecordID:    remaining[0].RecordID,
			Err:         fmt.Errorf("failed to route batch of %d records: %w", len(raws), err),
		}
	}

	p.logger.Debug("batch routed",
		"records", len(batch),
		"routed", routed,
		"failed", failed,
		"duplicates", len(batch)-len(out),
	)

	p.FlushReady(ctx)
	p.commit(ctx, batch)
	return nil
}

// dispatch buffers Ok records and parks ProcessingFailed records.
func (p *Pipeline) dispatch(ctx context.Context, out []event.OutputRecord, byID map[string]*event.ConsumedEvent) (routed, failed int) {
	for i := range out {
		rec := &out[i]
		msg, ok := byID[rec.RecordID]
		if !ok {
			p.logger.Warn("router returned unknown record id", "record_id", rec.RecordID)
			continue
		}

		switch rec.Result {
		case event.ResultOk:
			p.buffer(ctx, event.Record{
				RecordID:    rec.RecordID,
				Prefix:      rec.Prefix,
				Data:        rec.Data,
				Event:       rec.Event,
				Source:      msg.Metadata,
				ProcessedAt: p.now(),
			})
			routed++
		case event.ResultProcessingFailed:
			p.park(ctx, msg.Payload, msg.Metadata, kafka.ReasonMalformed)
			failed++
		}
	}
	return routed, failed
}

// buffer adds record, flushing its prefix first when the buffer is full.
func (p *Pipeline) buffer(ctx context.Context, record event.Record) {
	err := p.buffers.Add(record)
	if err == nil {
		return
	}
	if errors.Is(err, apperrors.ErrBufferFull) {
		p.Flush(ctx, record.Prefix)
		if err = p.buffers.Add(record); err == nil {
			return
		}
	}

	p.logger.Error("failed to buffer record",
		"record_id", record.RecordID,
		"prefix", record.Prefix,
		"error", err,
	)
	p.park(ctx, record.Data, record.Source, kafka.ReasonStorageFailed)
}

// FlushReady flushes the prefixes whose buffers the policy rotates.
func (p *Pipeline) FlushReady(ctx context.Context) {
	for _, prefix := range p.buffers.Prefixes() {
		if p.policy.ShouldRotate(p.buffers.GetOrCreate(prefix).Stats()) {
			p.Flush(ctx, prefix)
		}
	}
}

// FlushAll flushes every non-empty buffer.
func (p *Pipeline) FlushAll(ctx context.Context) {
	for _, prefix := range p.buffers.Prefixes() {
		p.Flush(ctx, prefix)
	}
}

// Flush writes the buffered records of prefix as one file. Records of a
// write that keeps failing are parked in the DLQ.
func (p *Pipeline) Flush(ctx context.Context, prefix string) {
	records := p.buffers.GetOrCreate(prefix).Drain()
	if len(records) == 0 {
		return
	}

	var (
		location string
		written  int64
	)
	err := retry(ctx, p.config.Retry, func(attempt int, err error) {
		p.logger.Warn("storage write failed, retrying",
			"attempt", attempt,
			"prefix", prefix,
			"error", err,
		)
	}, func() error {
		var err error
		location, written, err = p.sink.Write(ctx, prefix, records)
		return err
	})
	if err != nil {
		p.logger.Error("failed to write to storage",
			"prefix", prefix,
			"records", len(records),
			"error", err,
		)
		for _, rec := range records {
			p.park(ctx, rec.Data, rec.Source, kafka.ReasonStorageFailed)
		}
		return
	}

	p.logger.Info("wrote batch to storage",
		"prefix", prefix,
		"records", len(records),
		"bytes", written,
		"path", location,
	)
}

func (p *Pipeline) park(ctx context.Context, payload []byte, source event.SourceMetadata, reason string) {
	if err := p.dlq.Publish(ctx, payload, source, reason); err != nil {
		p.logger.Error("failed to publish to DLQ",
			"topic", source.Topic,
			"partition", source.Partition,
			"offset", source.Offset,
			"reason", reason,
			"error", err,
		)
	}
}

// commit marks every message of the batch and reports the highest offset of
// each partition.
func (p *Pipeline) commit(ctx context.Context, batch []*event.ConsumedEvent) {
	highest := make(map[event.PartitionID]int64)
	for _, msg := range batch {
		if msg.CommitFunc != nil {
			if err := msg.CommitFunc(); err != nil {
				p.logger.Error("failed to commit offset",
					"topic", msg.Metadata.Topic,
					"partition", msg.Metadata.Partition,
					"offset", msg.Metadata.Offset,
					"error", err,
				)
				continue
			}
		}
		id := event.PartitionID{Topic: msg.Metadata.Topic, Partition: msg.Metadata.Partition}
		if offset, ok := highest[id]; !ok || msg.Metadata.Offset > offset {
			highest[id] = msg.Metadata.Offset
		}
	}

	if p.committer == nil {
		return
	}
	for id, offset := range highest {
		if err := p.committer.Commit(ctx, id, offset); err != nil {
			p.logger.Warn("failed to record commit", "partition", id.String(), "error", err)
		}
	}
}
