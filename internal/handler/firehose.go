// Package handler adapts the record router to the Firehose transformation
// contract, both as a Lambda function and as a plain HTTP endpoint.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Processor routes a batch of raw records.
type Processor interface {
	Process(ctx context.Context, records []event.RawRecord) ([]event.OutputRecord, error)
}

// MetricsCollector defines metrics operations for the handler.
type MetricsCollector interface {
	IncRouterBatchFailures()
}

// FirehoseHandler turns transformation requests into transformation responses.
type FirehoseHandler struct {
	processor Processor
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewFirehoseHandler creates a handler. metrics may be nil.
func NewFirehoseHandler(processor Processor, logger *slog.Logger, metrics MetricsCollector) *FirehoseHandler {
	return &FirehoseHandler{
		processor: processor,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handle routes one invocation. A dedup store failure is returned as an error
// so the runtime retries the whole batch.
func (h *FirehoseHandler) Handle(ctx context.Context, req event.TransformRequest) (events.KinesisFirehoseResponse, error) {
	logger := h.logger.With("invocation_id", req.InvocationID)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}

	start := time.Now()
	out, err := h.processor.Process(ctx, req.Records)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncRouterBatchFailures()
		}
		logger.Error("batch aborted",
			"records", len(req.Records),
			"error", err,
		)
		return events.KinesisFirehoseResponse{}, fmt.Errorf("failed to process batch: %w", err)
	}

	logger.Info("batch processed",
		"input_records", len(req.Records),
		"output_records", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return NewResponse(out), nil
}

// NewResponse converts routed records to the runtime response shape.
func NewResponse(out []event.OutputRecord) events.KinesisFirehoseResponse {
	resp := events.KinesisFirehoseResponse{
		Records: make([]events.KinesisFirehoseResponseRecord, 0, len(out)),
	}
	for i := range out {
		resp.Records = append(resp.Records, events.KinesisFirehoseResponseRecord{
			RecordID: out[i].RecordID,
			Result:   out[i].Result,
			Data:     out[i].Data,
			Metadata: events.KinesisFirehoseResponseRecordMetadata{
				PartitionKeys: out[i].PartitionKeys(),
			},
		})
	}
	return resp
}
