package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/internal/validator"
	"github.com/jittakal/kafeventrouter/pkg/dedup"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Strategy selects how a dedup key is reserved in the store.
type Strategy string

const (
	// StrategyPutIfAbsent reserves keys with one conditional write.
	StrategyPutIfAbsent Strategy = "put_if_absent"
	// StrategyCheckThenPut reads then writes. Concurrent invocations may both
	// accept the same key.
	StrategyCheckThenPut Strategy = "check_then_put"
)

// DuplicateMode selects what happens to records whose key was already seen.
type DuplicateMode string

const (
	DuplicatesOmit DuplicateMode = "omit"
	DuplicatesDrop DuplicateMode = "drop"
)

// Record outcomes reported to metrics.
const (
	OutcomeRouted    = "routed"
	OutcomeError     = "error_partition"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
)

const (
	// DefaultTTL is the dedup retention used when none is configured.
	DefaultTTL = 24 * time.Hour
	// DefaultErrorPrefix is the first segment of the error partition.
	DefaultErrorPrefix = "error"
)

// Added payload fields.
const (
	fieldCreatedDateTime = "created_datetime"
	fieldEventType       = "event_type"
	fieldEventSubtype    = "event_subtype"
)

// Config contains router configuration.
type Config struct {
	TTL         time.Duration
	Strategy    Strategy
	Duplicates  DuplicateMode
	ErrorPrefix string
}

// MetricsCollector defines metrics operations for the router.
type MetricsCollector interface {
	IncRouterRecords(outcome string)
	ObserveRouterBatch(size int, duration float64)
}

// Router deduplicates, classifies and partitions raw records.
type Router struct {
	store     dedup.Store
	cfg       Config
	validator *validator.PayloadValidator
	logger    *slog.Logger
	metrics   MetricsCollector
	now       func() time.Time
}

// New creates a router backed by store. Zero config values take defaults.
func New(store dedup.Store, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Router, error) {
	if store == nil {
		return nil, fmt.Errorf("dedup store is required")
	}

	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("dedup ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPutIfAbsent
	}
	if cfg.Strategy != StrategyPutIfAbsent && cfg.Strategy != StrategyCheckThenPut {
		return nil, fmt.Errorf("unsupported dedup strategy: %s", cfg.Strategy)
	}
	if cfg.Duplicates == "" {
		cfg.Duplicates = DuplicatesOmit
	}
	if cfg.Duplicates != DuplicatesOmit && cfg.Duplicates != DuplicatesDrop {
		return nil, fmt.Errorf("unsupported duplicates mode: %s", cfg.Duplicates)
	}
	cfg.ErrorPrefix = strings.Trim(cfg.ErrorPrefix, "/")
	if cfg.ErrorPrefix == "" {
		cfg.ErrorPrefix = DefaultErrorPrefix
	}

	return &Router{
		store:     store,
		cfg:       cfg,
		validator: validator.NewPayloadValidator(),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Process routes a batch sequentially. The output keeps the input order with
// duplicates omitted; every per-record problem is encoded in the output.
// A store failure aborts the batch with a *RouteError; the output of the
// records before the failing one is returned with it. Their keys are already
// reserved.
func (r *Router) Process(ctx context.Context, records []event.RawRecord) ([]event.OutputRecord, error) {
	start := time.Now()
	output := make([]event.OutputRecord, 0, len(records))

	for i := range records {
		err := ctx.Err()
		var out *event.OutputRecord
		if err == nil {
			out, err = r.route(ctx, &records[i])
		}
		if err != nil {
			return output, &apperrors.RouteError{Index: i, RecordID: records[i].RecordID, Err: err}
		}
		if out != nil {
			output = append(output, *out)
		}
	}

	if r.metrics != nil {
		r.metrics.ObserveRouterBatch(len(records), time.Since(start).Seconds())
	}

	r.logger.Debug("batch routed",
		"input_records", len(records),
		"output_records", len(output),
	)

	return output, nil
}

func (r *Router) route(ctx context.Context, rec *event.RawRecord) (*event.OutputRecord, error) {
	raw, payload, err := decodeData(rec.RecordID, rec.Data)
	if err == nil {
		err = r.validator.Validate(rec.RecordID, payload)
	}
	if err != nil {
		r.logger.Warn("malformed record", "record_id", rec.RecordID, "error", err)
		r.count(OutcomeMalformed)
		if raw == nil {
			raw = []byte(rec.Data)
		}
		return &event.OutputRecord{
			RecordID: rec.RecordID,
			Result:   event.ResultProcessingFailed,
			Data:     raw,
		}, nil
	}

	ev := extractEvent(payload)
	key := ev.DedupKey()

	existed, err := r.reserve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve dedup key for record %s: %w", rec.RecordID, err)
	}
	if existed {
		r.logger.Info("duplicate event", "record_id", rec.RecordID, "dedup_key", key)
		r.count(OutcomeDuplicate)
		if r.cfg.Duplicates == DuplicatesDrop {
			return &event.OutputRecord{
				RecordID: rec.RecordID,
				Result:   event.ResultDropped,
				Data:     raw,
				Event:    ev,
			}, nil
		}
		return nil, nil
	}

	if ev.IsError() {
		r.logger.Error("event_name is empty",
			"record_id", rec.RecordID,
			"event_uuid", ev.UUID,
			"created_at", ev.CreatedAt,
		)
		r.count(OutcomeError)
		return &event.OutputRecord{
			RecordID: rec.RecordID,
			Result:   event.ResultOk,
			Data:     raw,
			Prefix:   r.ErrorPrefix(ev.CreatedDateTime),
			Event:    ev,
		}, nil
	}

	ev.Type, ev.Subtype = SplitEventName(ev.Name)

	payload[fieldCreatedDateTime] = ev.CreatedDateTime.Format(time.RFC3339)
	payload[fieldEventType] = ev.Type
	payload[fieldEventSubtype] = ev.Subtype

	data, err := encodeObject(payload)
	if err != nil {
		// Decoded values always re-encode; treat a failure like malformed input.
		r.logger.Warn("failed to encode routed payload", "record_id", rec.RecordID, "error", err)
		r.count(OutcomeMalformed)
		return &event.OutputRecord{
			RecordID: rec.RecordID,
			Result:   event.ResultProcessingFailed,
			Data:     raw,
		}, nil
	}

	r.count(OutcomeRouted)
	return &event.OutputRecord{
		RecordID: rec.RecordID,
		Result:   event.ResultOk,
		Data:     data,
		Prefix:   SuccessPrefix(ev.Type, ev.Subtype, ev.CreatedDateTime),
		Event:    ev,
	}, nil
}

// reserve registers key and reports whether a live entry already existed.
func (r *Router) reserve(ctx context.Context, key string) (bool, error) {
	expiresAt := r.now().Add(r.cfg.TTL)

	if r.cfg.Strategy == StrategyPutIfAbsent {
		return r.store.PutIfAbsent(ctx, key, expiresAt)
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil || exists {
		return exists, err
	}
	return false, r.store.Put(ctx, key, expiresAt)
}

func (r *Router) count(outcome string) {
	if r.metrics != nil {
		r.metrics.IncRouterRecords(outcome)
	}
}

// ErrorPrefix returns "{error}/{year}/{month}/{day}/" for t.
func (r *Router) ErrorPrefix(t time.Time) string {
	return fmt.Sprintf("%s/%s", r.cfg.ErrorPrefix, datePath(t))
}

// SuccessPrefix returns "{type}/{subtype}/{year}/{month}/{day}/" for t.
func SuccessPrefix(eventType, eventSubtype string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s", eventType, eventSubtype, datePath(t))
}

// datePath renders month and day without zero padding.
func datePath(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d/", t.Year(), int(t.Month()), t.Day())
}

// SplitEventName splits "type:subtype" on ':' and keeps the first two
// segments. A missing or empty segment becomes event.UnknownSegment.
func SplitEventName(name string) (string, string) {
	parts := strings.Split(name, ":")

	eventType, eventSubtype := event.UnknownSegment, event.UnknownSegment
	if parts[0] != "" {
		eventType = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		eventSubtype = parts[1]
	}
	return eventType, eventSubtype
}
