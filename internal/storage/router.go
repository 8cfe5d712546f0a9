// Package storage implements storage-related functionality.
package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*PrefixRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// HiveDefaultPartition replaces empty partition values in Hive paths.
const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// PrefixRouter places routed partition prefixes under a backend location.
type PrefixRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *PrefixRouter {
	return &PrefixRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the storage path for a partition prefix.
// Format: protocol://bucket/basePath/prefix/
// Empty bucket and base path segments are skipped.
func (r *PrefixRouter) Route(prefix string) string {
	segments := make([]string, 0, 3)
	for _, s := range []string{r.bucket, r.basePath, strings.Trim(prefix, "/")} {
		if s != "" {
			segments = append(segments, s)
		}
	}

	location := path.Join(segments...)
	if location != "" {
		location += "/"
	}
	return fmt.Sprintf("%s://%s", r.protocol, location)
}

// HivePartitionPath returns
// "event_type=T/event_subtype=S/year=YYYY/month=M/day=D/" for t.
// Month and day are not zero padded, matching the routed prefixes.
func HivePartitionPath(eventType, eventSubtype string, t time.Time) string {
	return fmt.Sprintf("event_type=%s/event_subtype=%s/year=%d/month=%d/day=%d/",
		hiveValue(eventType),
		hiveValue(eventSubtype),
		t.Year(),
		int(t.Month()),
		t.Day(),
	)
}

func hiveValue(v string) string {
	if v == "" {
		return HiveDefaultPartition
	}
	return v
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// Rotation strategies.
const (
	StrategyAny = "any"
	StrategyAll = "all"
)

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
	// Strategy is "any" (rotate once one limit is hit) or "all" (every
	// configured limit must be hit).
	Strategy string
}

// CompositePolicy rotates based on multiple criteria.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
	requireAll   bool
	now          func() time.Time
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
		requireAll:   config.Strategy == StrategyAll,
		now:          time.Now,
	}
}

// ShouldRotate reports whether the buffered stats hit the rotation limits.
// Empty buffers never rotate.
func (p *CompositePolicy) ShouldRotate(stats event.FileStats) bool {
	if stats.RecordCount == 0 {
		return false
	}

	var checks []bool

	if p.maxSizeBytes > 0 {
		checks = append(checks, stats.SizeBytes >= p.maxSizeBytes)
	}
	if p.maxRecords > 0 {
		checks = append(checks, stats.RecordCount >= p.maxRecords)
	}
	if p.maxDuration > 0 {
		checks = append(checks, !stats.FirstWriteTime.IsZero() && p.now().Sub(stats.FirstWriteTime) >= p.maxDuration)
	}

	if len(checks) == 0 {
		return false
	}

	for _, hit := range checks {
		if hit && !p.requireAll {
			return true
		}
		if !hit && p.requireAll {
			return false
		}
	}
	return p.requireAll
}
