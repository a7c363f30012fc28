package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Metric names are "provisioning.<operation>.<suffix>".
const (
	MetricPrefix          = "provisioning"
	MetricSuffixTotal     = "total"
	MetricSuffixDuration  = "duration_ms"
	MetricWalletCreations = "provisioning.wallet_creation.dispatched"
	MetricJobsEnqueued    = "provisioning.jobs.enqueued"
)

// MetricName builds the metric name for one wallet operation.
func MetricName(operation, suffix string) string {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	return MetricPrefix + "." + operation + "." + strings.TrimSpace(suffix)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// operationTags labels an operation outcome. Status tags and error kinds come
// from the closed vocabularies, so label cardinality stays bounded.
func operationTags(operation string, err error, fields map[string]any) map[string]string {
	tags := map[string]string{"operation": operation, "status": "success"}
	if err != nil {
		tags["status"] = "failure"
	}
	for _, key := range []string{MetadataStatusTag, "error_kind"} {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

func (s *Service) recordOperationMetrics(ctx context.Context, operation string, elapsed time.Duration, tags map[string]string) {
	s.recordCounter(ctx, MetricName(operation, MetricSuffixTotal), 1, tags)
	s.recordHistogram(ctx, MetricName(operation, MetricSuffixDuration), float64(elapsed.Milliseconds()), tags)
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var _ MetricsRecorder = NopMetricsRecorder{}
