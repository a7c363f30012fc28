package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type operation struct {
	ctx            context.Context
	name           string
	startedAt      time.Time
	fields         map[string]any
	tokenReference string
	requestCode    int
	successStatus  ActivityStatus
}

func (s *Service) begin(ctx context.Context, name string, fields map[string]any) *operation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &operation{
		ctx:           ctx,
		name:          normalizeOperation(name),
		startedAt:     time.Now().UTC(),
		fields:        cloneFields(fields),
		successStatus: ActivityStatusOK,
	}
}

func resolve[T any](s *Service, op *operation, p *Promise[T], value T) {
	if p.Resolve(value) {
		s.finish(op, nil)
	}
}

func reject[T any](s *Service, op *operation, p *Promise[T], err error) {
	mapped := s.mapError(err)
	if p.Reject(mapped) {
		s.finish(op, mapped)
	}
}

func (s *Service) finish(op *operation, err error) {
	if s == nil || op == nil {
		return
	}
	fields := cloneFields(op.fields)
	if err != nil {
		fields[MetadataStatusTag] = StatusTag(err)
		fields["error_kind"] = ErrorKind(err)
	}
	s.observeOperation(op.ctx, op.startedAt, op.name, err, fields)

	status := op.successStatus
	if err != nil {
		status = ActivityStatusFailed
	}
	entry := ActivityEntry{
		Operation:      op.name,
		Status:         status,
		TokenReference: op.tokenReference,
		RequestCode:    op.requestCode,
		DurationMS:     time.Since(op.startedAt).Milliseconds(),
		Metadata:       RedactSensitiveMap(op.fields),
		CreatedAt:      time.Now().UTC(),
	}
	if err != nil {
		entry.StatusTag = StatusTag(err)
		entry.ErrorKind = ErrorKind(err)
		entry.Metadata["error"] = err.Error()
	} else if tag, ok := op.fields["result_tag"].(string); ok {
		entry.StatusTag = tag
	}
	s.recordActivity(op.ctx, entry)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) recordActivity(ctx context.Context, entry ActivityEntry) {
	if s == nil || s.activitySink == nil {
		return
	}
	if err := s.activitySink.Record(ctx, entry); err != nil {
		s.logError(ctx, "activity record failed", map[string]any{
			"operation": entry.Operation,
			"error":     err.Error(),
		})
	}
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := RedactSensitiveMap(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		enrichErrorFields(contextFields, err)
	}

	s.recordOperationMetrics(ctx, operation, time.Since(startedAt), operationTags(operation, err, contextFields))

	if err != nil {
		s.logError(ctx, operation+" failed", contextFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", contextFields)
}

func enrichErrorFields(fields map[string]any, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return
	}
	fields["error_category"] = fmt.Sprint(rich.Category)
	fields["error_text_code"] = rich.TextCode
	fields["error_code"] = rich.Code
	if len(rich.Metadata) > 0 {
		fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
	}
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
