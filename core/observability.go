package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// metricTagFields are the log fields promoted to metric tags when present.
var metricTagFields = []string{"account_key", "trigger", "provider_id"}

// observeOperation emits one log line plus a counter and a duration histogram
// named deliveries.<operation>.*, tagged with the outcome.
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
	operation = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	elapsed := time.Since(startedAt)

	logFields := cloneFields(fields)
	logFields["event_type"] = operation
	logFields["status"] = outcome
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
		addErrorIdentity(logFields, err)
	}

	tags := map[string]string{"operation": operation, "status": outcome}
	for _, key := range metricTagFields {
		if value, ok := logFields[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	if s.metricsRecorder != nil {
		prefix := "deliveries." + operation
		s.metricsRecorder.IncCounter(ctx, prefix+".total", 1, cloneTags(tags))
		s.metricsRecorder.ObserveHistogram(ctx, prefix+".duration_ms", float64(elapsed.Milliseconds()), cloneTags(tags))
	}

	if err != nil {
		s.logError(ctx, operation+" failed", logFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", logFields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if s != nil {
		writeLog(ctx, s.logger, "info", message, fields)
	}
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	if s != nil {
		writeLog(ctx, s.logger, "warn", message, fields)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if s != nil {
		writeLog(ctx, s.logger, "error", message, fields)
	}
}

// writeLog prefers structured fields when the logger supports them and always
// passes the same fields as sorted key/value args.
func writeLog(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if structured, ok := logger.(FieldsLogger); ok {
		logger = structured.WithFields(cloneFields(fields))
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func addErrorIdentity(fields map[string]any, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return
	}
	fields["error_category"] = fmt.Sprint(rich.Category)
	if rich.TextCode != "" {
		fields["error_text_code"] = rich.TextCode
	}
	if rich.Code != 0 {
		fields["error_code"] = rich.Code
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return maps.Clone(fields)
}
