package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared by every package.
const (
	FieldStage  = "stage"
	FieldRunID  = "run_id"
	FieldJobID  = "job_id"
	FieldJobURL = "job_url"
)

// WithStage returns a child logger tagged with the stage name and run id.
// Blank values are not attached.
func WithStage(log *zap.Logger, stage, runID string) *zap.Logger {
	fields := appendString(nil, FieldStage, stage)
	fields = appendString(fields, FieldRunID, runID)
	log = OrNop(log)
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// JobFields describes a single job post. Zero ids and blank urls are omitted.
func JobFields(jobID int64, url string) []zap.Field {
	var fields []zap.Field
	if jobID > 0 {
		fields = append(fields, zap.Int64(FieldJobID, jobID))
	}
	return appendString(fields, FieldJobURL, url)
}

func appendString(fields []zap.Field, key, value string) []zap.Field {
	if value = strings.TrimSpace(value); value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
