package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/placement"
)

const (
	// FieldProvider is the structured log field key for the judge provider name.
	FieldProvider = "judge_provider"
	// FieldModel is the structured log field key for the judge model identifier.
	FieldModel = "judge_model"

	FieldApplicationID = "application_id"
	FieldStudentID     = "student_id"
	FieldJobID         = "job_id"
	FieldStatus        = "status"
	FieldErrorKind     = "error_kind"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// JudgeFields describes the judge provider and model.
func JudgeFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithJudge attaches the judge fields to logger.
func WithJudge(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, JudgeFields(provider, model)...)
}

// ApplicationFields identifies an application in log entries.
func ApplicationFields(app *placement.Application) []zap.Field {
	if app == nil {
		return nil
	}
	return StringFields(
		StringField{Key: FieldApplicationID, Value: app.ID},
		StringField{Key: FieldStudentID, Value: app.StudentID},
		StringField{Key: FieldJobID, Value: app.JobID},
		StringField{Key: FieldStatus, Value: string(app.Status)},
	)
}

// ErrorFields returns the error and, when known, its engine kind.
func ErrorFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.Error(err)}
	if kind := placement.KindOf(err); kind != "" {
		fields = append(fields, zap.String(FieldErrorKind, string(kind)))
	}
	return fields
}
