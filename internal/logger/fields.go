package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the LLM provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the LLM model identifier.
	FieldModel = "ai_model"

	FieldChain = "chain"
	FieldStage = "stage"
	FieldTier  = "tier"

	FieldEmail       = "email"
	FieldInterviewID = "interview_id"
	FieldDomain      = "domain"
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

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced with a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns fields that describe an LLM provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the provider and model fields to the logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// StageFields describes one stage of a fallback chain.
func StageFields(chain, stage, tier string) []zap.Field {
	return StringFields(
		StringField{Key: FieldChain, Value: chain},
		StringField{Key: FieldStage, Value: stage},
		StringField{Key: FieldTier, Value: tier},
	)
}

// SessionFields identifies a candidate session. The email is masked down to its
// first character and domain part.
func SessionFields(email, interviewID, domain string) []zap.Field {
	return StringFields(
		StringField{Key: FieldEmail, Value: MaskEmail(email)},
		StringField{Key: FieldInterviewID, Value: interviewID},
		StringField{Key: FieldDomain, Value: domain},
	)
}

// MaskEmail keeps the first rune of the local part and the whole host.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local := []rune(email[:at])
	return string(local[0]) + "***" + email[at:]
}
