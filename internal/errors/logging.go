package errors

import (
	stderrors "errors"

	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with structured error logging
type Logger struct {
	*logrus.Logger
}

func NewLogger(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Logger{Logger: base}
}

// LogError logs err at error level with its code and context fields
func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Error(message)
}

// LogWarn logs err at warn level with its code and context fields
func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Warn(message)
}

// LogRetryableError logs retryable errors at warn level and everything else at error level
func (l *Logger) LogRetryableError(err error, message string, fields ...logrus.Fields) {
	if IsRetryable(err) {
		l.LogWarn(err, message, fields...)
		return
	}
	l.LogError(err, message, fields...)
}

func (l *Logger) entry(err error, fields []logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		if len(appErr.Context) > 0 {
			entry = entry.WithFields(logrus.Fields(privacy.MaskSensitiveFields(appErr.Context)))
		}
	}

	// Identifiers in context fields are masked like everywhere else.
	for _, f := range fields {
		entry = entry.WithFields(logrus.Fields(privacy.MaskSensitiveFields(f)))
	}
	return entry
}
