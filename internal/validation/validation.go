package validation

import (
	"fmt"
	"unicode"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/errors"
)

// ValidateSessionName checks a gateway session or instance name. Both
// gateways put it in URL paths.
func ValidateSessionName(sessionName string) error {
	if sessionName == "" {
		return errors.New(errors.ErrCodeInvalidInput, "session name cannot be empty")
	}

	if len(sessionName) > constants.MaxSessionNameLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("session name too long (max %d characters)", constants.MaxSessionNameLength))
	}

	for _, char := range sessionName {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return errors.New(errors.ErrCodeInvalidInput,
				"session name must contain only letters, numbers, dots, underscores, and dashes")
		}
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 { // Max 1 hour
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}

// ValidateBodySize rejects a declared content length above maxBytes. An
// unknown length (-1) passes; the body reader enforces the limit then.
func ValidateBodySize(contentLength, maxBytes int64) error {
	if contentLength > maxBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", contentLength, maxBytes))
	}
	return nil
}
