package tts

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrProviderUnavailable indicates the cloud provider has no usable voice
	ErrProviderUnavailable = errors.New("voice provider unavailable")

	// ErrSynthesisFailed indicates the cloud synthesis call failed
	ErrSynthesisFailed = errors.New("cloud synthesis failed")

	// ErrConversion indicates the source audio could not be converted
	ErrConversion = errors.New("audio conversion failed")

	// ErrPersistence indicates the durable store could not be written
	ErrPersistence = errors.New("cache persistence failed")

	// ErrStaleArtifact indicates a matched record has no readable audio on disk
	ErrStaleArtifact = errors.New("cached audio artifact missing or corrupt")

	// ErrFallbackFailed indicates offline synthesis failed; nothing is left to try
	ErrFallbackFailed = errors.New("offline synthesis failed")

	// ErrUnknownEffect indicates an effect token outside KnownEffects
	ErrUnknownEffect = errors.New("unknown effect")

	// ErrEmptyText indicates the request carried no text
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Error represents a pipeline error with additional context
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	ErrorCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorCodeSynthesisFailed     ErrorCode = "SYNTHESIS_FAILED"
	ErrorCodeConversionFailed    ErrorCode = "CONVERSION_FAILED"
	ErrorCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"
	ErrorCodeStaleArtifact       ErrorCode = "STALE_ARTIFACT"
	ErrorCodeFallbackFailed      ErrorCode = "FALLBACK_FAILED"
	ErrorCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorCodeTimeout             ErrorCode = "TIMEOUT"
)

// sentinels maps each code to the sentinel errors.Is should match.
var sentinels = map[ErrorCode]error{
	ErrorCodeProviderUnavailable: ErrProviderUnavailable,
	ErrorCodeSynthesisFailed:     ErrSynthesisFailed,
	ErrorCodeConversionFailed:    ErrConversion,
	ErrorCodePersistenceFailed:   ErrPersistence,
	ErrorCodeStaleArtifact:       ErrStaleArtifact,
	ErrorCodeFallbackFailed:      ErrFallbackFailed,
	ErrorCodeTimeout:             ErrTimeout,
}

// Is lets errors.Is match an *Error against the sentinel for its code.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// NewError creates a new pipeline error
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsFatal returns true if the error must be reported to the caller.
// Everything except a failed fallback is recovered inside the pipeline.
func (e *Error) IsFatal() bool {
	return e.Code == ErrorCodeFallbackFailed
}

// IsFatal reports whether err ends a request.
func IsFatal(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.IsFatal()
	}
	return errors.Is(err, ErrFallbackFailed)
}
