// Package errors defines the error taxonomy and error handling utilities for trustkit.
// Every failure surfaced by the token service and the cache accessor is a TrustError
// carrying a stable code, so callers can branch with the Is* predicates.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/turtacn/trustkit/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// TrustError represents a structured error with additional metadata
type TrustError interface {
	error

	// Code returns the error classification
	Code() constants.ErrorCode

	// Description returns a human-readable description of the error class
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) TrustError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) TrustError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a TrustError of the same code.
func (e *baseError) Is(target error) bool {
	t, ok := target.(TrustError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

func (e *baseError) WithCause(cause error) TrustError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) TrustError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructors
// ================================================================================

// NewError creates a new TrustError with the specified parameters
func NewError(code constants.ErrorCode, description string, message string) TrustError {
	return &baseError{
		code:        code,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ErrConfiguration creates a configuration error (malformed TTL expression, division by zero, missing secret)
func ErrConfiguration(message string) TrustError {
	return NewError(constants.ErrCodeConfiguration, "The configuration is missing or malformed.", message)
}

// ErrSerialization creates a serialization error for claims or cached values
func ErrSerialization(message string) TrustError {
	return NewError(constants.ErrCodeSerialization, "A value could not be encoded or decoded.", message)
}

// ErrInstantiation creates an instantiation error for claim targets
func ErrInstantiation(message string) TrustError {
	return NewError(constants.ErrCodeInstantiation, "The target type could not be constructed.", message)
}

// ErrVerification creates a verification error (bad signature, expired token)
func ErrVerification(message string) TrustError {
	return NewError(constants.ErrCodeVerification, "The token failed signature or expiry verification.", message)
}

// ErrCrypto creates a cipher error
func ErrCrypto(message string) TrustError {
	return NewError(constants.ErrCodeCrypto, "The payload cipher failed.", message)
}

// ErrNotFound creates a not found error for a cache key
func ErrNotFound(key string) TrustError {
	return NewError(constants.ErrCodeNotFound, "No value is cached or computable for the key.",
		fmt.Sprintf("data not found for key: %s", key)).
		WithMetadata("key", key)
}

// ErrInvalidArgument creates an invalid argument error
func ErrInvalidArgument(message string) TrustError {
	return NewError(constants.ErrCodeInvalidArgument, "An argument is nil, empty or otherwise invalid.", message)
}

// ErrMissingRequiredParameter creates an invalid argument error naming the parameter
func ErrMissingRequiredParameter(paramName string) TrustError {
	return ErrInvalidArgument(fmt.Sprintf("%s cannot be nil or empty", paramName)).
		WithMetadata("parameter", paramName)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsTrustError finds the first TrustError in err's chain
func AsTrustError(err error) (TrustError, bool) {
	var te TrustError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// WrapError wraps a generic error into a TrustError
func WrapError(err error, code constants.ErrorCode, message string) TrustError {
	return NewError(code, message, message).WithCause(err)
}

// CodeOf returns the code of the first TrustError in err's chain, or "".
func CodeOf(err error) constants.ErrorCode {
	if te, ok := AsTrustError(err); ok {
		return te.Code()
	}
	return ""
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return CodeOf(err) == constants.ErrCodeConfiguration
}

// IsSerializationError checks if an error is a serialization error
func IsSerializationError(err error) bool {
	return CodeOf(err) == constants.ErrCodeSerialization
}

// IsInstantiationError checks if an error is an instantiation error
func IsInstantiationError(err error) bool {
	return CodeOf(err) == constants.ErrCodeInstantiation
}

// IsVerificationError checks if an error is a verification error
func IsVerificationError(err error) bool {
	return CodeOf(err) == constants.ErrCodeVerification
}

// IsCryptoError checks if an error is a cipher error
func IsCryptoError(err error) bool {
	return CodeOf(err) == constants.ErrCodeCrypto
}

// IsNotFoundError checks if an error is a not found error.
func IsNotFoundError(err error) bool {
	return CodeOf(err) == constants.ErrCodeNotFound
}

// IsInvalidArgumentError checks if an error is an invalid argument error
func IsInvalidArgumentError(err error) bool {
	return CodeOf(err) == constants.ErrCodeInvalidArgument
}
