// Package constants defines toolkit-wide constants for trustkit.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Constants
// ================================================================================

const (
	// DefaultTTLExpression is the token lifetime used when none is configured (15 days)
	DefaultTTLExpression = "15 * 24 * 60 * 60"

	// ClaimExpiresAt is the reserved claim holding the expiry timestamp
	ClaimExpiresAt = "exp"

	// ClaimIssuedAt is the reserved claim holding the issue timestamp
	ClaimIssuedAt = "iat"

	// ClaimTokenID is the reserved claim holding the unique token id
	ClaimTokenID = "jti"

	// ClaimNotBefore is type-checked by the verifier whenever present, so a payload
	// may not carry it as an encoded value
	ClaimNotBefore = "nbf"
)

// ReservedClaims lists claim names a payload may not expose.
var ReservedClaims = []string{ClaimExpiresAt, ClaimIssuedAt, ClaimTokenID, ClaimNotBefore}

// ================================================================================
// Cache Constants
// ================================================================================

const (
	// DefaultCacheTTL is the expiry applied to values populated by the accessor (1 hour)
	DefaultCacheTTL = 1 * time.Hour

	// DefaultLockShards is the number of lock stripes in the accessor's lock pool
	DefaultLockShards = 256

	// SlowSupplierThreshold marks supplier calls that are logged as slow
	SlowSupplierThreshold = 1 * time.Second
)

// ================================================================================
// Configuration Constants
// ================================================================================

const (
	// ConfigName is the base name of the configuration file
	ConfigName = "trustkit"

	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "TRUSTKIT"

	// DefaultMetricsNamespace is the Prometheus namespace for exported metrics
	DefaultMetricsNamespace = "trustkit"

	// DefaultServiceName is the tracing service name
	DefaultServiceName = "trustkit"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode classifies toolkit errors
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a malformed TTL expression or invalid setting
	ErrCodeConfiguration ErrorCode = "configuration_error"

	// ErrCodeSerialization indicates a claim value that cannot be encoded or decoded
	ErrCodeSerialization ErrorCode = "serialization_error"

	// ErrCodeInstantiation indicates a target that cannot receive claims
	ErrCodeInstantiation ErrorCode = "instantiation_error"

	// ErrCodeVerification indicates a bad signature or an expired token
	ErrCodeVerification ErrorCode = "verification_error"

	// ErrCodeCrypto indicates a cipher init, encrypt or decrypt failure
	ErrCodeCrypto ErrorCode = "crypto_error"

	// ErrCodeNotFound indicates a cache miss with nothing to compute
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInvalidArgument indicates an empty key, token or payload
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"
)
