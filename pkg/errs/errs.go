// Package errs defines the typed failure taxonomy shared by the ingestion
// pipeline. Each error carries a message and an optional cause so that
// errors.As can classify a failure at the orchestration boundary while the
// original error chain stays intact.
package errs

import "fmt"

// ConfigurationError signals a missing or unsupported provider mapping.
// Fatal for the run; never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// NewConfiguration creates a ConfigurationError with a formatted message.
func NewConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// APIKeyMissingError signals an absent or rejected credential. Fatal for the
// run; never retried.
type APIKeyMissingError struct {
	Msg string
}

func (e *APIKeyMissingError) Error() string { return e.Msg }

// NewAPIKeyMissing creates an APIKeyMissingError with a formatted message.
func NewAPIKeyMissing(format string, args ...interface{}) *APIKeyMissingError {
	return &APIKeyMissingError{Msg: fmt.Sprintf(format, args...)}
}

// RateLimitError signals that the provider reported throttling inside an
// otherwise successful response. Retryable by the external scheduler only.
type RateLimitError struct {
	Msg string
}

func (e *RateLimitError) Error() string { return e.Msg }

// NewRateLimit creates a RateLimitError with a formatted message.
func NewRateLimit(format string, args ...interface{}) *RateLimitError {
	return &RateLimitError{Msg: fmt.Sprintf(format, args...)}
}

// FetchError signals a transport, HTTP, or decoding failure while pulling
// data from a provider.
type FetchError struct {
	Msg   string
	Cause error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *FetchError) Unwrap() error { return e.Cause }

// NewFetch creates a FetchError wrapping cause. Cause may be nil.
func NewFetch(cause error, format string, args ...interface{}) *FetchError {
	return &FetchError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// DataProcessingError signals a normalization or write failure.
type DataProcessingError struct {
	Msg   string
	Cause error
}

func (e *DataProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *DataProcessingError) Unwrap() error { return e.Cause }

// NewDataProcessing creates a DataProcessingError wrapping cause. Cause may
// be nil.
func NewDataProcessing(cause error, format string, args ...interface{}) *DataProcessingError {
	return &DataProcessingError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}
