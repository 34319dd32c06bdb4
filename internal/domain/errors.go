package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by read repositories when nothing matches the query
var ErrNotFound = errors.New("not found")

// ImportError reports a malformed or empty ledger. It is fatal to the pipeline.
type ImportError struct {
	Path  string
	Row   int    // 1-based CSV line, 0 when the error concerns the whole file
	Field string // offending field, empty when not field specific
	Err   error
}

func (e *ImportError) Error() string {
	switch {
	case e.Row > 0 && e.Field != "":
		return fmt.Sprintf("import %s: line %d: field %s: %v", e.Path, e.Row, e.Field, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("import %s: line %d: %v", e.Path, e.Row, e.Err)
	default:
		return fmt.Sprintf("import %s: %v", e.Path, e.Err)
	}
}

func (e *ImportError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid configuration value. It is fatal.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProviderError reports a failed call to the price provider.
// It is non-fatal: the caller records it as a warning and moves on.
type ProviderError struct {
	ProviderID string
	StatusCode int // 0 for transport errors
	Retryable  bool
	RetryAfter time.Duration // minimum wait requested by the provider
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.ProviderID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.ProviderID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a ProviderError worth retrying
func IsRetryable(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Retryable
}

// ComputeError reports a structural failure while computing or storing a report
type ComputeError struct {
	Op  string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Op, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }
