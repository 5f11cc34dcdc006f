package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	// ErrMissingToken means the anti-bot token was not configured. Fatal at
	// session initialization; never retried.
	ErrMissingToken = errors.New("anti-bot token not configured")

	// ErrProductDeleted means the detail page reports the product as gone.
	// This is content absence, not a failure.
	ErrProductDeleted = errors.New("product deleted")

	// ErrCategoryEmpty means the category listing reports zero products.
	// Callers use it to infer deletion of everything the category held.
	ErrCategoryEmpty = errors.New("category has no products")

	ErrMaxRetries     = errors.New("max retries exceeded")
	ErrProxyExhausted = errors.New("all proxies exhausted")
	ErrEmptyResponse  = errors.New("empty response body")
)

// ErrorClass partitions fetch failures by how the caller should react.
type ErrorClass int

const (
	// ClassTransient covers network-level failures and 5xx responses.
	// Retryable with the standard backoff profile.
	ClassTransient ErrorClass = iota

	// ClassSoftBlock covers 403/405/503 anti-bot responses. Retryable, but
	// the current proxy is discarded first.
	ClassSoftBlock

	// ClassRateLimited covers 429. Retryable with the longer backoff profile.
	ClassRateLimited

	// ClassFatal covers everything that must not be retried: bad requests,
	// cancelled contexts, configuration failures.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassSoftBlock:
		return "soft_block"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "fatal"
	}
}

// FetchError wraps errors that occur while talking to the storefront.
type FetchError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
	RetryAfter time.Duration // populated from Retry-After on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d, %s): %v", e.URL, e.StatusCode, e.Class, e.Err)
	}
	return fmt.Sprintf("fetch error for %s (%s): %v", e.URL, e.Class, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the retry wrapper may attempt the request again.
func (e *FetchError) Retryable() bool { return e.Class != ClassFatal }

// ValidationError marks a harvested record that failed required-field
// validation after default substitution. The record is dropped and counted,
// never persisted.
type ValidationError struct {
	ProductNo string
	Missing   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("product %s missing required fields %v", e.ProductNo, e.Missing)
}

// StorageError wraps errors from a report/failure-log sink backend.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
