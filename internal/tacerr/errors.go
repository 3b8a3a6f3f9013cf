// Package tacerr defines the error taxonomy shared by every core package:
// sentinel errors for errors.Is classification, wrapped in concrete types
// that carry enough context (status code, request detail) for logging.
package tacerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, tacerr.ErrNotFound) to check.
var (
	ErrAuthn       = errors.New("tacl: authentication failed")
	ErrAuthz       = errors.New("tacl: not authorized")
	ErrBadRequest  = errors.New("tacl: bad request")
	ErrNotFound    = errors.New("tacl: not found")
	ErrConflict    = errors.New("tacl: conflict")
	ErrGone        = errors.New("tacl: resource gone")
	ErrLocked      = errors.New("tacl: resource locked")
	ErrServerError = errors.New("tacl: server error")
	ErrConnection  = errors.New("tacl: connection failed")
	ErrTimeout     = errors.New("tacl: timed out")

	// ErrResumeIntegrity is fatal for the current upload: the locally
	// computed MD5 of the already-committed range does not match the
	// server's record. The caller must delete the server-side resumable
	// and restart from scratch.
	ErrResumeIntegrity = errors.New("tacl: local data does not match server's committed chunk")
)

// Cache operational errors.
var (
	ErrCacheConnection    = errors.New("tacl: cache connection failed")
	ErrCacheCreation      = errors.New("tacl: cache table creation failed")
	ErrCacheExistence     = errors.New("tacl: cache table does not exist")
	ErrCacheDuplicateItem = errors.New("tacl: duplicate cache row")
	ErrCacheDestroy       = errors.New("tacl: cache table drop failed")
	ErrCacheItemType      = errors.New("tacl: unexpected cache row type")
)

// APIError wraps a sentinel error with the HTTP status code and a short
// description of the failed request, for logging and errors.Is-based
// classification.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tacl: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func ClassifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrAuthn
	case http.StatusForbidden:
		return ErrAuthz
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// IsRetryable reports whether the retry wrapper (internal/retry) should
// retry a response carrying this status code: 500 and 504 only —
// everything else is either terminal success, a non-retryable 4xx, or an
// unexpected 5xx outside the documented retry set.
func IsRetryable(code int) bool {
	return code == http.StatusInternalServerError || code == http.StatusGatewayTimeout
}

// CacheError wraps a cache-operation sentinel with the offending table key.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("tacl: cache %q: %s", e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
