// Package retry implements a bounded-attempt retry/reconnect wrapper:
// execute one HTTP request with bounded attempts, absorbing transient
// upstream 500/504 responses and connection failures, and handing the
// caller a (possibly rebuilt) HTTP client to reuse on the next call.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/unioslo/tacl/internal/tacerr"
)

// MaxAttempts is the initial retry counter: the counter starts at 5 and
// the last failure is raised once it reaches zero.
const MaxAttempts = 5

// ReconnectSleep is the fixed sleep before rebuilding the connection pool
// after a connection error.
const ReconnectSleep = 5 * time.Second

// RequestFunc builds and issues one HTTP request using client. It must not
// retry internally — the wrapper owns retry/backoff.
type RequestFunc func(ctx context.Context, client *http.Client) (*http.Response, error)

// Result is returned by Do: the final response (nil on a transport-level
// failure after exhausting all attempts), the client the caller should
// keep using (may be a freshly built pool if a reconnect happened), and
// whether a reconnect occurred at least once.
type Result struct {
	Response   *http.Response
	Client     *http.Client
	Reconnected bool
}

// newConnectionPool builds a fresh *http.Client bound to the same verb
// semantics as the caller's original client (timeout preserved) — in Go
// terms, a new *http.Transport discards pooled (possibly broken)
// connections.
func newConnectionPool(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

// Do executes fn with bounded retries, classifying each outcome as:
//
//   - 2xx -> return success;
//   - 4xx -> return immediately, non-retryable;
//   - 500 or 504 -> decrement the counter, retry; raise the last status
//     once the counter reaches zero;
//   - connection error (fn returns err, no response) -> sleep 5s, rebuild
//     the connection pool, set the reconnect flag, decrement, retry.
//
// The bounded-attempt/backoff mechanics are driven by
// github.com/sethvargo/go-retry's constant backoff combinator; the
// classification policy above is TACL's own, layered on top.
func Do(ctx context.Context, client *http.Client, logger *slog.Logger, fn RequestFunc) (Result, error) {
	return do(ctx, client, logger, ReconnectSleep, fn)
}

// do is Do's implementation with an injectable reconnect sleep, so tests can
// run the full bounded-retry loop without waiting out ReconnectSleep for
// real.
func do(ctx context.Context, client *http.Client, logger *slog.Logger, sleep time.Duration, fn RequestFunc) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backoff, err := retry.NewConstant(sleep)
	if err != nil {
		return Result{}, err
	}

	backoff = retry.WithMaxRetries(MaxAttempts-1, backoff)

	result := Result{Client: client}
	attempt := 0

	runErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		resp, doErr := fn(ctx, result.Client)
		if doErr != nil {
			logger.Warn("connection error, reconnecting",
				slog.Int("attempt", attempt),
				slog.String("error", doErr.Error()),
			)

			result.Client = newConnectionPool(result.Client.Timeout)
			result.Reconnected = true

			return retry.RetryableError(tacerr.ErrConnection)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			result.Response = resp
			return nil
		}

		if tacerr.IsRetryable(resp.StatusCode) {
			logger.Warn("retryable HTTP status, retrying",
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode),
			)

			resp.Body.Close()

			return retry.RetryableError(&tacerr.APIError{
				StatusCode: resp.StatusCode,
				Message:    "upstream error",
				Err:        tacerr.ErrServerError,
			})
		}

		// 4xx and any other non-2xx/non-retryable status: return as-is,
		// not retryable.
		result.Response = resp

		return &tacerr.APIError{
			StatusCode: resp.StatusCode,
			Message:    "request failed",
			Err:        tacerr.ClassifyStatus(resp.StatusCode),
		}
	})

	if runErr != nil {
		var apiErr *tacerr.APIError
		if errors.As(runErr, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
			return result, apiErr
		}

		return result, runErr
	}

	return result, nil
}
