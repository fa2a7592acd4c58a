// Package httpretry wraps an HTTP client with retries for transient server
// failures. Throttling (429) is returned to the caller untouched so that the
// dispatch executor can back off at batch granularity.
package httpretry

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic.
type RetryClient struct {
	client HTTPDoer
	policy retry.Policy
}

// NewRetryClient creates a RetryClient around client using policy for delays.
func NewRetryClient(client HTTPDoer, policy retry.Policy) *RetryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RetryClient{client: client, policy: policy}
}

// Do executes the request, retrying 5xx responses and network errors. On the
// final attempt the response is returned as-is so the caller can read it.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	maxRetries := rc.policy.Retries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.policy.Delay(attempt)
			logger.Debug("httpretry: retrying request",
				"attempt", attempt, "max", maxRetries, "host", req.URL.Host, "path", req.URL.Path, "wait", delay)
			if err := retry.Sleep(req.Context(), delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// isRetryableStatus reports transient upstream failures. 429 is deliberately
// absent: it is surfaced as throttling.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
