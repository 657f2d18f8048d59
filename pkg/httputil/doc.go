// Package httputil provides retry helpers for HTTP clients of the sync
// service.
//
// # Retry
//
// [Retry] repeats an operation with exponential backoff, but only for errors
// wrapped in [RetryableError]. Callers decide what is transient:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := http.Get(url)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    defer resp.Body.Close()
//	    if httputil.RetryableStatus(resp.StatusCode) {
//	        return httputil.Retryable(fmt.Errorf("status %d", resp.StatusCode))
//	    }
//	    return decode(resp.Body)
//	})
//
// Only idempotent requests should be retried. Mutations sent to /sync are
// not, since a timed-out request may already have been applied.
//
// # Configuration
//
//   - Default attempts: 3
//   - Initial delay: 500ms, doubling after each failure
package httputil
