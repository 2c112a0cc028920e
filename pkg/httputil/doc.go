// Package httputil holds the HTTP plumbing shared by tile fetchers and
// token endpoints.
//
//   - [NewClient]: an *http.Client with a timeout and a fixed User-Agent
//   - [Retry]: automatic retry with exponential backoff
//
// # Retry
//
// Only errors wrapped in [RetryableError] are retried. Callers decide what is
// transient; tile fetchers wrap transport failures and 5xx responses:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    data, err = fetchOnce(ctx)
//	    return err
//	})
//
// Defaults are 3 attempts with a 1 second initial delay, doubling each time.
package httputil
