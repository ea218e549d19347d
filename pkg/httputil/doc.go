// Package httputil provides retry helpers shared by the GitHub client, the LLM
// providers and the storage backends.
//
// [Retry] runs an operation with exponential backoff (built on
// cenkalti/backoff). Only errors wrapped in [RetryableError] are retried;
// everything else is returned on the first failure:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// Defaults for [RetryWithBackoff]: 3 attempts, 1 second initial delay,
// doubling after each failure.
package httputil
