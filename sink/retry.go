package sink

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

// retryableErrorCodes lists the S3/smithy error codes treated as transient,
// per section 4.4's retry policy ("transient network failures and
// provider-classified throttling").
var retryableErrorCodes = map[string]bool{
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
	"SlowDown":             true,
	"RequestTimeout":       true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"RequestTimeTooSkewed": true,
}

// isRetryableError reports whether err is a transient failure worth
// retrying, as opposed to a permanent failure (auth, missing bucket,
// permanent 4xx) that should fail immediately. Classification is
// errors.As-based against the smithy APIError surface, matched by code
// against a fixed set of throttling/transient codes.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return retryableErrorCodes[apiErr.ErrorCode()]
	}
	// Not a classified API error: treat context deadline/cancel as
	// non-retryable (the caller decides whether to retry at all) and
	// anything else (connection reset, DNS hiccup) as a transient network
	// failure worth a retry.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// backoffWait sleeps for attempt's exponentially doubling delay, starting
// at baseDelay: retried up to a fixed maximum with exponential backoff
// starting at 1s and doubling each attempt, no jitter.
func backoffWait(ctx context.Context, attempt int, baseDelay time.Duration) bool {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
