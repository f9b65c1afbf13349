package messaging

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// retryPolicy retries provider calls only when the provider cannot have
// accepted the message, so a retry never texts the patient twice.
type retryPolicy struct {
	attempts int
	backoff  func(attempt int) time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts: 3,
		backoff:  func(attempt int) time.Duration { return time.Duration(200*attempt) * time.Millisecond },
	}
}

// do runs call until it succeeds, reports the error as final, or attempts
// run out. call returns whether a failure is worth retrying.
func (p retryPolicy) do(ctx context.Context, call func(context.Context) (retry bool, err error)) error {
	attempts := p.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		var retry bool
		if retry, err = call(ctx); err == nil || !retry || attempt >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
}

// transientStatus covers responses that mean the request was not processed.
// A 500 or a gateway error may follow a send, so those are final.
func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// unsent reports whether a transport error happened before the request
// reached the provider.
func unsent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
