package service

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// statusCoder is implemented by adapter errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// retryableRemoteError classifies a remote failure. Rate limits and server
// errors are retryable; other HTTP rejections are not. Errors without a
// status (network level) are treated as retryable.
func retryableRemoteError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 429 || code >= 500
	}
	return true
}

// initialBackOff builds an exponential backoff starting at initial.
func initialBackOff(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	return b
}
