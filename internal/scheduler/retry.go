package scheduler

import (
	"strings"
	"time"
)

// retryableFragments is the fixed vocabulary of error-text fragments that
// mark a handler failure as transient. HTTP status codes are matched as
// literal substrings.
var retryableFragments = []string{
	"rate limit",
	"timeout",
	"network",
	"connection",
	"reset",
	"socket hang up",
	"temporary",
	"retry",
	"429",
	"500",
	"503",
	"504",
}

// Retryable classifies a handler error by case-insensitive substring match
// against the retryable vocabulary.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// BackoffDelay returns the exponential backoff delay for the attempt after
// `retries` consumed retries: base * 2^retries.
func BackoffDelay(base time.Duration, retries int) time.Duration {
	delay := base
	for i := 0; i < retries; i++ {
		delay *= 2
	}
	return delay
}
