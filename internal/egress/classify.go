// Package egress drains the outbound work queue: one worker per
// (tenant, platform) pair translating, rate limiting, and delivering
// messages to the platform APIs.
package egress

import (
	"net/http"
	"strconv"
	"time"
)

// Outcome is the routing decision for one delivery attempt.
type Outcome int

const (
	// OutcomeOK acknowledges the message.
	OutcomeOK Outcome = iota
	// OutcomeRetryAfter redelivers after the platform-provided delay.
	OutcomeRetryAfter
	// OutcomeRetryable retries in-process with backoff.
	OutcomeRetryable
	// OutcomeTerminal dead-letters the message immediately.
	OutcomeTerminal
)

// Classification is the verdict over one platform API response.
type Classification struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Code       string
}

const defaultRetryAfter = 30 * time.Second

// Classify maps an HTTP response (or transport error) onto the retry
// policy: 2xx ack, 429 honor Retry-After, 5xx and transport errors
// retry with backoff, remaining 4xx dead-letter.
func Classify(status int, header http.Header, err error) Classification {
	switch {
	case err != nil:
		return Classification{Outcome: OutcomeRetryable, Code: "transport"}
	case status >= 200 && status < 300:
		return Classification{Outcome: OutcomeOK}
	case status == http.StatusTooManyRequests:
		return Classification{Outcome: OutcomeRetryAfter, RetryAfter: retryAfter(header)}
	case status >= 500:
		return Classification{Outcome: OutcomeRetryable, Code: "server"}
	default:
		return Classification{Outcome: OutcomeTerminal, Code: "client"}
	}
}

// retryAfter parses the Retry-After header, accepting both delay
// seconds and an HTTP-date.
func retryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 1 {
			secs = 1
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return time.Second
	}
	return defaultRetryAfter
}
