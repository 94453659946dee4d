package xconn

import (
	"fmt"

	"github.com/pkg/errors"
)

// outcome classifies one attempt against a single target.
type outcome uint8

const (
	outcomeOK outcome = iota
	outcomeHTTP503
	outcomeHTTP504
	outcomeFatalHTTP
	outcomeTimeoutOrIO
	outcomeConnectFailure
)

// AttemptTimeoutError is returned internally when a single attempt exceeds
// its response-timeout budget.
type AttemptTimeoutError struct {
	target Target
}

func (e AttemptTimeoutError) Error() string {
	return fmt.Sprintf("attempt against '%s' timed out", e.target.String())
}

// ConnectError wraps a failure that occurred before the HTTP exchange
// completed (DNS, TCP connect, TLS handshake).
type ConnectError struct {
	target Target
	cause  error
}

func (e ConnectError) Error() string {
	return fmt.Sprintf("could not connect to '%s': %s", e.target.String(), e.cause)
}

func (e ConnectError) Unwrap() error { return e.cause }

// wrapConnect annotates a raw dial/handshake error with the target it was
// attempted against, preserving the cause chain with github.com/pkg/errors.
func wrapConnect(target Target, cause error) error {
	return ConnectError{target: target, cause: errors.WithStack(cause)}
}

// classify maps a raw transport outcome to one of the outcome buckets.
func classify(status int, transportErr error) outcome {
	switch {
	case transportErr != nil:
		switch transportErr.(type) {
		case AttemptTimeoutError:
			return outcomeTimeoutOrIO
		case ConnectError:
			return outcomeConnectFailure
		default:
			return outcomeTimeoutOrIO
		}
	case status == 503:
		return outcomeHTTP503
	case status == 504:
		return outcomeHTTP504
	case status >= 400:
		return outcomeFatalHTTP
	default:
		return outcomeOK
	}
}
