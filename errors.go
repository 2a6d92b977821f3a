package main

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Missing-element names for ExtractionError.
const (
	MissingCSRFToken  = "csrf-token"
	MissingFleetRoute = "fleet-route"
)

// ExtractionError means the target page did not contain an element the
// pipeline depends on. Fatal: the page structure changed or we were served
// something that is not the expected document, so retrying without
// investigation only burns requests.
type ExtractionError struct {
	Missing string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("markup extraction failed: %s not found", e.Missing)
}

// ErrClientSetup marks a failure constructing the TLS client. Unlike a
// per-company network failure this means the environment is broken (bad proxy
// URL, unusable profile) and every subsequent run would fail the same way, so
// the scheduler treats it as fatal for the whole batch.
var ErrClientSetup = errors.New("failed to create client")

// NetworkError wraps a transport or status failure with the pipeline stage it
// happened in, so diagnostics can tell a failed warm-up from a failed data fetch.
type NetworkError struct {
	Stage  string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Stage, e.Status)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Process exit codes. An automation caller must be able to tell "page changed"
// from "still blocked" without parsing log output.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitNoToken   = 2
	ExitNoRoute   = 3
	ExitBlocked   = 4
	ExitMalformed = 5
)

// ExitCodeFor maps a pipeline error to its process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		switch ee.Missing {
		case MissingCSRFToken:
			return ExitNoToken
		case MissingFleetRoute:
			return ExitNoRoute
		}
	}
	return ExitFailure
}

// retryableErrorPatterns contains error message substrings that indicate retryable errors.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"TLS handshake timeout",
	"EOF",
	"malformed HTTP response",
	"transport connection broken",
	"use of closed network connection",
}

// IsRetryableError reports whether the error is a transient transport failure.
// Only the batch scheduler consults this, and only while establishing a
// session; the data-fetch fallback in the orchestrator is a protocol-level
// retry with a different request shape, never a blind network retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var ee *ExtractionError
	if errors.As(err, &ee) {
		return false
	}

	if isNetworkTimeout(err) {
		return true
	}

	return containsRetryablePattern(err.Error())
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func containsRetryablePattern(errStr string) bool {
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
