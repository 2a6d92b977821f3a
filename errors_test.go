package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("read tcp 10.0.0.1:443: connection reset by peer")

// recordingLogger captures formatted log lines for assertions.
type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Log(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCodeFor(nil))
	assert.Equal(t, ExitNoToken, ExitCodeFor(&ExtractionError{Missing: MissingCSRFToken}))
	assert.Equal(t, ExitNoRoute, ExitCodeFor(&ExtractionError{Missing: MissingFleetRoute}))
	assert.Equal(t, ExitFailure, ExitCodeFor(errors.New("something else")))

	// Wrapped extraction errors still map to their dedicated code.
	wrapped := fmt.Errorf("pipeline: %w", &ExtractionError{Missing: MissingCSRFToken})
	assert.Equal(t, ExitNoToken, ExitCodeFor(wrapped))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(errTransient))
	assert.True(t, IsRetryableError(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsRetryableError(&NetworkError{Stage: "navigate", Err: errors.New("unexpected EOF")}))

	// Extraction failures mean the page changed; retrying burns requests.
	assert.False(t, IsRetryableError(&ExtractionError{Missing: MissingCSRFToken}))
	assert.False(t, IsRetryableError(&NetworkError{Stage: "navigate", Status: 403}))
}

func TestNetworkErrorMessages(t *testing.T) {
	withErr := &NetworkError{Stage: "warm-up", Err: errors.New("refused")}
	assert.Equal(t, "warm-up: refused", withErr.Error())
	assert.Equal(t, "refused", errors.Unwrap(withErr).Error())

	statusOnly := &NetworkError{Stage: "data fetch (full)", Status: 503}
	assert.Equal(t, "data fetch (full): unexpected status 503", statusOnly.Error())
}
