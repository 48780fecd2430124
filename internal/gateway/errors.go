package gateway

import (
	"fmt"
	"regexp"
)

// APIError carries a non-2xx gateway response. The caller decides the
// retry policy.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// InvalidSplitError marks an initialize rejected because the stored
// split code no longer exists on the gateway. The orchestrator clears
// the cached split and retries once.
type InvalidSplitError struct {
	SplitCode string
	Body      string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("gateway rejected split code %s: %s", e.SplitCode, e.Body)
}

// TimeoutError distinguishes a slow or unreachable gateway from a
// semantic rejection.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gateway call %s timed out", e.Op)
}

var invalidSplitPattern = regexp.MustCompile(`(?i)invalid split code`)

func isInvalidSplitBody(body string) bool {
	return invalidSplitPattern.MatchString(body)
}
