package queue

import "strings"

// ClassifyReason buckets a handler error into a coarse failure reason for
// retry metrics and logs.
func ClassifyReason(err error) string {
	if err == nil {
		return "other"
	}
	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errLower, "connection refused"):
		return "connection_refused"
	case strings.Contains(errLower, "no such host"), strings.Contains(errLower, "dns"):
		return "dns_error"
	case strings.Contains(errLower, "status 5"):
		return "http_5xx"
	case strings.Contains(errLower, "status 429"):
		return "http_429"
	case strings.Contains(errLower, "status 4"):
		return "http_4xx"
	case strings.Contains(errLower, "session expired"), strings.Contains(errLower, "session invalid"):
		return "session_expired"
	case strings.Contains(errLower, "panic"):
		return "panic"
	default:
		return "network"
	}
}
