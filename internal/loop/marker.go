package loop

import (
	"strings"
)

// Marker delimiters. The agent is instructed to wrap its signal in these
// exact tags; anything outside them is prose and never matches.
const (
	markerOpen    = "<verification>"
	markerClose   = "</verification>"
	protocolClose = "</verification_protocol>"
	retryPrefix   = "NEEDS_RETRY:"
)

// DefaultCompletionMarker is the success token unless overridden per run.
const DefaultCompletionMarker = "VERIFICATION_COMPLETE"

// MarkerResult is the outcome of scanning one iteration's log.
type MarkerResult struct {
	Completed   bool
	Retry       bool
	RetryReason string
}

// ScanForMarker parses log content for a completion or retry signal.
//
// Only text after the last </verification_protocol> is considered: the
// injected instructions themselves contain example markers, and some CLIs
// echo the prompt into the log. Within that region, signals must appear
// inside <verification> tags; a bare "complete" in prose never matches. An
// explicit retry request wins over a completion marker.
func ScanForMarker(logContent, completionMarker string) MarkerResult {
	search := logContent
	if i := strings.LastIndex(logContent, protocolClose); i >= 0 {
		search = logContent[i+len(protocolClose):]
	}

	var result MarkerResult
	for {
		open := strings.Index(search, markerOpen)
		if open < 0 {
			break
		}
		rest := search[open+len(markerOpen):]
		close := strings.Index(rest, markerClose)
		if close < 0 {
			break
		}
		body := strings.TrimSpace(rest[:close])
		search = rest[close+len(markerClose):]

		if reason, ok := cutRetry(body); ok {
			// First retry request wins; no need to scan further.
			return MarkerResult{Retry: true, RetryReason: reason}
		}
		if strings.EqualFold(body, completionMarker) {
			result.Completed = true
		}
	}
	return result
}

func cutRetry(body string) (string, bool) {
	if len(body) < len(retryPrefix) || !strings.EqualFold(body[:len(retryPrefix)], retryPrefix) {
		return "", false
	}
	return strings.TrimSpace(body[len(retryPrefix):]), true
}
