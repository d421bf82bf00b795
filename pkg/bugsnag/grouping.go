// grouping.go generates stable hashes for grouping similar events locally.

package bugsnag

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint generates a hash for grouping similar events.
// The fingerprint is based on:
//   - the error class of the first exception
//   - the first 3 in-project methods, or the first 3 methods when no frame is in-project
//
// It ignores messages, line numbers and metadata. An explicit GroupingHash wins.
func Fingerprint(event *Event) string {
	if event.GroupingHash != "" {
		return event.GroupingHash
	}

	parts := []string{event.ErrorClass()}
	if len(event.Exceptions) > 0 {
		parts = append(parts, topMethods(event.Exceptions[0].Stacktrace, 3)...)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))

	// Return hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}

func topMethods(frames []StackFrame, n int) []string {
	var methods []string
	for _, f := range frames {
		if f.InProject {
			methods = append(methods, f.Method)
			if len(methods) == n {
				return methods
			}
		}
	}
	if len(methods) > 0 {
		return methods
	}
	for _, f := range frames {
		methods = append(methods, f.Method)
		if len(methods) == n {
			break
		}
	}
	return methods
}
