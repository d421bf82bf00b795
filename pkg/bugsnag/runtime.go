// runtime.go captures process state at notification time.

package bugsnag

import (
	"runtime"
	"time"
)

// RuntimeState captures process metrics at the time of an error.
type RuntimeState struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of active goroutines.
	GoroutineCount int

	// UptimeMs is the client uptime in milliseconds.
	UptimeMs int64

	// NumCPU is the number of logical CPUs.
	NumCPU int
}

// CaptureRuntimeState captures runtime metrics at the current moment.
// The startTime parameter is used to calculate uptime.
func CaptureRuntimeState(startTime time.Time) *RuntimeState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptimeMs := time.Since(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0 // Clamp to 0 if start time is in the future
	}

	return &RuntimeState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
		NumCPU:         runtime.NumCPU(),
	}
}

// MetaData renders the state as a metadata section.
func (s *RuntimeState) MetaData() map[string]any {
	return map[string]any{
		"memoryBytes":    s.MemoryBytes,
		"goroutineCount": s.GoroutineCount,
		"uptimeMs":       s.UptimeMs,
		"numCPU":         s.NumCPU,
	}
}
