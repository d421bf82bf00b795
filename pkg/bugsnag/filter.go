// filter.go redacts sensitive metadata and bounds message sizes before delivery.

package bugsnag

import (
	"reflect"
	"strings"
	"unicode/utf8"
	"unsafe"
)

const (
	// Filtered replaces the value of any metadata key matching a params filter.
	Filtered = "[FILTERED]"

	// Recursive replaces a map or slice that contains itself.
	Recursive = "[RECURSIVE]"

	// DepthExceeded replaces values nested deeper than maxFilterDepth.
	DepthExceeded = "[DEPTH EXCEEDED]"
)

const maxFilterDepth = 32

// FilterConfig controls filtering behavior.
type FilterConfig struct {
	// ParamsFilters are case-insensitive key fragments whose values are redacted.
	ParamsFilters []string

	// MaxMessageSize is the maximum length for exception messages (default: 4096).
	MaxMessageSize int

	// MaxValueSize is the maximum length for string metadata values (default: 1024).
	MaxValueSize int
}

// DefaultFilterConfig returns defaults for the given params filters.
func DefaultFilterConfig(paramsFilters []string) FilterConfig {
	return FilterConfig{
		ParamsFilters:  paramsFilters,
		MaxMessageSize: 4096,
		MaxValueSize:   1024,
	}
}

// Filter redacts sensitive data from events.
type Filter struct {
	cfg     FilterConfig
	filters []string
}

// NewFilter creates a filter with the given configuration.
func NewFilter(cfg FilterConfig) *Filter {
	filters := make([]string, 0, len(cfg.ParamsFilters))
	for _, f := range cfg.ParamsFilters {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			filters = append(filters, f)
		}
	}
	return &Filter{cfg: cfg, filters: filters}
}

// FilterEvent applies message, metadata and breadcrumb filtering to event in place.
func (f *Filter) FilterEvent(event *Event) {
	for i := range event.Exceptions {
		event.Exceptions[i].Message = f.FilterMessage(event.Exceptions[i].Message)
	}
	event.MetaData = f.FilterMetaData(event.MetaData)
	for i := range event.Breadcrumbs {
		if event.Breadcrumbs[i].MetaData != nil {
			event.Breadcrumbs[i].MetaData = f.filterSection(event.Breadcrumbs[i].MetaData)
		}
	}
}

// FilterMessage truncates messages longer than MaxMessageSize.
func (f *Filter) FilterMessage(msg string) string {
	if f.cfg.MaxMessageSize > 0 && len(msg) > f.cfg.MaxMessageSize {
		return truncateWithMarker(msg, f.cfg.MaxMessageSize)
	}
	return msg
}

// FilterMetaData returns a copy of md with sensitive keys redacted at any depth.
// Self-referencing maps and slices are replaced with Recursive.
func (f *Filter) FilterMetaData(md MetaData) MetaData {
	if md == nil {
		return nil
	}

	result := make(MetaData, len(md))
	for section, values := range md {
		result[section] = f.filterSection(values)
	}
	return result
}

// walk tracks the containers on the current path from the root value.
type walk struct {
	depth     int
	ancestors map[unsafe.Pointer]struct{}
}

func newWalk() *walk {
	return &walk{ancestors: make(map[unsafe.Pointer]struct{})}
}

// enter reports whether the container at ptr may be descended into. A
// successful enter must be paired with leave.
func (w *walk) enter(ptr unsafe.Pointer) (marker string, ok bool) {
	if w.depth >= maxFilterDepth {
		return DepthExceeded, false
	}
	if ptr != nil {
		if _, seen := w.ancestors[ptr]; seen {
			return Recursive, false
		}
		w.ancestors[ptr] = struct{}{}
	}
	w.depth++
	return "", true
}

func (w *walk) leave(ptr unsafe.Pointer) {
	w.depth--
	if ptr != nil {
		delete(w.ancestors, ptr)
	}
}

// filterSection filters a top-level metadata map.
func (f *Filter) filterSection(m map[string]any) map[string]any {
	w := newWalk()
	w.enter(reflect.ValueOf(m).UnsafePointer())
	return f.filterMap(m, w)
}

func (f *Filter) filterMap(m map[string]any, w *walk) map[string]any {
	result := make(map[string]any, len(m))
	for key, value := range m {
		if f.isSensitiveKey(key) {
			result[key] = Filtered
		} else {
			result[key] = f.filterValue(value, w)
		}
	}
	return result
}

func (f *Filter) filterValue(val any, w *walk) any {
	switch v := val.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(v).UnsafePointer()
		marker, ok := w.enter(ptr)
		if !ok {
			return marker
		}
		defer w.leave(ptr)
		return f.filterMap(v, w)
	case map[string]string:
		m := make(map[string]any, len(v))
		for key, value := range v {
			m[key] = value
		}
		return f.filterMap(m, w)
	case []any:
		var ptr unsafe.Pointer
		if len(v) > 0 {
			ptr = unsafe.Pointer(&v[0])
		}
		marker, ok := w.enter(ptr)
		if !ok {
			return marker
		}
		defer w.leave(ptr)
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = f.filterValue(value, w)
		}
		return result
	case string:
		if f.cfg.MaxValueSize > 0 && len(v) > f.cfg.MaxValueSize {
			return truncateWithMarker(v, f.cfg.MaxValueSize)
		}
		return v
	default:
		return v
	}
}

// isSensitiveKey checks if a metadata key matches a params filter.
func (f *Filter) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range f.filters {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker. The cut
// never splits a UTF-8 sequence.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return TruncateUTF8(s, maxLen-len(marker)) + marker
}

// TruncateUTF8 returns the longest prefix of s that is at most n bytes and
// ends on a rune boundary.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
