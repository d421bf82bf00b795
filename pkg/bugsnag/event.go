// event.go defines the event and payload structures sent to the service.

package bugsnag

import (
	"encoding/json"
	"time"
)

// Severity indicates the severity level of an event.
type Severity string

const (
	// SeverityError is the default severity of notifications.
	SeverityError Severity = "error"

	// SeverityWarning indicates a non-fatal issue that may need attention.
	SeverityWarning Severity = "warning"

	// SeverityInfo indicates an informational report.
	SeverityInfo Severity = "info"
)

// Severity reason types.
const (
	ReasonHandledException = "handledException"
	ReasonHandledPanic     = "handledPanic"
	ReasonUnhandledPanic   = "unhandledPanic"
	ReasonUserSpecified    = "userSpecifiedSeverity"
)

// payloadVersion is the ingestion contract version of Payload.
const payloadVersion = "4"

// Notifier identifies this library in every payload.
var Notifier = NotifierInfo{
	Name:    "errnotify Go notifier",
	Version: "1.0.0",
	URL:     "https://github.com/strongdm/errnotify",
}

// Payload is the top-level JSON document posted to the notify endpoint.
type Payload struct {
	APIKey   string       `json:"apiKey"`
	Notifier NotifierInfo `json:"notifier"`
	Events   []*Event     `json:"events"`
}

// NotifierInfo describes the notifier library.
type NotifierInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Event is one formatted error report.
type Event struct {
	// ID uniquely identifies the event locally. It is not part of the wire format.
	ID string `json:"-"`

	PayloadVersion string          `json:"payloadVersion"`
	Exceptions     []Exception     `json:"exceptions"`
	Severity       Severity        `json:"severity"`
	SeverityReason *SeverityReason `json:"severityReason,omitempty"`
	Unhandled      bool            `json:"unhandled"`
	Context        string          `json:"context,omitempty"`
	GroupingHash   string          `json:"groupingHash,omitempty"`
	User           *User           `json:"user,omitempty"`
	App            AppInfo         `json:"app"`
	Device         DeviceInfo      `json:"device"`
	MetaData       MetaData        `json:"metaData,omitempty"`
	Breadcrumbs    []Breadcrumb    `json:"breadcrumbs,omitempty"`

	// Err is the reported error, available to BeforeNotify callbacks.
	Err error `json:"-"`
}

// ErrorClass returns the class of the first exception.
func (e *Event) ErrorClass() string {
	if len(e.Exceptions) == 0 {
		return ""
	}
	return e.Exceptions[0].ErrorClass
}

// Message returns the message of the first exception.
func (e *Event) Message() string {
	if len(e.Exceptions) == 0 {
		return ""
	}
	return e.Exceptions[0].Message
}

// Exception is a single error within an event.
type Exception struct {
	ErrorClass string       `json:"errorClass"`
	Message    string       `json:"message"`
	Stacktrace []StackFrame `json:"stacktrace"`
}

// StackFrame is one frame of a stack trace.
type StackFrame struct {
	File       string `json:"file"`
	LineNumber int    `json:"lineNumber"`
	Method     string `json:"method"`
	InProject  bool   `json:"inProject,omitempty"`
}

// SeverityReason explains how the severity was chosen.
type SeverityReason struct {
	Type string `json:"type"`
}

// User identifies the user affected by an event.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// AppInfo describes the reporting application.
type AppInfo struct {
	ReleaseStage string `json:"releaseStage,omitempty"`
	Version      string `json:"version,omitempty"`
}

// DeviceInfo describes the host the event was captured on.
type DeviceInfo struct {
	Hostname        string            `json:"hostname,omitempty"`
	OSName          string            `json:"osName,omitempty"`
	RuntimeVersions map[string]string `json:"runtimeVersions,omitempty"`
	Time            time.Time         `json:"time"`
}

// MetaData groups arbitrary key/value data into named sections.
type MetaData map[string]map[string]any

// Add merges values into section, overwriting existing keys.
func (m MetaData) Add(section string, values map[string]any) {
	if m[section] == nil {
		m[section] = make(map[string]any, len(values))
	}
	for k, v := range values {
		m[section][k] = v
	}
}

// AddDatum sets a single key in section.
func (m MetaData) AddDatum(section, key string, value any) {
	if m[section] == nil {
		m[section] = make(map[string]any)
	}
	m[section][key] = value
}

// Update merges every section of other into m.
func (m MetaData) Update(other MetaData) {
	for section, values := range other {
		m.Add(section, values)
	}
}

// Marshal encodes the payload as JSON.
func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// EventOption customizes an event before it is delivered.
type EventOption func(*Event)

// WithSeverity overrides the event severity.
func WithSeverity(severity Severity) EventOption {
	return func(e *Event) {
		e.Severity = severity
		e.SeverityReason = &SeverityReason{Type: ReasonUserSpecified}
	}
}

// WithMetaData attaches values under the named metadata section.
func WithMetaData(section string, values map[string]any) EventOption {
	return func(e *Event) {
		e.MetaData.Add(section, values)
	}
}

// WithMetaDatum attaches a single value under the named metadata section.
func WithMetaDatum(section, key string, value any) EventOption {
	return func(e *Event) {
		e.MetaData.AddDatum(section, key, value)
	}
}

// WithContext sets the event context, typically the action or route that failed.
func WithContext(context string) EventOption {
	return func(e *Event) {
		e.Context = context
	}
}

// WithUser sets the affected user.
func WithUser(user User) EventOption {
	return func(e *Event) {
		e.User = &user
	}
}

// WithGroupingHash overrides server-side grouping for the event.
func WithGroupingHash(hash string) EventOption {
	return func(e *Event) {
		e.GroupingHash = hash
	}
}
