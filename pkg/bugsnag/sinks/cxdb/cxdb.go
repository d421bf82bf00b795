// Package cxdb provides a sink that persists events to cxdb as SystemMessage items.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
	"github.com/strongdm/errnotify/pkg/bugsnag"
)

// MetaDataSection and MetaDataContextID name the metadata entry that links an
// event to an existing cxdb context.
const (
	MetaDataSection   = "cxdb"
	MetaDataContextID = "context_id"
)

// WithContextID links the notified event to an existing cxdb context.
// Events without one are written to a new orphan context.
func WithContextID(contextID uint64) bugsnag.EventOption {
	return bugsnag.WithMetaDatum(MetaDataSection, MetaDataContextID, contextID)
}

// Client is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type Client interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the cxdb sink.
type Option func(*config)

type config struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for orphan error contexts.
func WithOrphanLabels(labels []string) Option {
	return func(c *config) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) Option {
	return func(c *config) {
		c.clientTag = tag
	}
}

type cxdbSink struct {
	client Client
	cfg    *config
}

// NewCXDBSink creates a sink that appends one turn per event to cxdb.
func NewCXDBSink(client Client, opts ...Option) bugsnag.Sink {
	cfg := &config{
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    "bugsnag",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &cxdbSink{client: client, cfg: cfg}
}

// Write appends every event of payload. It stops at the first failure.
func (s *cxdbSink) Write(ctx context.Context, payload *bugsnag.Payload) error {
	if payload == nil {
		return nil
	}
	for _, event := range payload.Events {
		if err := s.writeEvent(ctx, event); err != nil {
			return errors.Wrapf(err, "event %s", event.ID)
		}
	}
	return nil
}

func (s *cxdbSink) writeEvent(ctx context.Context, event *bugsnag.Event) error {
	contextID, linked := eventContextID(event)
	if !linked {
		head, err := s.client.CreateContext(ctx, 0)
		if err != nil {
			return errors.Wrap(err, "create orphan context")
		}
		contextID = head.ContextID
	}

	item, err := s.buildConversationItem(event, !linked)
	if err != nil {
		return err
	}

	data, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return errors.Wrap(err, "encode item")
	}

	_, err = s.client.AppendTurn(ctx, &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        data,
		IdempotencyKey: event.ID,
	})
	return errors.Wrap(err, "append turn")
}

// eventContextID reads the linked context from event metadata. Values that
// went through a JSON round trip arrive as float64 or string.
func eventContextID(event *bugsnag.Event) (uint64, bool) {
	section := event.MetaData[MetaDataSection]
	if section == nil {
		return 0, false
	}
	switch v := section[MetaDataContextID].(type) {
	case uint64:
		return v, v > 0
	case int:
		return uint64(v), v > 0
	case int64:
		return uint64(v), v > 0
	case float64:
		return uint64(v), v > 0
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}

func (s *cxdbSink) buildConversationItem(event *bugsnag.Event, isOrphan bool) (*cxdtypes.ConversationItem, error) {
	content, err := buildErrorDetails(event)
	if err != nil {
		return nil, err
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: event.Device.Time.UnixMilli(),
		ID:        event.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title(event),
			Content: content,
		},
	}

	// cxdb expects context metadata on the first turn of a context.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.cfg.orphanLabels,
			ClientTag: s.cfg.clientTag,
		}
	}
	return item, nil
}

// title renders "<errorClass>: <message>" bounded to 100 characters.
func title(event *bugsnag.Event) string {
	t := event.ErrorClass()
	if msg := event.Message(); msg != "" {
		const maxMsgLen = 80
		if len(msg) > maxMsgLen {
			msg = bugsnag.TruncateUTF8(msg, maxMsgLen) + "..."
		}
		t = fmt.Sprintf("%s: %s", t, msg)
	}
	if len(t) > 100 {
		t = bugsnag.TruncateUTF8(t, 97) + "..."
	}
	return t
}

// errorDetails is the JSON document stored in SystemMessage.Content.
type errorDetails struct {
	EventID     string                  `json:"event_id"`
	Fingerprint string                  `json:"fingerprint"`
	Severity    bugsnag.Severity        `json:"severity"`
	Unhandled   bool                    `json:"unhandled"`
	Context     string                  `json:"context,omitempty"`
	User        *bugsnag.User           `json:"user,omitempty"`
	App         bugsnag.AppInfo         `json:"app"`
	Device      bugsnag.DeviceInfo      `json:"device"`
	Exceptions  []bugsnag.Exception     `json:"exceptions"`
	MetaData    bugsnag.MetaData        `json:"metadata,omitempty"`
	Reason      *bugsnag.SeverityReason `json:"severity_reason,omitempty"`
}

func buildErrorDetails(event *bugsnag.Event) (string, error) {
	data, err := json.Marshal(errorDetails{
		EventID:     event.ID,
		Fingerprint: bugsnag.Fingerprint(event),
		Severity:    event.Severity,
		Unhandled:   event.Unhandled,
		Context:     event.Context,
		User:        event.User,
		App:         event.App,
		Device:      event.Device,
		Exceptions:  event.Exceptions,
		MetaData:    event.MetaData,
		Reason:      event.SeverityReason,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode details")
	}
	return string(data), nil
}

// Flush is a no-op for the cxdb sink (writes are synchronous).
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for the cxdb sink. The caller owns the cxdb client.
func (s *cxdbSink) Close() error {
	return nil
}
