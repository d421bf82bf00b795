// context.go provides utilities for attaching event data to a context.Context.
// Data attached here is merged into every event notified under that context.

package bugsnag

import "context"

// Context key types (unexported to avoid collisions)
type metaDataKey struct{}
type userKey struct{}
type eventContextKey struct{}

// ContextWithMetaData returns a context carrying values under section, merged
// with any metadata already attached to ctx. The parent's metadata is not modified.
func ContextWithMetaData(ctx context.Context, section string, values map[string]any) context.Context {
	md := MetaData{}
	if parent, ok := MetaDataFromContext(ctx); ok {
		for name, sectionValues := range parent {
			md.Add(name, sectionValues)
		}
	}
	md.Add(section, values)
	return context.WithValue(ctx, metaDataKey{}, md)
}

// MetaDataFromContext extracts the metadata attached to ctx.
// Returns nil and false if none is set.
func MetaDataFromContext(ctx context.Context) (MetaData, bool) {
	md, ok := ctx.Value(metaDataKey{}).(MetaData)
	return md, ok && len(md) > 0
}

// ContextWithUser returns a context carrying the affected user.
func ContextWithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext extracts the user attached to ctx.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey{}).(User)
	return user, ok
}

// ContextWithEventContext returns a context carrying the event context string,
// such as a route or job name.
func ContextWithEventContext(ctx context.Context, eventContext string) context.Context {
	return context.WithValue(ctx, eventContextKey{}, eventContext)
}

// EventContextFromContext extracts the event context string.
// Returns empty string and false if not set or empty.
func EventContextFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(eventContextKey{}).(string)
	return v, ok && v != ""
}

// applyContext copies data attached to ctx into event.
func applyContext(ctx context.Context, event *Event) {
	if md, ok := MetaDataFromContext(ctx); ok {
		event.MetaData.Update(md)
	}
	if user, ok := UserFromContext(ctx); ok {
		event.User = &user
	}
	if eventContext, ok := EventContextFromContext(ctx); ok {
		event.Context = eventContext
	}
}
