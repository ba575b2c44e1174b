package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// callIDKey is the context key for the call ID being processed.
var callIDKey = contextKey{}

// WithCallID returns a new context carrying the given call ID.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// CallID extracts the call ID from the context.
// Returns an empty string if none is set.
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey).(string)
	return id
}
