package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	orgIDKey     contextKey = "org_id"
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithOrgID returns a new context carrying the remote organization ID so log
// records can attribute remote API traffic.
func WithOrgID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, orgIDKey, id)
}

// OrgID extracts the organization ID from the context, or "".
func OrgID(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey).(string)
	return id
}
