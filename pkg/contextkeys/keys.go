// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// The transport layer fills these slots at the start of a request; the
// core only reads them. This replaces process-global "current user" and
// "current log" state with request-local values.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CurrentUserKey contains the id of the authenticated user.
	// Set by: the transport layer after a successful token apply
	// Type: int64
	CurrentUserKey Key = "current_user"

	// CurrentLogKey contains the id of the request audit log.
	// Set by: the logging middleware when the request log is opened
	// Type: int64
	CurrentLogKey Key = "current_log"

	// ClientIPKey contains the remote address of the request.
	// Set by: the transport layer
	// Type: string
	ClientIPKey Key = "client_ip"
)

// WithCurrentUser binds the authenticated user id to the context.
func WithCurrentUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, CurrentUserKey, userID)
}

// CurrentUser returns the authenticated user id, or false when the
// request is anonymous.
func CurrentUser(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(CurrentUserKey).(int64)
	return id, ok
}

// WithCurrentLog binds the request audit log id to the context.
func WithCurrentLog(ctx context.Context, logID int64) context.Context {
	return context.WithValue(ctx, CurrentLogKey, logID)
}

// CurrentLog returns the request audit log id, or false when no log has
// been opened for this request.
func CurrentLog(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(CurrentLogKey).(int64)
	return id, ok
}

// WithClientIP binds the remote address to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// ClientIP returns the remote address, or false.
func ClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok
}
