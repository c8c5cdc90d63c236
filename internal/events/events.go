// Package events defines the discrete security events the auth service emits
// (login success/failure, refresh, revocation, rate-limit trips) and the
// emitter hook an external observability pipeline consumes. Only event names
// and payload fields are defined here, never the transport.
package events

import (
	"context"
	"time"
)

// Type names a security event.
type Type string

const (
	TypeLoginSuccess  Type = "login_success"
	TypeLoginFailure  Type = "login_failure"
	TypeTokenRefresh  Type = "token_refresh"
	TypeRefreshReuse  Type = "refresh_reuse"
	TypeLogout        Type = "logout"
	TypeRevokeAll     Type = "revoke_all"
	TypeRateLimitTrip Type = "rate_limit_trip"
)

// Event is one notable auth occurrence. SubjectID and SessionID are empty
// when unknown (e.g. failed login for an unknown identifier).
type Event struct {
	Type      Type
	SubjectID string
	SessionID string
	At        time.Time
	Fields    map[string]string
}

// Emitter consumes events. Best-effort: callers log and ignore errors, and
// must never block a request on emission.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Nop discards all events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) error { return nil }
