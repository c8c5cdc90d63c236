package domain

import "time"

// Session anchors one logical login. A subject may hold many concurrent
// sessions (multi-device); each is revocable on its own.
type Session struct {
	ID               string
	SubjectID        string
	IssuedAt         time.Time
	ExpiresAt        time.Time  // current access window; rotated on refresh
	RefreshExpiresAt time.Time  // fixed at creation; the session dies past this
	RevokedAt        *time.Time // nil while live; never cleared once set
	LastSeenAt       *time.Time
	Metadata         map[string]string
	RefreshJTI       string // jti of the currently valid refresh token
	RefreshTokenHash string // SHA-256 of the currently valid refresh token
	Generation       int64  // refresh rotation counter, starts at 1
}

// Revoked reports whether the session has been revoked. Revocation is
// permanent.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the refresh window has passed at now. Expired
// sessions are treated as not found on lookup and may be purged.
func (s *Session) Expired(now time.Time) bool {
	return !s.RefreshExpiresAt.After(now)
}

// Clone returns a deep copy, so store implementations can hand out sessions
// without aliasing their internal state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		out.RevokedAt = &t
	}
	if s.LastSeenAt != nil {
		t := *s.LastSeenAt
		out.LastSeenAt = &t
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
