package repository

import (
	"context"
	"errors"
	"time"

	"authcore/internal/session/domain"
)

// Sentinel errors returned by session stores.
var (
	// ErrNotFound is returned by Get when no live session exists for the id.
	// Sessions past their refresh expiry report ErrNotFound as well.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures. Callers retry with backoff;
	// it is never silently converted to an authorization decision.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRotationConflict is returned by Rotate when the expected generation
	// has already been consumed, i.e. a concurrent refresh won the race.
	ErrRotationConflict = errors.New("refresh rotation conflict")
)

// Repository defines persistence for sessions. Implementations provide their
// own locking or transactional guarantees; callers hold no locks.
type Repository interface {
	// Create persists a new session. The session must carry a unique ID.
	Create(ctx context.Context, s *domain.Session) error
	// Get returns the session for id, or ErrNotFound. Revoked sessions are
	// still returned (callers decide); expired ones are not.
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Revoke marks the session revoked. Idempotent: revoking an already
	// revoked or unknown session is not an error.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForSubject revokes every live session of the subject created
	// at or before cutoff, and returns how many it revoked. The cutoff is the
	// sweep's point-in-time cutover: sessions created after it are unaffected,
	// so concurrent Create calls resolve deterministically.
	RevokeAllForSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error)
	// Rotate installs a new refresh jti/hash and access window, advancing the
	// session from generation-1 to generation. Returns ErrRotationConflict if
	// that step was already taken, which signals refresh-token reuse.
	Rotate(ctx context.Context, id, jti, tokenHash string, generation int64, expiresAt time.Time) error
	// Touch records last-seen bookkeeping. Best-effort for callers.
	Touch(ctx context.Context, id string, at time.Time) error
	// PurgeExpired deletes sessions whose refresh window passed before now
	// and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
