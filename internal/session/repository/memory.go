package repository

import (
	"context"
	"sync"
	"time"

	"authcore/internal/session/domain"
)

// MemoryRepository is an in-memory session store for tests and single-process
// deployments. All mutation goes through its own lock; it is safe for
// arbitrarily many concurrent callers.
type MemoryRepository struct {
	mu   sync.RWMutex
	m    map[string]*domain.Session
	nowF func() time.Time
}

// NewMemoryRepository returns an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		m:    make(map[string]*domain.Session),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock. Tests only.
func (r *MemoryRepository) SetNow(f func() time.Time) { r.nowF = f }

// Create persists the session. The session must have ID set.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ID] = s.Clone()
	return nil
}

// Get returns the session for id, or ErrNotFound. Expiry is lazy-checked:
// a session past its refresh window is deleted and reported as not found.
// The clone is taken under the read lock; writers mutate stored sessions in
// place, so no field may be read after the lock is released.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	s, ok := r.m[id]
	var out *domain.Session
	if ok {
		out = s.Clone()
	}
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if out.Expired(r.nowF()) {
		r.mu.Lock()
		delete(r.m, id)
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	return out, nil
}

// Revoke marks the session revoked. Unknown or already revoked ids are fine.
func (r *MemoryRepository) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.RevokedAt != nil {
		return nil
	}
	at := r.nowF()
	s.RevokedAt = &at
	return nil
}

// RevokeAllForSubject revokes the subject's live sessions created at or
// before cutoff and returns the count.
func (r *MemoryRepository) RevokeAllForSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := r.nowF()
	var n int64
	for _, s := range r.m {
		if s.SubjectID != subjectID || s.RevokedAt != nil {
			continue
		}
		if s.IssuedAt.After(cutoff) {
			continue
		}
		t := at
		s.RevokedAt = &t
		n++
	}
	return n, nil
}

// Rotate advances the session to generation with a fresh refresh jti/hash and
// access window. A session already at or past generation means a concurrent
// refresh won; the caller gets ErrRotationConflict.
func (r *MemoryRepository) Rotate(ctx context.Context, id, jti, tokenHash string, generation int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return ErrNotFound
	}
	if s.RevokedAt != nil || s.Generation != generation-1 {
		return ErrRotationConflict
	}
	s.RefreshJTI = jti
	s.RefreshTokenHash = tokenHash
	s.Generation = generation
	s.ExpiresAt = expiresAt
	return nil
}

// Touch records the last-seen timestamp. Unknown ids are ignored.
func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		t := at
		s.LastSeenAt = &t
	}
	return nil
}

// PurgeExpired drops sessions whose refresh window passed before now.
func (r *MemoryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if s.Expired(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many sessions are held, expired or not. Tests only.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
