package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authcore/internal/session/domain"
)

func newSession(id, subject string, issuedAt time.Time) *domain.Session {
	return &domain.Session{
		ID:               id,
		SubjectID:        subject,
		IssuedAt:         issuedAt,
		ExpiresAt:        issuedAt.Add(15 * time.Minute),
		RefreshExpiresAt: issuedAt.Add(24 * time.Hour),
		Metadata:         map[string]string{"device": "test"},
		RefreshJTI:       "jti-1",
		RefreshTokenHash: "hash-1",
		Generation:       1,
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()

	if err := r.Create(ctx, newSession("s1", "alice", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SubjectID != "alice" || got.Metadata["device"] != "test" {
		t.Errorf("unexpected session: %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Metadata["device"] = "tampered"
	again, _ := r.Get(ctx, "s1")
	if again.Metadata["device"] != "test" {
		t.Error("Get returned an aliased session")
	}

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: want ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()
	r.SetNow(func() time.Time { return now })

	if err := r.Create(ctx, newSession("s1", "alice", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.SetNow(func() time.Time { return now.Add(25 * time.Hour) })
	if _, err := r.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: want ErrNotFound, got %v", err)
	}
	if r.Len() != 0 {
		t.Error("expired session should be dropped on access")
	}
}

func TestMemoryRepository_RevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()
	if err := r.Create(ctx, newSession("s1", "alice", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Revoke(ctx, "s1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, _ := r.Get(ctx, "s1")
	if !got.Revoked() {
		t.Fatal("session not revoked")
	}
	firstRevokedAt := *got.RevokedAt

	// Second revoke and unknown id are both no-ops, not errors.
	if err := r.Revoke(ctx, "s1"); err != nil {
		t.Errorf("second Revoke: %v", err)
	}
	if err := r.Revoke(ctx, "never-existed"); err != nil {
		t.Errorf("Revoke unknown id: %v", err)
	}
	got, _ = r.Get(ctx, "s1")
	if !got.RevokedAt.Equal(firstRevokedAt) {
		t.Error("revocation timestamp must not move")
	}
}

func TestMemoryRepository_RevokeAllForSubjectCutover(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()

	_ = r.Create(ctx, newSession("before-1", "alice", now.Add(-2*time.Hour)))
	_ = r.Create(ctx, newSession("before-2", "alice", now.Add(-time.Minute)))
	_ = r.Create(ctx, newSession("other", "bob", now.Add(-time.Hour)))
	// Created after the cutover: must escape the sweep.
	_ = r.Create(ctx, newSession("after", "alice", now.Add(time.Second)))

	n, err := r.RevokeAllForSubject(ctx, "alice", now)
	if err != nil {
		t.Fatalf("RevokeAllForSubject: %v", err)
	}
	if n != 2 {
		t.Errorf("want 2 revoked, got %d", n)
	}
	for _, id := range []string{"before-1", "before-2"} {
		if s, _ := r.Get(ctx, id); !s.Revoked() {
			t.Errorf("%s should be revoked", id)
		}
	}
	if s, _ := r.Get(ctx, "after"); s.Revoked() {
		t.Error("session created after cutover must not be revoked")
	}
	if s, _ := r.Get(ctx, "other"); s.Revoked() {
		t.Error("other subject's session must not be revoked")
	}
}

func TestMemoryRepository_RotateDetectsConflict(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()
	_ = r.Create(ctx, newSession("s1", "alice", now))

	exp := now.Add(30 * time.Minute)
	if err := r.Rotate(ctx, "s1", "jti-2", "hash-2", 2, exp); err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	// A second rotation from the same starting generation lost the race.
	if err := r.Rotate(ctx, "s1", "jti-2b", "hash-2b", 2, exp); !errors.Is(err, ErrRotationConflict) {
		t.Errorf("stale Rotate: want ErrRotationConflict, got %v", err)
	}

	got, _ := r.Get(ctx, "s1")
	if got.RefreshJTI != "jti-2" || got.Generation != 2 {
		t.Errorf("winner's rotation lost: %+v", got)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Error("access window not rotated")
	}

	if err := r.Rotate(ctx, "missing", "j", "h", 2, exp); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rotate unknown id: want ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()
	_ = r.Create(ctx, newSession("s1", "alice", now))

	// Readers must never observe a stored session mid-mutation. Under the
	// race detector this pins the clone inside Get's read lock.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		gen := int64(i + 2)
		wg.Add(3)
		go func() {
			defer wg.Done()
			if s, err := r.Get(ctx, "s1"); err == nil && s.Generation == 0 {
				t.Error("observed zero generation")
			}
		}()
		go func() {
			defer wg.Done()
			_ = r.Rotate(ctx, "s1", "jti-x", "hash-x", gen, now.Add(30*time.Minute))
		}()
		go func() {
			defer wg.Done()
			_ = r.Touch(ctx, "s1", now)
		}()
	}
	wg.Wait()

	if err := r.Revoke(ctx, "s1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if s, err := r.Get(ctx, "s1"); err != nil || !s.Revoked() {
		t.Errorf("final state: err=%v session=%+v", err, s)
	}
}

func TestMemoryRepository_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()

	_ = r.Create(ctx, newSession("old", "alice", now.Add(-48*time.Hour)))
	_ = r.Create(ctx, newSession("live", "alice", now))

	n, err := r.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 || r.Len() != 1 {
		t.Errorf("want 1 purged and 1 left, got purged=%d left=%d", n, r.Len())
	}
	if _, err := r.Get(ctx, "live"); err != nil {
		t.Errorf("live session must survive purge: %v", err)
	}
}
