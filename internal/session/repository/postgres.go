package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authcore/internal/session/domain"
)

// PostgresRepository persists sessions in Postgres. The access path uses
// database/sql over the pgx stdlib driver; row-level atomicity of UPDATE
// gives Rotate and RevokeAllForSubject their concurrency guarantees.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const q = `
		INSERT INTO sessions
			(id, subject_id, issued_at, expires_at, refresh_expires_at,
			 revoked_at, last_seen_at, metadata, refresh_jti, refresh_token_hash, generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.SubjectID, s.IssuedAt, s.ExpiresAt, s.RefreshExpiresAt,
		timeToNull(s.RevokedAt), timeToNull(s.LastSeenAt), meta,
		s.RefreshJTI, s.RefreshTokenHash, s.Generation,
	)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// Get returns the session for id, or ErrNotFound. Expiry is lazy-checked in
// the query itself so expired rows never surface; PurgeExpired reclaims them.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	const q = `
		SELECT id, subject_id, issued_at, expires_at, refresh_expires_at,
		       revoked_at, last_seen_at, metadata, refresh_jti, refresh_token_hash, generation
		FROM sessions
		WHERE id = $1 AND refresh_expires_at > now()`
	row := r.db.QueryRowContext(ctx, q, id)

	var (
		s          domain.Session
		revokedAt  sql.NullTime
		lastSeenAt sql.NullTime
		meta       []byte
	)
	err := row.Scan(&s.ID, &s.SubjectID, &s.IssuedAt, &s.ExpiresAt, &s.RefreshExpiresAt,
		&revokedAt, &lastSeenAt, &meta, &s.RefreshJTI, &s.RefreshTokenHash, &s.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	s.RevokedAt = nullToTime(revokedAt)
	s.LastSeenAt = nullToTime(lastSeenAt)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &s, nil
}

// Revoke marks the session revoked. Idempotent: the WHERE clause skips rows
// already revoked, and zero matched rows is not an error.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return storeErr(err)
	}
	return nil
}

// RevokeAllForSubject revokes the subject's live sessions issued at or before
// cutoff. Sessions created after the cutoff escape the sweep on purpose.
func (r *PostgresRepository) RevokeAllForSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	const q = `
		UPDATE sessions SET revoked_at = now()
		WHERE subject_id = $1 AND issued_at <= $2 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, subjectID, cutoff)
	if err != nil {
		return 0, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// Rotate advances the session to generation. The generation guard makes the
// update a compare-and-swap: of two refreshes racing on the same token,
// exactly one matches generation-1 and the other gets ErrRotationConflict.
func (r *PostgresRepository) Rotate(ctx context.Context, id, jti, tokenHash string, generation int64, expiresAt time.Time) error {
	const q = `
		UPDATE sessions
		SET refresh_jti = $2, refresh_token_hash = $3, generation = $4, expires_at = $5
		WHERE id = $1 AND generation = $4 - 1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id, jti, tokenHash, generation, expiresAt)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return ErrRotationConflict
	}
	return nil
}

// Touch records the last-seen timestamp. Unknown ids are ignored.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id, at); err != nil {
		return storeErr(err)
	}
	return nil
}

// PurgeExpired deletes sessions whose refresh window passed before now.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE refresh_expires_at <= $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullToTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
