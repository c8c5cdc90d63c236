// Package service orchestrates login, refresh, authorization, and logout over
// the password hasher, token provider, and session store.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"authcore/internal/events"
	"authcore/internal/ratelimit"
	"authcore/internal/scope"
	"authcore/internal/security"
	"authcore/internal/session/domain"
	"authcore/internal/session/repository"
)

// Sentinel errors for the auth service; the transport layer maps them to
// status codes. ErrInvalidCredentials is deliberately identical whether the
// identifier is unknown or the secret is wrong.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRevoked            = errors.New("session revoked")
	ErrScopeDenied        = errors.New("required scope not granted")
)

// CredentialRecord is the slice of a user record this core is allowed to see:
// the owning subject, the stored hash, and the scopes to stamp on tokens.
type CredentialRecord struct {
	SubjectID    string
	PasswordHash string
	Scopes       []string
}

// CredentialSource is the external user-record collaborator. It returns nil
// (not an error) for unknown identifiers.
type CredentialSource interface {
	LookupCredentialHash(ctx context.Context, identifier string) (*CredentialRecord, error)
}

// TokenPair is the outcome of a successful Login or Refresh.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	SessionID       string
	SubjectID       string
}

// Config tunes the auth service.
type Config struct {
	// CheckRevocation makes Authorize consult the session store on every
	// call. Off, Authorize is purely stateless: cheaper, but revocation only
	// takes effect once the access token expires. This is a deliberate
	// deployment tradeoff, never chosen silently.
	CheckRevocation bool
	// StoreTimeout bounds every session-store and credential-lookup call.
	// Zero means 3s.
	StoreTimeout time.Duration
}

const defaultStoreTimeout = 3 * time.Second

// Service implements the auth flows. It holds no locks and no per-request
// state; the session store and rate limiter are the only shared mutable
// collaborators, each with its own synchronization.
type Service struct {
	creds    CredentialSource
	sessions repository.Repository
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	limiter  ratelimit.Limiter
	scopes   scope.Evaluator
	emitter  events.Emitter

	checkRevocation bool
	storeTimeout    time.Duration
	nowF            func() time.Time
}

// NewService wires the auth service. The token provider's access TTL must be
// strictly shorter than its refresh TTL, since an access token must always
// expire before its parent session's refresh window.
func NewService(
	creds CredentialSource,
	sessions repository.Repository,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	limiter ratelimit.Limiter,
	scopes scope.Evaluator,
	emitter events.Emitter,
	cfg Config,
) (*Service, error) {
	if creds == nil || sessions == nil || hasher == nil || tokens == nil {
		return nil, errors.New("auth service: credential source, session store, hasher, and tokens are required")
	}
	if tokens.AccessTTL() >= tokens.RefreshTTL() {
		return nil, errors.New("auth service: access TTL must be shorter than refresh TTL")
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		creds:           creds,
		sessions:        sessions,
		hasher:          hasher,
		tokens:          tokens,
		limiter:         limiter,
		scopes:          scopes,
		emitter:         emitter,
		checkRevocation: cfg.CheckRevocation,
		storeTimeout:    timeout,
		nowF:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// Login verifies identifier/secret, creates a session, and returns an
// access/refresh token pair. Unknown identifiers and wrong secrets fail with
// the same error after the same amount of hashing work, so callers cannot
// enumerate identifiers. metadata (e.g. device fingerprint) is stored on the
// session verbatim.
func (s *Service) Login(ctx context.Context, identifier, secret string, metadata map[string]string) (*TokenPair, error) {
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, identifier); err != nil {
			events.EmitAsync(s.emitter, events.Event{
				Type:   events.TypeRateLimitTrip,
				At:     s.nowF(),
				Fields: map[string]string{"identifier": identifier},
			})
			return nil, err
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	rec, err := s.creds.LookupCredentialHash(lookupCtx, identifier)
	cancel()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Burn the same hashing cost a real verification would.
		s.hasher.DummyVerify([]byte(secret))
		return nil, s.loginFailed(identifier)
	}
	if !s.hasher.Verify([]byte(secret), rec.PasswordHash) {
		return nil, s.loginFailed(identifier)
	}
	if s.limiter != nil {
		s.limiter.Reset(ctx, identifier)
	}

	now := s.nowF()
	sess := &domain.Session{
		ID:               uuid.New().String(),
		SubjectID:        rec.SubjectID,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.tokens.AccessTTL()),
		RefreshExpiresAt: now.Add(s.tokens.RefreshTTL()),
		Metadata:         metadata,
		Generation:       1,
	}
	refresh, jti, _, err := s.tokens.IssueRefresh(rec.SubjectID, sess.ID, rec.Scopes, sess.Generation)
	if err != nil {
		return nil, err
	}
	access, _, accessExp, err := s.tokens.IssueAccess(rec.SubjectID, sess.ID, rec.Scopes, sess.Generation)
	if err != nil {
		return nil, err
	}
	sess.RefreshJTI = jti
	sess.RefreshTokenHash = security.HashRefreshToken(refresh)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err = s.sessions.Create(storeCtx, sess)
	cancel()
	if err != nil {
		return nil, err
	}

	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeLoginSuccess,
		SubjectID: rec.SubjectID,
		SessionID: sess.ID,
		At:        now,
		Fields:    map[string]string{"identifier": identifier},
	})
	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
		SessionID:       sess.ID,
		SubjectID:       rec.SubjectID,
	}, nil
}

func (s *Service) loginFailed(identifier string) error {
	if s.limiter != nil {
		s.limiter.Fail(context.Background(), identifier)
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:   events.TypeLoginFailure,
		At:     s.nowF(),
		Fields: map[string]string{"identifier": identifier},
	})
	return ErrInvalidCredentials
}

// Refresh validates the refresh token, rotates it, and returns a new pair.
// Presenting a refresh token that has already been rotated out is treated as
// a compromise signal: every session of the subject existing at that moment
// is revoked and the call fails with ErrRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	sess, err := s.sessions.Get(storeCtx, claims.SessionID)
	cancel()
	if err != nil {
		return nil, err
	}
	if sess.Revoked() {
		return nil, ErrRevoked
	}
	if sess.RefreshJTI != claims.ID || sess.Generation != claims.Generation {
		return nil, s.revokeOnReuse(ctx, claims)
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, security.ErrBadSignature
	}

	gen := sess.Generation + 1
	newRefresh, newJTI, _, err := s.tokens.IssueRefresh(claims.Subject, sess.ID, claims.Scopes, gen)
	if err != nil {
		return nil, err
	}
	access, _, accessExp, err := s.tokens.IssueAccess(claims.Subject, sess.ID, claims.Scopes, gen)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
	err = s.sessions.Rotate(storeCtx, sess.ID, newJTI, security.HashRefreshToken(newRefresh), gen, accessExp)
	cancel()
	if errors.Is(err, repository.ErrRotationConflict) {
		// A concurrent refresh already consumed this token.
		return nil, s.revokeOnReuse(ctx, claims)
	}
	if err != nil {
		return nil, err
	}

	touchCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	_ = s.sessions.Touch(touchCtx, sess.ID, s.nowF())
	cancel()

	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeTokenRefresh,
		SubjectID: claims.Subject,
		SessionID: sess.ID,
		At:        s.nowF(),
	})
	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    newRefresh,
		AccessExpiresAt: accessExp,
		SessionID:       sess.ID,
		SubjectID:       claims.Subject,
	}, nil
}

// revokeOnReuse handles a stale refresh token: revoke everything the subject
// holds as of now and report the session set as revoked.
func (s *Service) revokeOnReuse(ctx context.Context, claims *security.Claims) error {
	cutoff := s.nowF()
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	n, err := s.sessions.RevokeAllForSubject(storeCtx, claims.Subject, cutoff)
	cancel()
	if err != nil {
		return err
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeRefreshReuse,
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		At:        cutoff,
	})
	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeRevokeAll,
		SubjectID: claims.Subject,
		At:        cutoff,
		Fields:    map[string]string{"reason": "refresh_reuse", "count": strconv.FormatInt(n, 10)},
	})
	return ErrRevoked
}

// Authorize verifies the access token and, when revocation checking is on,
// confirms the session is still live. Store problems fail closed: the caller
// gets ErrStoreUnavailable to retry, never a silent grant. The required scope
// is checked last, through the injected evaluator.
func (s *Service) Authorize(ctx context.Context, accessToken, requiredScope string) (*security.Claims, error) {
	claims, err := s.tokens.Verify(accessToken, security.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	if s.checkRevocation {
		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		sess, err := s.sessions.Get(storeCtx, claims.SessionID)
		cancel()
		if errors.Is(err, repository.ErrNotFound) {
			// The session is gone (revoked and purged, or expired): the
			// token no longer has a live anchor.
			return nil, ErrRevoked
		}
		if err != nil {
			return nil, err
		}
		if sess.Revoked() {
			return nil, ErrRevoked
		}
	}

	if requiredScope != "" && s.scopes != nil {
		ok, err := s.scopes.Allow(ctx, claims, requiredScope)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrScopeDenied
		}
	}
	return claims, nil
}

// Logout revokes the session. Idempotent; logging out an unknown or already
// revoked session succeeds.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.sessions.Revoke(storeCtx, sessionID)
	cancel()
	if err != nil {
		return err
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeLogout,
		SessionID: sessionID,
		At:        s.nowF(),
	})
	return nil
}

// LogoutEverywhere revokes all of the subject's sessions existing at the
// moment of the call (wall-clock cutover); sessions created afterwards are
// untouched. Returns how many sessions were revoked.
func (s *Service) LogoutEverywhere(ctx context.Context, subjectID string) (int64, error) {
	cutoff := s.nowF()
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	n, err := s.sessions.RevokeAllForSubject(storeCtx, subjectID, cutoff)
	cancel()
	if err != nil {
		return 0, err
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeRevokeAll,
		SubjectID: subjectID,
		At:        cutoff,
		Fields:    map[string]string{"reason": "logout_everywhere", "count": strconv.FormatInt(n, 10)},
	})
	return n, nil
}

// OnPasswordChanged is the hook the user-record collaborator calls after a
// password change; every outstanding session of the subject is force-logged
// out.
func (s *Service) OnPasswordChanged(ctx context.Context, subjectID string) error {
	_, err := s.LogoutEverywhere(ctx, subjectID)
	return err
}
