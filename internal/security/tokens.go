package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token verification. Callers react differently per kind
// (silent reject vs. re-login prompt) but must collapse all of them to a
// generic "unauthorized" at the transport boundary.
var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
	ErrWrongType    = errors.New("wrong token type")
	ErrMalformed    = errors.New("malformed token")
)

// TokenType distinguishes access tokens from refresh tokens. A token of one
// type is never accepted where the other is required.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the facts embedded in a signed token. RegisteredClaims carries
// subject, issuer, audience, jti, iat, and exp; the rest bind the token to a
// session and to a refresh-rotation generation.
type Claims struct {
	jwt.RegisteredClaims
	SessionID  string    `json:"session_id"`
	TokenType  TokenType `json:"token_type"`
	Scopes     []string  `json:"scopes,omitempty"`
	Generation int64     `json:"gen,omitempty"`
}

// RetiredKey is a public key that no longer signs new tokens but may still
// verify outstanding ones until its grace window ends.
type RetiredKey struct {
	Key       crypto.PublicKey
	RetiredAt time.Time
}

// TokenProvider issues and verifies compact signed tokens (JWS, RS256 or
// ES256). Issuing always uses the current private key; verification also
// tries recently retired public keys so a key rotation does not invalidate
// every outstanding session at once.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	retired    []RetiredKey
	grace      time.Duration
	leeway     time.Duration
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with privateKey (RSA or
// ECDSA). issuer and audience are stamped on every token and checked on
// verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithRetiredKeys registers public keys from previous rotations. Each key
// verifies tokens until grace has elapsed past its RetiredAt; grace <= 0
// keeps retired keys valid indefinitely. Returns the provider for chaining.
func (p *TokenProvider) WithRetiredKeys(keys []RetiredKey, grace time.Duration) *TokenProvider {
	p.retired = keys
	p.grace = grace
	return p
}

// WithLeeway sets the clock-skew tolerance applied to exp and iat
// comparisons during verification. Zero means exact comparison, under which
// a token issued with ttl=0 is already expired.
func (p *TokenProvider) WithLeeway(leeway time.Duration) *TokenProvider {
	if leeway > 0 {
		p.leeway = leeway
	}
	return p
}

// AccessTTL returns the configured access-token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access token bound to the session.
func (p *TokenProvider) IssueAccess(subjectID, sessionID string, scopes []string, generation int64) (token, jti string, expiresAt time.Time, err error) {
	return p.Issue(subjectID, sessionID, scopes, generation, TokenTypeAccess, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh token. The returned jti must be
// recorded on the session; rotation reuse detection compares against it.
func (p *TokenProvider) IssueRefresh(subjectID, sessionID string, scopes []string, generation int64) (token, jti string, expiresAt time.Time, err error) {
	return p.Issue(subjectID, sessionID, scopes, generation, TokenTypeRefresh, p.refreshTTL)
}

// Issue serializes claims plus type plus expiry and signs them with the
// current key. ttl is measured from now; expiry is exclusive of the issue
// instant, so ttl=0 mints a token that verification already rejects.
func (p *TokenProvider) Issue(subjectID, sessionID string, scopes []string, generation int64, typ TokenType, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now()
	expiresAt = now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subjectID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID:  sessionID,
		TokenType:  typ,
		Scopes:     scopes,
		Generation: generation,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch keyAlg(p.privateKey.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Verify decodes the token, checks the signature against the current key and
// any retired keys still in grace, checks expiry (with leeway), and checks
// the token type matches want. No claim is returned unless the signature
// validated first. Failures are distinguished as ErrExpired, ErrBadSignature,
// ErrWrongType, or ErrMalformed.
func (p *TokenProvider) Verify(tokenString string, want TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithLeeway(p.leeway),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)

	var claims *Claims
	sawBadSignature := false
	for _, key := range p.verificationKeys() {
		c := &Claims{}
		_, err := parser.ParseWithClaims(tokenString, c, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err == nil {
			claims = c
			break
		}
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// May be signed with an older key; keep trying.
			sawBadSignature = true
			continue
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}
	if claims == nil {
		if sawBadSignature {
			return nil, ErrBadSignature
		}
		return nil, ErrMalformed
	}
	if claims.TokenType != want {
		return nil, ErrWrongType
	}
	return claims, nil
}

// verificationKeys returns the current public key followed by retired keys
// whose grace window has not ended.
func (p *TokenProvider) verificationKeys() []crypto.PublicKey {
	keys := make([]crypto.PublicKey, 0, 1+len(p.retired))
	keys = append(keys, p.publicKey)
	now := p.now()
	for _, rk := range p.retired {
		if p.grace > 0 && now.Sub(rk.RetiredAt) > p.grace {
			continue
		}
		keys = append(keys, rk.Key)
	}
	return keys
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
