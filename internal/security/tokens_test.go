package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func newECProvider(t *testing.T, issuer, audience string) (*TokenProvider, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return NewTokenProvider(key, &key.PublicKey, issuer, audience, 15*time.Minute, 24*time.Hour), key
}

func TestTokenProvider_RoundTrip(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	scopes := []string{"read", "write"}

	token, jti, exp, err := p.IssueAccess("subj-1", "sess-1", scopes, 3)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("token or jti empty")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expires_at in the past")
	}

	claims, err := p.Verify(token, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "subj-1" || claims.SessionID != "sess-1" {
		t.Errorf("claims: got subject=%q session=%q", claims.Subject, claims.SessionID)
	}
	if claims.ID != jti {
		t.Errorf("jti: want %q, got %q", jti, claims.ID)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("token_type: want access, got %q", claims.TokenType)
	}
	if claims.Generation != 3 {
		t.Errorf("generation: want 3, got %d", claims.Generation)
	}
	if len(claims.Scopes) != 2 || claims.Scopes[0] != "read" || claims.Scopes[1] != "write" {
		t.Errorf("scopes: got %v", claims.Scopes)
	}
}

func TestTokenProvider_WrongType(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	refresh, _, _, err := p.IssueRefresh("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.Verify(refresh, TokenTypeAccess); !errors.Is(err, ErrWrongType) {
		t.Errorf("refresh token as access: want ErrWrongType, got %v", err)
	}
	access, _, _, err := p.IssueAccess("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.Verify(access, TokenTypeRefresh); !errors.Is(err, ErrWrongType) {
		t.Errorf("access token as refresh: want ErrWrongType, got %v", err)
	}
}

func TestTokenProvider_ZeroTTLRejectedImmediately(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, _, err := p.Issue("subj-1", "sess-1", nil, 1, TokenTypeAccess, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Verify(token, TokenTypeAccess); !errors.Is(err, ErrExpired) {
		t.Errorf("ttl=0 token: want ErrExpired, got %v", err)
	}
}

func TestTokenProvider_LeewayToleratesSkew(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	p.WithLeeway(30 * time.Second)
	// Expired one second ago; leeway must still accept it.
	token, _, _, err := p.Issue("subj-1", "sess-1", nil, 1, TokenTypeAccess, -time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Verify(token, TokenTypeAccess); err != nil {
		t.Errorf("within leeway: want ok, got %v", err)
	}
}

func TestTokenProvider_BadSignature(t *testing.T) {
	a, _ := newECProvider(t, "test-issuer", "test-audience")
	b, _ := newECProvider(t, "test-issuer", "test-audience")
	token, _, _, err := a.IssueAccess("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := b.Verify(token, TokenTypeAccess); !errors.Is(err, ErrBadSignature) {
		t.Errorf("foreign key: want ErrBadSignature, got %v", err)
	}
}

func TestTokenProvider_Malformed(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := p.Verify(token, TokenTypeAccess); !errors.Is(err, ErrMalformed) {
			t.Errorf("Verify(%q): want ErrMalformed, got %v", token, err)
		}
	}
}

func TestTokenProvider_RetiredKeyVerifiesWithinGrace(t *testing.T) {
	old, oldKey := newECProvider(t, "test-issuer", "test-audience")
	token, _, _, err := old.IssueAccess("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	current, _ := newECProvider(t, "test-issuer", "test-audience")
	current.WithRetiredKeys([]RetiredKey{{Key: &oldKey.PublicKey, RetiredAt: time.Now().UTC()}}, time.Hour)

	claims, err := current.Verify(token, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify with retired key in grace: %v", err)
	}
	if claims.Subject != "subj-1" {
		t.Errorf("subject: got %q", claims.Subject)
	}
}

func TestTokenProvider_RetiredKeyRejectedAfterGrace(t *testing.T) {
	old, oldKey := newECProvider(t, "test-issuer", "test-audience")
	token, _, _, err := old.IssueAccess("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	current, _ := newECProvider(t, "test-issuer", "test-audience")
	retiredAt := time.Now().UTC().Add(-2 * time.Hour)
	current.WithRetiredKeys([]RetiredKey{{Key: &oldKey.PublicKey, RetiredAt: retiredAt}}, time.Hour)

	if _, err := current.Verify(token, TokenTypeAccess); !errors.Is(err, ErrBadSignature) {
		t.Errorf("retired key past grace: want ErrBadSignature, got %v", err)
	}
}

func TestTokenProvider_IssuerAudienceChecked(t *testing.T) {
	a, key := newECProvider(t, "issuer-a", "aud-a")
	token, _, _, err := a.IssueAccess("subj-1", "sess-1", nil, 1)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	b := NewTokenProvider(key, &key.PublicKey, "issuer-b", "aud-b", 15*time.Minute, 24*time.Hour)
	if _, err := b.Verify(token, TokenTypeAccess); err == nil {
		t.Error("token with foreign issuer/audience should not verify")
	}
}
