package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/wenliu-dev/coursehub/internal/auth"
)

func newManager() *auth.Manager {
	return auth.NewManager("test-secret-key", 15*time.Minute, 7*24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newManager()

	raw, err := m.GenerateAccessToken("user-1", "a@x.com", "instructor")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "a@x.com" || claims.Role != "instructor" {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Fatal("access token must carry a future expiry")
	}
}

func TestVerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	m := newManager()

	raw, _, _, err := m.GenerateRefreshToken("user-1", "a@x.com", "student")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m := newManager()

	raw, err := m.GenerateAccessToken("user-1", "a@x.com", "student")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", raw)
	}

	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	if _, err := m.VerifyAccessToken(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newManager()
	other := auth.NewManager("another-secret", 15*time.Minute, 7*24*time.Hour)

	raw, err := other.GenerateAccessToken("user-1", "a@x.com", "student")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatal("token signed with the wrong secret accepted")
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	m := auth.NewManager("test-secret-key", -1*time.Minute, 7*24*time.Hour)

	raw, err := m.GenerateAccessToken("user-1", "a@x.com", "student")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	m := newManager()

	a := m.HashRefreshToken("raw-token")
	b := m.HashRefreshToken("raw-token")
	c := m.HashRefreshToken("other-token")

	if a != b {
		t.Fatal("hash must be deterministic for the same input")
	}
	if a == c {
		t.Fatal("distinct tokens must not collide")
	}
	if a == "raw-token" {
		t.Fatal("hash must not equal the raw token")
	}
}
