package middlewares_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wenliu-dev/coursehub/internal/auth"
	"github.com/wenliu-dev/coursehub/internal/http/middlewares"
)

type stubVerifier struct {
	claims *auth.Claims
	err    error
}

func (s *stubVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func protectedRouter(v middlewares.TokenVerifier) *gin.Engine {
	mw := middlewares.NewAuthMiddleware(v)

	r := gin.New()
	r.GET("/me", mw.RequireAuth(), func(c *gin.Context) {
		id, _ := middlewares.UserIDFromContext(c)
		role, _ := middlewares.RoleFromContext(c)
		email, _ := middlewares.EmailFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role, "email": email})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	okVerifier := &stubVerifier{
		claims: &auth.Claims{UserID: "u1", Email: "u1@x.com", Role: "student", TokenType: "access"},
	}

	tests := []struct {
		name       string
		verifier   middlewares.TokenVerifier
		header     string
		wantStatus int
	}{
		{"no header", okVerifier, "", http.StatusUnauthorized},
		{"wrong scheme", okVerifier, "Basic abc", http.StatusUnauthorized},
		{"jwt scheme accepted", okVerifier, "JWT sometoken", http.StatusOK},
		{"bearer scheme accepted", okVerifier, "Bearer sometoken", http.StatusOK},
		{"rejected token", &stubVerifier{err: errors.New("expired")}, "JWT sometoken", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := protectedRouter(tc.verifier)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRequireAuthExposesIdentity(t *testing.T) {
	r := protectedRouter(&stubVerifier{
		claims: &auth.Claims{UserID: "u1", Email: "u1@x.com", Role: "instructor", TokenType: "access"},
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "JWT sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"email":"u1@x.com"`) {
		t.Fatalf("identity not exposed to handler: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"role":"instructor"`) {
		t.Fatalf("role not exposed to handler: %s", w.Body.String())
	}
}
