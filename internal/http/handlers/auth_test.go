package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wenliu-dev/coursehub/internal/auth"
	"github.com/wenliu-dev/coursehub/internal/config"
	"github.com/wenliu-dev/coursehub/internal/domain/user"
	"github.com/wenliu-dev/coursehub/internal/http/handlers"
	"github.com/wenliu-dev/coursehub/internal/repo/postgres"
	"github.com/wenliu-dev/coursehub/internal/security"
)

// fakeUserStore backs both the reader and writer side of the auth handler.

type fakeUserStore struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	createFn     func(ctx context.Context, email, passwordHash, username string, role user.Role) (user.User, error)
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUserStore) Create(ctx context.Context, email, passwordHash, username string, role user.Role) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, passwordHash, username, role)
	}
	return user.User{}, errors.New("createFn not set")
}

// fakeTx satisfies pgx.Tx for the handful of calls the handler makes. Anything
// touching the wire panics so a test that strays is loud about it.

type fakeTx struct{}

func (fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(ctx context.Context) error          { return nil }
func (fakeTx) Rollback(ctx context.Context) error        { return nil }
func (fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (fakeTx) Conn() *pgx.Conn { return nil }

// fakeRefreshStore keeps rows in memory so the rotation logic can be observed.

type fakeRefreshStore struct {
	rows map[string]postgres.RefreshTokenRow
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{rows: map[string]postgres.RefreshTokenRow{}}
}

func (f *fakeRefreshStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return fakeTx{}, nil
}

func (f *fakeRefreshStore) Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error {
	f.rows[row.ID] = row
	return nil
}

func (f *fakeRefreshStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
	}
	return row, nil
}

func (f *fakeRefreshStore) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	row.RevokedAt = &now
	row.ReplacedBy = replacedBy
	f.rows[id] = row
	return nil
}

func (f *fakeRefreshStore) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	for id, row := range f.rows {
		if row.UserID == userID {
			now := time.Now().UTC()
			row.RevokedAt = &now
			f.rows[id] = row
		}
	}
	return nil
}

func newAuthRouter(users *fakeUserStore, refresh *fakeRefreshStore) *gin.Engine {
	jwtManager := auth.NewManager("test-secret", 15*time.Minute, 7*24*time.Hour)

	h := handlers.NewAuthHandler(users, users, jwtManager, refresh, config.Config{Env: "dev"}, testLogger())

	r := gin.New()
	grp := r.Group("/api/user")
	grp.GET("/testAPI", h.TestAPI)
	grp.POST("/register", h.Register)
	grp.POST("/login", h.Login)
	grp.POST("/refresh", h.Refresh)
	grp.POST("/logout", h.Logout)
	return r
}

func TestRegister(t *testing.T) {
	t.Run("success returns prefixed token and no hash", func(t *testing.T) {
		users := &fakeUserStore{
			createFn: func(ctx context.Context, email, passwordHash, username string, role user.Role) (user.User, error) {
				if passwordHash == "secret123" {
					t.Fatal("password stored in the clear")
				}
				return user.User{
					ID:           uuid.NewString(),
					Username:     username,
					Email:        email,
					PasswordHash: passwordHash,
					Role:         role,
					CreatedAt:    time.Now().UTC(),
				}, nil
			},
		}
		r := newAuthRouter(users, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/register",
			`{"username":"jane","email":"jane@x.com","password":"secret123","role":"student"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}

		body := w.Body.String()
		if !strings.Contains(body, `"token":"JWT `) {
			t.Fatalf("token not prefixed with JWT: %s", body)
		}
		if strings.Contains(body, "passwordHash") || strings.Contains(body, "password_hash") {
			t.Fatalf("password hash leaked in response: %s", body)
		}
	})

	t.Run("duplicate email is a 400", func(t *testing.T) {
		users := &fakeUserStore{
			createFn: func(ctx context.Context, email, passwordHash, username string, role user.Role) (user.User, error) {
				return user.User{}, user.ErrEmailTaken
			},
		}
		r := newAuthRouter(users, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/register",
			`{"username":"jane","email":"jane@x.com","password":"secret123","role":"student"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "email_taken") {
			t.Fatalf("expected email_taken code: %s", w.Body.String())
		}
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		r := newAuthRouter(&fakeUserStore{}, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/register",
			`{"username":"jane","email":"jane@x.com","password":"secret123","role":"superuser"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		r := newAuthRouter(&fakeUserStore{}, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/register",
			`{"username":"jane","email":"jane@x.com","password":"abc","role":"student"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
		}
	})
}

func TestLogin(t *testing.T) {
	hash, err := security.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	known := user.User{
		ID:           uuid.NewString(),
		Username:     "jane",
		Email:        "jane@x.com",
		PasswordHash: hash,
		Role:         user.RoleInstructor,
	}

	lookup := func(ctx context.Context, email string) (user.User, error) {
		if email == known.Email {
			return known, nil
		}
		return user.User{}, user.ErrNotFound
	}

	t.Run("success", func(t *testing.T) {
		r := newAuthRouter(&fakeUserStore{getByEmailFn: lookup}, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/login",
			`{"email":"jane@x.com","password":"secret123"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"token":"JWT `) {
			t.Fatalf("token not prefixed with JWT: %s", w.Body.String())
		}

		// the refresh token rides on an http-only cookie scoped to /api/user
		cookies := w.Result().Cookies()
		var found bool
		for _, c := range cookies {
			if c.Name == "refresh_token" {
				found = true
				if !c.HttpOnly || c.Path != "/api/user" {
					t.Fatalf("refresh cookie misconfigured: %+v", c)
				}
			}
		}
		if !found {
			t.Fatal("refresh cookie not set")
		}
	})

	t.Run("unknown email is a 404", func(t *testing.T) {
		r := newAuthRouter(&fakeUserStore{getByEmailFn: lookup}, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/login",
			`{"email":"nobody@x.com","password":"secret123"}`)

		if w.Code != http.StatusNotFound {
			t.Fatalf("got status %d, want 404, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("wrong password is a 401", func(t *testing.T) {
		r := newAuthRouter(&fakeUserStore{getByEmailFn: lookup}, newFakeRefreshStore())

		w := doJSON(r, http.MethodPost, "/api/user/login",
			`{"email":"jane@x.com","password":"wrong-pass"}`)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401, body=%s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "invalid_credentials") {
			t.Fatalf("expected invalid_credentials code: %s", w.Body.String())
		}
	})
}

func TestRefreshRotatesToken(t *testing.T) {
	hash, err := security.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	known := user.User{
		ID:           uuid.NewString(),
		Email:        "jane@x.com",
		PasswordHash: hash,
		Role:         user.RoleStudent,
	}

	refresh := newFakeRefreshStore()
	r := newAuthRouter(&fakeUserStore{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			return known, nil
		},
	}, refresh)

	// log in to get the refresh cookie
	login := doJSON(r, http.MethodPost, "/api/user/login",
		`{"email":"jane@x.com","password":"secret123"}`)
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", login.Code, login.Body.String())
	}

	var refreshCookie *http.Cookie
	for _, c := range login.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	if refreshCookie == nil {
		t.Fatal("login did not set a refresh cookie")
	}

	req := newRequest(t, http.MethodPost, "/api/user/refresh", "")
	req.AddCookie(refreshCookie)
	w := serve(r, req)

	if w.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"token":"JWT `) {
		t.Fatalf("refresh did not return a prefixed token: %s", w.Body.String())
	}

	// the old row must be revoked and replaced
	var live, revoked int
	for _, row := range refresh.rows {
		if row.RevokedAt == nil {
			live++
		} else {
			revoked++
			if row.ReplacedBy == nil {
				t.Fatal("revoked token does not point at its replacement")
			}
		}
	}
	if live != 1 || revoked != 1 {
		t.Fatalf("expected one live and one revoked row, got live=%d revoked=%d", live, revoked)
	}

	// replaying the old cookie must now fail
	replay := newRequest(t, http.MethodPost, "/api/user/refresh", "")
	replay.AddCookie(refreshCookie)
	w2 := serve(r, replay)

	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token accepted: %d %s", w2.Code, w2.Body.String())
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	r := newAuthRouter(&fakeUserStore{}, newFakeRefreshStore())

	w := doJSON(r, http.MethodPost, "/api/user/refresh", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	r := newAuthRouter(&fakeUserStore{}, newFakeRefreshStore())

	w := doJSON(r, http.MethodPost, "/api/user/logout", "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", w.Code)
	}
}

func TestTestAPI(t *testing.T) {
	r := newAuthRouter(&fakeUserStore{}, newFakeRefreshStore())

	w := doJSON(r, http.MethodGet, "/api/user/testAPI", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
}
