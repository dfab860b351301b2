package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/inms/inms/internal/auth"
	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
	_ "github.com/inms/inms/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSessionsForUser(ctx context.Context, userID int64) error {
	for id, uid := range s.sessions {
		if uid == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	registry := authz.NewRegistry(nil)
	handler := auth.NewHandler(nil, auth.NewService(repo), registry, sessionManager)
	return handler, sessionManager
}

func seededUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		ID:           1,
		Name:         "Test Reporter",
		Email:        "reporter@inms.test",
		PasswordHash: string(hashed),
		Role:         authz.RoleReporter,
		IsActive:     true,
	}
}

func doLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	router := chi.NewRouter()
	router.Route("/api", handler.MountPublic)
	router.ServeHTTP(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: seededUser(t, "correctpass")}
	handler, sessionManager := newAuthHandler(t, repo)

	res := doLogin(t, handler, sessionManager, `{"email":"reporter@inms.test","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var payload struct {
		Data struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Data.Role != authz.RoleReporter {
		t.Fatalf("expected reporter role, got %q", payload.Data.Role)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected one registered session, got %d", len(repo.sessions))
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: seededUser(t, "correctpass")}
	handler, sessionManager := newAuthHandler(t, repo)

	res := doLogin(t, handler, sessionManager, `{"email":"reporter@inms.test","password":"wrongpass1"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	user := seededUser(t, "correctpass")
	user.IsActive = false
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: user})

	res := doLogin(t, handler, sessionManager, `{"email":"reporter@inms.test","password":"correctpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	res := doLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"short"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
