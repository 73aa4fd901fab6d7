package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/internal/auth"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/models"
)

type memoryJTIs struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryJTIs) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *memoryJTIs) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memoryJTIs) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type fakeSessions struct {
	active  map[string]bool
	touched int
}

func (f *fakeSessions) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	if !f.active[sessionID] {
		return nil, store.ErrNotFound
	}
	return &models.Session{SessionID: sessionID, AccountID: "ig1"}, nil
}

func (f *fakeSessions) TouchSession(_ context.Context, _ string, _ time.Time) error {
	f.touched++
	return nil
}

func newProtectedRouter(t *testing.T, sessions *fakeSessions) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager(strings.Repeat("a", 32), strings.Repeat("b", 32), &memoryJTIs{keys: map[string]string{}})
	if err != nil {
		t.Fatal(err)
	}
	router := gin.New()
	router.GET("/me", NewAuthMiddleware(tokens, sessions, false).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetAccountID(c)+"/"+GetSessionID(c))
	})
	return router, tokens
}

func TestRequireAuthBearer(t *testing.T) {
	sessions := &fakeSessions{active: map[string]bool{"s1": true}}
	router, tokens := newProtectedRouter(t, sessions)
	pair, _ := tokens.IssueTokenPair(context.Background(), "ig1", "s1")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ig1/s1" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if sessions.touched != 1 {
		t.Errorf("touched = %d, want 1", sessions.touched)
	}
}

func TestRequireAuthMissingToken(t *testing.T) {
	router, _ := newProtectedRouter(t, &fakeSessions{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAuthRefreshesFromCookie(t *testing.T) {
	sessions := &fakeSessions{active: map[string]bool{"s1": true}}
	router, tokens := newProtectedRouter(t, sessions)
	ctx := context.Background()

	pair, _ := tokens.IssueTokenPair(ctx, "ig1", "s1")
	claims, _ := tokens.ValidateAccessToken(ctx, pair.AccessToken)
	tokens.RevokeToken(ctx, claims.ID, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: pair.AccessToken})
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	rotated := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		rotated[c.Name] = c.Value != ""
	}
	if !rotated["access_token"] || !rotated["refresh_token"] {
		t.Errorf("expected rotated cookies, got %v", rotated)
	}
	if _, err := tokens.ValidateRefreshToken(ctx, pair.RefreshToken); err == nil {
		t.Error("old refresh token must be revoked after rotation")
	}
}

func TestRequireAuthRevokedSession(t *testing.T) {
	router, tokens := newProtectedRouter(t, &fakeSessions{active: map[string]bool{}})
	pair, _ := tokens.IssueTokenPair(context.Background(), "ig1", "gone")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "session_revoked") {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
