package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"phFolio/internal/api/middleware"
	"phFolio/internal/config"
)

type recordingSessions struct {
	signedIn  []uint
	signedOut []uint
}

func (r *recordingSessions) SignedIn(_ context.Context, userID uint) { r.signedIn = append(r.signedIn, userID) }
func (r *recordingSessions) SignedOut(_ context.Context, userID uint) { r.signedOut = append(r.signedOut, userID) }

func newAuthTestServer(t *testing.T, redisStore sessionStore) (*testServer, *recordingSessions) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	authService := newTestAuth(t)
	sessions := &recordingSessions{}
	h := NewAuthHandler(db, authService, redisStore, sessions, slogDiscard(), config.AuthConfig{})

	router := gin.New()
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.POST("/refresh", h.Refresh)
	router.POST("/logout", middleware.AuthMiddleware(authService), h.Logout)
	router.POST("/change-password", middleware.AuthMiddleware(authService), h.ChangePassword)
	return &testServer{router: router, auth: authService}, sessions
}

func TestRegisterAndLogin(t *testing.T) {
	srv, sessions := newAuthTestServer(t, nil)
	creds := map[string]string{"username": "dora", "password": "correct-horse"}

	if w := srv.do(t, http.MethodPost, "/register", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", w.Code, w.Body.String())
	}
	if w := srv.do(t, http.MethodPost, "/register", "", creds); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", w.Code)
	}

	wrong := map[string]string{"username": "dora", "password": "wrong-password"}
	if w := srv.do(t, http.MethodPost, "/login", "", wrong); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", w.Code)
	}
	if len(sessions.signedIn) != 0 {
		t.Fatalf("failed login notified sessions")
	}

	w := srv.do(t, http.MethodPost, "/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[tokenResponse](t, w)
	if resp.AccessToken == "" || resp.TokenType != "Bearer" || resp.MustChangePassword {
		t.Fatalf("token response = %+v", resp)
	}
	if len(sessions.signedIn) != 1 {
		t.Fatalf("signedIn = %v", sessions.signedIn)
	}
	if !hasCookie(w, refreshTokenCookieName) {
		t.Fatalf("refresh cookie not set")
	}
}

func TestChangePasswordReplacesPassword(t *testing.T) {
	srv, _ := newAuthTestServer(t, nil)

	srv.do(t, http.MethodPost, "/register", "", map[string]string{"username": "erin", "password": "first-password"})
	login := decode[tokenResponse](t, srv.do(t, http.MethodPost, "/login", "", map[string]string{"username": "erin", "password": "first-password"}))

	w := srv.do(t, http.MethodPost, "/change-password", login.AccessToken, map[string]string{
		"current_password": "first-password",
		"new_password":     "second-password",
		"confirm_password": "second-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("change password status = %d body=%s", w.Code, w.Body.String())
	}
	if w := srv.do(t, http.MethodPost, "/login", "", map[string]string{"username": "erin", "password": "second-password"}); w.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, "/login", "", map[string]string{"username": "erin", "password": "first-password"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("login with old password status = %d", w.Code)
	}
}

func TestLogoutRevokesRefreshAndEndsSession(t *testing.T) {
	srv, sessions := newAuthTestServer(t, newMemoryLoginStore())
	creds := map[string]string{"username": "gail", "password": "correct-horse"}

	if w := srv.do(t, http.MethodPost, "/register", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d", w.Code)
	}
	w := srv.do(t, http.MethodPost, "/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}
	login := decode[tokenResponse](t, w)
	refresh := cookieValue(w, refreshTokenCookieName)
	claims, err := srv.auth.ValidateToken(login.AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	w = withRefreshCookie(t, srv, "/logout", login.AccessToken, refresh)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d body=%s", w.Code, w.Body.String())
	}
	if len(sessions.signedOut) != 1 || sessions.signedOut[0] != claims.UserID {
		t.Fatalf("signedOut = %v, want [%d]", sessions.signedOut, claims.UserID)
	}
	if cookieValue(w, refreshTokenCookieName) != "" {
		t.Fatalf("logout must clear the refresh cookie")
	}

	if w := withRefreshCookie(t, srv, "/refresh", "", refresh); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", w.Code)
	}
}

func TestLogoutWithoutRefreshTokenKeepsSession(t *testing.T) {
	srv, sessions := newAuthTestServer(t, newMemoryLoginStore())
	creds := map[string]string{"username": "hank", "password": "correct-horse"}
	srv.do(t, http.MethodPost, "/register", "", creds)
	login := decode[tokenResponse](t, srv.do(t, http.MethodPost, "/login", "", creds))

	if w := srv.do(t, http.MethodPost, "/logout", login.AccessToken, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("logout status = %d, want 401", w.Code)
	}
	if len(sessions.signedOut) != 0 {
		t.Fatalf("signedOut = %v, want none", sessions.signedOut)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	srv, _ := newAuthTestServer(t, newMemoryLoginStore())
	creds := map[string]string{"username": "iris", "password": "correct-horse"}
	srv.do(t, http.MethodPost, "/register", "", creds)
	refresh := cookieValue(srv.do(t, http.MethodPost, "/login", "", creds), refreshTokenCookieName)

	w := withRefreshCookie(t, srv, "/refresh", "", refresh)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", w.Code, w.Body.String())
	}
	if next := cookieValue(w, refreshTokenCookieName); next == "" || next == refresh {
		t.Fatalf("refresh must issue a new token")
	}
	if w := withRefreshCookie(t, srv, "/refresh", "", refresh); w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d, want 401", w.Code)
	}
}

func withRefreshCookie(t *testing.T, srv *testServer, path, token, refresh string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookieName, Value: refresh})
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func cookieValue(w *httptest.ResponseRecorder, name string) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func hasCookie(w *httptest.ResponseRecorder, name string) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}
