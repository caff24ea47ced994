package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/auth"
	"github.com/accountd/apiserver/internal/metrics"
	"github.com/accountd/apiserver/internal/services"
	"github.com/accountd/apiserver/internal/store"
	"github.com/accountd/apiserver/types"
)

type fixedOtps struct{ code string }

func (g fixedOtps) Generate() (string, error) { return g.code, nil }

type inbox struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

func (i *inbox) put(to, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.last[to] = body
	return nil
}

func (i *inbox) SendWelcome(_ context.Context, to, name string) error { return i.put(to, name) }
func (i *inbox) SendVerifyOtp(_ context.Context, to, otp string) error { return i.put(to, otp) }
func (i *inbox) SendResetOtp(_ context.Context, to, otp string) error  { return i.put(to, otp) }

type testServer struct {
	router http.Handler
	inbox  *inbox
}

func newTestServer(t *testing.T, production bool) *testServer {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(config.AuthConfig{JWTSecret: "handler-secret"})
	require.NoError(t, err)

	box := &inbox{last: map[string]string{}}
	svc := services.NewAuthService(
		store.NewMemoryUserRepository(),
		auth.NewBcryptHasher(bcrypt.MinCost),
		fixedOtps{code: "123456"},
		tokens,
		box,
		nil,
	)
	return &testServer{router: newRouter(svc, production), inbox: box}
}

func newRouter(svc AuthService, production bool) http.Handler {
	h := NewAuthHandler(svc, NewCookiePolicy(production, 7*24*time.Hour), metrics.New(), nil)
	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) { AuthRouter(r, h) })
	r.Route("/api/user", func(r chi.Router) { UserRouter(r, h) })
	return r
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == TokenCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (s *testServer) register(t *testing.T, name, email, password string) *http.Cookie {
	t.Helper()
	rec, out := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"name": name, "email": email, "password": password}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, out["success"])
	return sessionCookie(t, rec)
}

func TestRegister_SetsCookie(t *testing.T) {
	s := newTestServer(t, false)

	cookie := s.register(t, "Alice", "alice@x.io", "hunter2")

	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	assert.Equal(t, "Alice", s.inbox.last["alice@x.io"])
}

func TestRegister_ProductionCookie(t *testing.T) {
	s := newTestServer(t, true)

	cookie := s.register(t, "Alice", "alice@x.io", "hunter2")

	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
}

func TestRegister_Failures(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "Alice", "alice@x.io", "hunter2")

	cases := []struct {
		name    string
		body    any
		message string
	}{
		{"duplicate", map[string]string{"name": "A2", "email": "ALICE@x.io", "password": "other"}, "User already exists"},
		{"missing password", map[string]string{"name": "Bob", "email": "bob@x.io"}, "All fields are required"},
		{"empty body", nil, "All fields are required"},
		{"malformed json", "{", "Invalid request body"},
		{"password too long", map[string]string{"name": "Bob", "email": "bob@x.io", "password": strings.Repeat("p", 80)}, "Password is too long"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := s.do(t, http.MethodPost, "/api/auth/register", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.message, out["message"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestRegister_WelcomeEmailFailure(t *testing.T) {
	s := newTestServer(t, false)
	s.inbox.err = errors.New("broker down")

	rec, out := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"name": "Alice", "email": "alice@x.io", "password": "hunter2"}, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, sessionCookie(t, rec).Value)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "Alice", "alice@x.io", "hunter2")

	rec, out := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@x.io", "password": "hunter2"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, sessionCookie(t, rec).Value)

	rec, out = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@x.io", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid email or password", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@x.io", "password": "x"}, nil)
	assert.Equal(t, "User not found", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@x.io"}, nil)
	assert.Equal(t, "Email and password are required", out["message"])
}

func TestLogout_ClearsCookie(t *testing.T) {
	s := newTestServer(t, false)

	rec, out := s.do(t, http.MethodPost, "/api/auth/logout", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	cookie := sessionCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestIsAuthenticated(t *testing.T) {
	s := newTestServer(t, false)
	cookie := s.register(t, "Alice", "alice@x.io", "hunter2")

	rec, out := s.do(t, http.MethodGet, "/api/auth/is-authenticated", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	rec, out = s.do(t, http.MethodGet, "/api/auth/is-authenticated", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, _ = s.do(t, http.MethodGet, "/api/auth/is-authenticated", nil, &http.Cookie{Name: TokenCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_BearerFallback(t *testing.T) {
	s := newTestServer(t, false)
	cookie := s.register(t, "Alice", "alice@x.io", "hunter2")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/is-authenticated", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEmailFlow(t *testing.T) {
	s := newTestServer(t, false)
	cookie := s.register(t, "Alice", "alice@x.io", "hunter2")

	rec, out := s.do(t, http.MethodPost, "/api/auth/send-verify-otp", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	code := s.inbox.last["alice@x.io"]
	require.Equal(t, "123456", code)

	_, out = s.do(t, http.MethodPost, "/api/auth/verify-email", map[string]string{"otp": "000000"}, cookie)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid OTP", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/verify-email", map[string]string{"otp": code}, cookie)
	assert.Equal(t, true, out["success"])

	_, out = s.do(t, http.MethodPost, "/api/auth/verify-email", map[string]string{"otp": code}, cookie)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid OTP", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/send-verify-otp", nil, cookie)
	assert.Equal(t, "Account is already verified", out["message"])

	_, out = s.do(t, http.MethodGet, "/api/user/data", nil, cookie)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{"name": "Alice", "isAccountVerified": true}, out["userData"])
}

func TestVerifyEmail_RequiresSession(t *testing.T) {
	s := newTestServer(t, false)

	rec, _ := s.do(t, http.MethodPost, "/api/auth/verify-email", map[string]string{"otp": "123456"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/user/data", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResetPasswordFlow(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "Alice", "alice@x.io", "hunter2")

	_, out := s.do(t, http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "ghost@x.io"}, nil)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "User not found", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/send-reset-otp", map[string]string{}, nil)
	assert.Equal(t, "Email is required", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "alice@x.io"}, nil)
	require.Equal(t, true, out["success"])
	code := s.inbox.last["alice@x.io"]

	_, out = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": "alice@x.io", "otp": code}, nil)
	assert.Equal(t, "Email, OTP and new password are required", out["message"])

	_, out = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": "alice@x.io", "otp": code, "newPassword": "s3cure!"}, nil)
	require.Equal(t, true, out["success"])

	_, out = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@x.io", "password": "hunter2"}, nil)
	assert.Equal(t, false, out["success"])
	_, out = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@x.io", "password": "s3cure!"}, nil)
	assert.Equal(t, true, out["success"])
}

func TestSendResetOtp_NotificationFailure(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "Alice", "alice@x.io", "hunter2")
	s.inbox.err = errors.New("broker down")

	rec, out := s.do(t, http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "alice@x.io"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "We could not send the email. Please try again later", out["message"])
}

type brokenService struct{ AuthService }

func (brokenService) Login(context.Context, string, string) (services.Session, error) {
	return services.Session{}, errors.New("connection refused")
}

func (brokenService) CheckSession(context.Context, string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (brokenService) UserData(context.Context, uuid.UUID) (types.User, error) {
	return types.User{}, errors.New("connection refused")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	s := &testServer{router: newRouter(brokenService{}, false)}

	rec, out := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.io", "password": "p"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, genericMessage, out["message"])
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec, out = s.do(t, http.MethodGet, "/api/user/data", nil, &http.Cookie{Name: TokenCookie, Value: "any"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, genericMessage, out["message"])
}

type pingerFunc func(context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(pingerFunc(func(context.Context) error { return nil }))(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Healthz(pingerFunc(func(context.Context) error { return errors.New("down") }))(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
