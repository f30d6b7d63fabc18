package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/metrics"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
	"github.com/storefront/storefront-go/internal/service"
)

const testSecret = "test-secret"

// outbox records the plaintext tokens the service hands to the notifier.
type outbox struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func newOutbox() *outbox {
	return &outbox{verify: map[string]string{}, reset: map[string]string{}}
}

func (o *outbox) SendVerificationEmail(_ context.Context, to, _, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verify[to] = token
	return nil
}

func (o *outbox) SendPasswordResetEmail(_ context.Context, to, _, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset[to] = token
	return nil
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	auth    *service.AuthService
	users   *repository.MemoryUserRepository
	outbox  *outbox
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		t:       t,
		users:   repository.NewMemoryUserRepository(),
		outbox:  newOutbox(),
		metrics: metrics.New(),
	}
	s.auth = service.NewAuthService(s.users, s.outbox, service.AuthConfig{
		JWTSecret:     testSecret,
		JWTExpiry:     time.Hour,
		ResetTokenTTL: time.Hour,
		MailTimeout:   time.Second,
		Metrics:       s.metrics,
	})
	s.handler = NewRouter(RouterConfig{
		Auth:       s.auth,
		Categories: service.NewCategoryService(repository.NewMemoryCategoryRepository()),
		JWTSecret:  testSecret,
		Metrics:    s.metrics,
	})
	t.Cleanup(s.auth.Wait)
	return s
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *testServer) verificationToken(email string) string {
	s.auth.Wait()
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()
	return s.outbox.verify[email]
}

func (s *testServer) resetToken(email string) string {
	s.auth.Wait()
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()
	return s.outbox.reset[email]
}

func registerBody() map[string]string {
	return map[string]string{
		"email":           "a@b.com",
		"password":        "Abcd123!",
		"confirmPassword": "Abcd123!",
		"firstName":       "A",
		"lastName":        "B",
	}
}

// verifiedUser registers a@b.com, verifies it and returns a session token.
func (s *testServer) verifiedUser() string {
	s.t.Helper()

	rec, _ := s.do(http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(s.t, http.StatusCreated, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/auth/verify-email?token="+s.verificationToken("a@b.com"), "", nil)
	require.Equal(s.t, http.StatusOK, rec.Code)

	rec, body := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.com", "password": "Abcd123!"})
	require.Equal(s.t, http.StatusOK, rec.Code)
	return body["token"].(string)
}

func (s *testServer) adminToken() string {
	s.t.Helper()

	hash, err := crypto.HashPassword("Admin123!")
	require.NoError(s.t, err)
	admin := &model.User{Email: "admin@b.com", FirstName: "Ad", LastName: "Min", PasswordHash: hash, IsAdmin: true, EmailVerified: true}
	require.NoError(s.t, s.users.Create(context.Background(), admin))

	rec, body := s.do(http.MethodPost, "/api/auth/admin-login", "", map[string]string{"email": "admin@b.com", "password": "Admin123!"})
	require.Equal(s.t, http.StatusOK, rec.Code)
	return body["token"].(string)
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1.0, body["status"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, false, user["emailVerified"])
	assert.NotContains(t, user, "passwordHash")

	login := map[string]string{"email": "a@b.com", "password": "Abcd123!"}

	rec, body = s.do(http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0.0, body["status"])
	assert.Equal(t, "Please verify your email before logging in", body["message"])

	token := s.verificationToken("a@b.com")
	require.NotEmpty(t, token)

	rec, body = s.do(http.MethodGet, "/api/auth/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email verified successfully. You can now log in!", body["message"])

	rec, _ = s.do(http.MethodGet, "/api/auth/verify-email?token="+token, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodPost, "/api/auth/login", "", login)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["status"])

	claims, err := crypto.ValidateToken(body["token"].(string), testSecret)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin)
	assert.Equal(t, user["id"], float64(claims.UserID))
	assert.NotContains(t, body["user"], "passwordHash")
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(http.MethodPost, "/api/auth/register", "", registerBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already in use", body["message"])
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)

	req := registerBody()
	req["password"] = "weak"
	req["confirmPassword"] = "other"
	req["firstName"] = "R2D2"

	rec, body := s.do(http.MethodPost, "/api/auth/register", "", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Validation failed", body["message"])

	fields := map[string]bool{}
	for _, e := range body["errors"].([]any) {
		fields[e.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["password"])
	assert.True(t, fields["confirmPassword"])
	assert.True(t, fields["firstName"])
	assert.False(t, fields["email"])

	_, err := s.users.GetByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestRegister_BadJSON(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodPost, "/api/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", body["message"])

	huge := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec, _ = s.do(http.MethodPost, "/api/auth/register", "", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)
	s.verifiedUser()

	rec, wrong := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.com", "password": "Wrong123!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, unknown := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "x@b.com", "password": "Abcd123!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrong["message"], unknown["message"])

	rec, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)
	s.verifiedUser()

	rec, body := s.do(http.MethodPost, "/api/auth/admin-login", "", map[string]string{"email": "a@b.com", "password": "Abcd123!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", body["message"])

	token := s.adminToken()
	claims, err := crypto.ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	token := s.verifiedUser()

	change := map[string]string{
		"currentPassword":    "Abcd123!",
		"newPassword":        "Newpass1!",
		"confirmNewPassword": "Newpass1!",
	}

	rec, body := s.do(http.MethodPost, "/api/auth/change-password", "", change)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", body["message"])

	rec, body = s.do(http.MethodPost, "/api/auth/change-password", "garbage", change)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", body["message"])

	mismatch := map[string]string{"currentPassword": "Abcd123!", "newPassword": "Newpass1!", "confirmNewPassword": "Newpass2!"}
	rec, _ = s.do(http.MethodPost, "/api/auth/change-password", token, mismatch)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	wrong := map[string]string{"currentPassword": "Wrong123!", "newPassword": "Newpass1!", "confirmNewPassword": "Newpass1!"}
	rec, body = s.do(http.MethodPost, "/api/auth/change-password", token, wrong)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Current password is incorrect", body["message"])

	rec, _ = s.do(http.MethodPost, "/api/auth/change-password", token, change)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.com", "password": "Newpass1!"})
	assert.Equal(t, http.StatusOK, rec.Code)

	ghost, err := crypto.GenerateToken(999, false, testSecret, time.Hour)
	require.NoError(t, err)
	rec, _ = s.do(http.MethodPost, "/api/auth/change-password", ghost, change)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	s := newTestServer(t)
	s.verifiedUser()

	rec, body := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "x@b.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email not found", body["message"])

	rec, _ = s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := s.resetToken("a@b.com")
	require.NotEmpty(t, token)

	reset := map[string]string{"token": token, "newPassword": "Newpass1!"}
	rec, _ = s.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodPost, "/api/auth/reset-password", "", reset)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired token", body["message"])

	rec, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.com", "password": "Newpass1!"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	token := s.verifiedUser()

	rec, body := s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@b.com", body["user"].(map[string]any)["email"])

	rec, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t)
	userToken := s.verifiedUser()
	adminToken := s.adminToken()

	bags := map[string]string{"name": "Bags", "image": "https://cdn.example.com/bags.jpg"}

	rec, _ := s.do(http.MethodPost, "/api/categories", "", bags)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(http.MethodPost, "/api/categories", userToken, bags)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not authorized to perform this action", body["message"])

	rec, body = s.do(http.MethodPost, "/api/categories", adminToken, bags)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := body["category"].(map[string]any)
	assert.Equal(t, "bags", created["slug"])
	assert.Equal(t, "ACTIVE", created["status"])
	bagsPath := "/api/categories/" + jsonID(created["id"])

	rec, body = s.do(http.MethodPost, "/api/categories", adminToken, bags)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Category name already in use", body["message"])

	rec, _ = s.do(http.MethodPost, "/api/categories", adminToken, map[string]string{"name": "Hats", "image": "not a url", "status": "HIDDEN"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.do(http.MethodPut, bagsPath, adminToken, map[string]string{
		"name": "Bags", "image": "https://cdn.example.com/bags.jpg", "status": "INACTIVE",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["categories"])

	rec, _ = s.do(http.MethodGet, bagsPath, userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/categories", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["categories"], 1)

	rec, _ = s.do(http.MethodGet, bagsPath, adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/categories/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodDelete, bagsPath, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodDelete, bagsPath, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Category not found", body["message"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestPanicIsRecoveredAndCounted(t *testing.T) {
	s := newTestServer(t)

	mux, ok := s.handler.(*chi.Mux)
	require.True(t, ok)
	mux.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec, _ := s.do(http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{method="GET",route="/boom",status="500"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func jsonID(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
