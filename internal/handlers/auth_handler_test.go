package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authportal/internal/middleware"
	"authportal/internal/models"
	"authportal/internal/services"
)

var testSecret = []byte("handler-secret")

// stubCredentials returns canned results and records the last call.
type stubCredentials struct {
	account *models.Account
	err     error
	calls   []string
}

func (s *stubCredentials) record(call string) { s.calls = append(s.calls, call) }

func (s *stubCredentials) Register(_ context.Context, email, _ string) (*models.Account, error) {
	s.record("register:" + email)
	return s.account, s.err
}

func (s *stubCredentials) Login(_ context.Context, email, _ string) (*models.Account, error) {
	s.record("login:" + email)
	return s.account, s.err
}

func (s *stubCredentials) SendOTP(_ context.Context, email string) error {
	s.record("send-otp:" + email)
	return s.err
}

func (s *stubCredentials) VerifyOTP(_ context.Context, email, code string) error {
	s.record("verify-otp:" + email + ":" + code)
	return s.err
}

func (s *stubCredentials) ForgotPassword(_ context.Context, email string) error {
	s.record("forgot-password:" + email)
	return s.err
}

func (s *stubCredentials) ResetPassword(_ context.Context, email, code, _ string) error {
	s.record("reset-password:" + email + ":" + code)
	return s.err
}

func (s *stubCredentials) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.record("get:" + id)
	return s.account, s.err
}

func (s *stubCredentials) CompensateRegistration(context.Context, *models.Account) error {
	return nil
}

func newRouter(stub *stubCredentials) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(stub, testSecret, time.Hour)
	api := r.Group("/api/auth")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/send-otp", h.SendOTP)
	api.POST("/verify-otp", h.VerifyOTP)
	api.POST("/forgot-password", h.ForgotPassword)
	api.POST("/reset-password", h.ResetPassword)
	api.GET("/me", middleware.AuthMiddleware(testSecret), h.Me)
	r.GET("/healthz", Healthz)
	return r
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRegister_Created(t *testing.T) {
	stub := &stubCredentials{account: &models.Account{ID: "acc-1", Email: "u@x.com", PasswordHash: "secret-hash"}}
	w := do(newRouter(stub), http.MethodPost, "/api/auth/register", `{"email":"u@x.com","password":"pw1111"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "User registered successfully", body["message"])
	assert.NotContains(t, w.Body.String(), "secret-hash")
	assert.Equal(t, []string{"register:u@x.com"}, stub.calls)
}

func TestRegister_ValidationFailsBeforeService(t *testing.T) {
	for name, payload := range map[string]string{
		"missing password": `{"email":"u@x.com"}`,
		"short password":   `{"email":"u@x.com","password":"123"}`,
		"bad email":        `{"email":"nope","password":"pw1111"}`,
		"not json":         `email=u@x.com`,
	} {
		t.Run(name, func(t *testing.T) {
			stub := &stubCredentials{}
			w := do(newRouter(stub), http.MethodPost, "/api/auth/register", payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w), "error")
			assert.Empty(t, stub.calls)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{services.ErrNotFound, http.StatusNotFound, "User not found"},
		{services.ErrConflict, http.StatusBadRequest, "User already exists"},
		{fmt.Errorf("%w: email and password are required", services.ErrInvalidInput), http.StatusBadRequest, "Invalid input"},
		{services.ErrInvalidCredentials, http.StatusBadRequest, "Invalid credentials"},
		{services.ErrInvalidCode, http.StatusBadRequest, "Invalid OTP"},
		{services.ErrExpired, http.StatusBadRequest, "OTP expired"},
		{fmt.Errorf("%w: boom", services.ErrSyncFailure), http.StatusInternalServerError, "Failed to synchronize account"},
		{errors.Join(fmt.Errorf("%w: x", services.ErrSyncFailure), errors.New("delete failed")), http.StatusInternalServerError, "Failed to synchronize account"},
		{fmt.Errorf("%w: smtp", services.ErrNotificationFailure), http.StatusInternalServerError, "Failed to send email"},
		{errors.New("db error: broken pipe"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := newRouter(&stubCredentials{err: tc.err})
			w := do(r, http.MethodPost, "/api/auth/verify-otp", `{"email":"u@x.com","otp":"123456"}`)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.msg, decode(t, w)["error"])
		})
	}
}

func TestLogin_IssuesUsableToken(t *testing.T) {
	stub := &stubCredentials{account: &models.Account{ID: "acc-1", Email: "u@x.com"}}
	r := newRouter(stub)

	w := do(r, http.MethodPost, "/api/auth/login", `{"email":"u@x.com","password":"pw1111"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Login successful", body["message"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	w = do(r, http.MethodGet, "/api/auth/me", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["email_verified"])
	assert.Contains(t, stub.calls, "get:acc-1")
}

func TestMe_RequiresToken(t *testing.T) {
	w := do(newRouter(&stubCredentials{}), http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFlowEndpoints_Success(t *testing.T) {
	cases := []struct {
		path, body, msg, call string
	}{
		{"/api/auth/send-otp", `{"email":"u@x.com"}`, "OTP sent successfully", "send-otp:u@x.com"},
		{"/api/auth/verify-otp", `{"email":"u@x.com","otp":"123456"}`, "Email verified successfully", "verify-otp:u@x.com:123456"},
		{"/api/auth/forgot-password", `{"email":"u@x.com"}`, "Password reset OTP sent", "forgot-password:u@x.com"},
		{"/api/auth/reset-password", `{"email":"u@x.com","otp":"654321","newPassword":"newpw1"}`, "Password reset successfully", "reset-password:u@x.com:654321"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			stub := &stubCredentials{}
			w := do(newRouter(stub), http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.msg, decode(t, w)["message"])
			assert.Equal(t, []string{tc.call}, stub.calls)
		})
	}
}

func TestResetPassword_ShortPasswordRejected(t *testing.T) {
	stub := &stubCredentials{}
	w := do(newRouter(stub), http.MethodPost, "/api/auth/reset-password", `{"email":"u@x.com","otp":"1","newPassword":"12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, stub.calls)
}

func TestHealthz(t *testing.T) {
	w := do(newRouter(&stubCredentials{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
