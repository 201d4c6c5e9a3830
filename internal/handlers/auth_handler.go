package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authportal/internal/middleware"
	"authportal/internal/models"
	"authportal/internal/services"
)

type AuthHandler struct {
	credentials services.CredentialService
	jwtSecret   []byte
	accessTTL   time.Duration
}

func NewAuthHandler(credentials services.CredentialService, jwtSecret []byte, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{credentials: credentials, jwtSecret: jwtSecret, accessTTL: accessTTL}
}

// @Summary      Регистрация
// @Description  Создаёт аккаунт и синхронизирует его во вторичное хранилище
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "Email и пароль"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	account, err := h.credentials.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": account})
}

// @Summary      Вход в систему
// @Description  Проверяет пароль и возвращает access token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Данные для входа"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	account, err := h.credentials.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, "login", err)
		return
	}

	token, exp, err := middleware.IssueAccessToken(h.jwtSecret, account, h.accessTTL)
	if err != nil {
		writeError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
		"user":       account,
	})
}

// @Summary      Отправить OTP
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/send-otp [post]
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req models.EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.credentials.SendOTP(c.Request.Context(), req.Email); err != nil {
		writeError(c, "send-otp", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully"})
}

// @Summary      Подтвердить email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyOTPRequest  true  "Email и код"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.credentials.VerifyOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		writeError(c, "verify-otp", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

// @Summary      Забыли пароль
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.credentials.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		writeError(c, "forgot-password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset OTP sent"})
}

// @Summary      Сброс пароля
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.ResetPasswordRequest  true  "Email, код и новый пароль"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.credentials.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		writeError(c, "reset-password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	account, err := h.credentials.GetAccount(c.Request.Context(), id)
	if err != nil {
		writeError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           account,
		"email_verified": account.EmailVerifiedAt != nil,
	})
}

// @Summary  Liveness
// @Tags     System
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		slog.InfoContext(c.Request.Context(), "[auth][bind] bad request", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
