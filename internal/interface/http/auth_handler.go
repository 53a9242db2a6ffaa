package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labmetrixis/identity/config"
	"github.com/labmetrixis/identity/internal/application"
	"github.com/labmetrixis/identity/internal/domain/entity"
	"github.com/labmetrixis/identity/internal/domain/repository"
	"github.com/labmetrixis/identity/pkg/response"
	"github.com/labmetrixis/identity/pkg/validation"
)

type AuthHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
	Cfg    *config.Config
}

func NewAuthHandler(svc *application.Service, logger *logrus.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cfg: cfg}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,pwd"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,phone"`
	Role        string `json:"role" binding:"required,accountrole"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required,otp"`
}

type forgetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required,otp"`
	NewPassword string `json:"new_password" binding:"required,pwd"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	_, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Role:        entity.Role(req.Role),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			response.Error[any](c, http.StatusConflict, "email already registered", nil)
		case errors.Is(err, application.ErrRoleNotAllowed):
			response.Error[any](c, http.StatusBadRequest, "invalid role", nil)
		default:
			h.Logger.WithError(err).Error("register failed")
			response.Error[any](c, http.StatusInternalServerError, "registration failed", nil)
		}
		return
	}

	response.Success[any](c, http.StatusCreated, nil,
		"User registered successfully. Please check your email for verification.", nil)
}

// VerifyEmail GET /api/auth/verify-email?token=
// Redirects to the frontend on both outcomes; the browser follows the mailed link.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Redirect(http.StatusFound, h.Cfg.FrontendErrorURL+"?message=invalid-token")
		return
	}
	if err := h.Svc.VerifyEmail(c.Request.Context(), token); err != nil {
		c.Redirect(http.StatusFound, h.Cfg.FrontendErrorURL+"?message=invalid-token")
		return
	}
	c.Redirect(http.StatusFound, h.Cfg.FrontendLoginURL)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrUserNotFound):
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
		case errors.Is(err, application.ErrInvalidCredentials):
			response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
		case errors.Is(err, application.ErrEmailNotVerified):
			response.Error[any](c, http.StatusForbidden, "please verify your email before logging in", nil)
		default:
			h.Logger.WithError(err).Error("login failed")
			response.Error[any](c, http.StatusInternalServerError, "login failed", nil)
		}
		return
	}

	if res.OTPRequired {
		response.Success[any](c, http.StatusOK, nil, "OTP sent to email", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"token": res.Token, "role": res.Role},
		"login successful", map[string]any{"expires_at": res.ExpiresAt})
}

// VerifyOTP POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, err := h.Svc.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrUserNotFound):
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
		case errors.Is(err, application.ErrOTPInvalid):
			// One message for wrong and expired codes alike.
			response.Error[any](c, http.StatusBadRequest, "Invalid or expired OTP", nil)
		default:
			h.Logger.WithError(err).Error("verify otp failed")
			response.Error[any](c, http.StatusInternalServerError, "otp verification failed", nil)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": res.Token, "role": res.Role},
		"OTP verified successfully", map[string]any{"expires_at": res.ExpiresAt})
}

// ForgetPassword POST /api/auth/forget-password
func (h *AuthHandler) ForgetPassword(c *gin.Context) {
	var req forgetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, application.ErrUserNotFound) {
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		}
		h.Logger.WithError(err).Error("forget password failed")
		response.Error[any](c, http.StatusInternalServerError, "request failed", nil)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "OTP sent to email", nil)
}

// ResetPassword POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, application.ErrUserNotFound):
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
		case errors.Is(err, application.ErrOTPInvalid):
			response.Error[any](c, http.StatusBadRequest, "Invalid or expired OTP", nil)
		default:
			h.Logger.WithError(err).Error("reset password failed")
			response.Error[any](c, http.StatusInternalServerError, "reset failed", nil)
		}
		return
	}
	response.Success[any](c, http.StatusOK, nil, "password reset successfully", nil)
}

// Enable2FA POST /api/auth/enable-2fa (bearer session required)
func (h *AuthHandler) Enable2FA(c *gin.Context) {
	uid := c.GetString("userID")
	if uid == "" {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err := h.Svc.Enable2FA(c.Request.Context(), uid); err != nil {
		if errors.Is(err, application.ErrUserNotFound) {
			response.Error[any](c, http.StatusNotFound, "user not found", nil)
			return
		}
		h.Logger.WithError(err).Error("enable 2fa failed")
		response.Error[any](c, http.StatusInternalServerError, "enable 2fa failed", nil)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "2FA enabled successfully", nil)
}

// Me GET /api/auth/me (bearer session required)
func (h *AuthHandler) Me(c *gin.Context) {
	uid := c.GetString("userID")
	u, err := h.Svc.Profile(uid)
	if err != nil {
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"id":                 u.ID,
		"name":               u.Name,
		"email":              u.Email,
		"phone_number":       u.PhoneNumber,
		"role":               u.Role,
		"is_email_verified":  u.IsEmailVerified,
		"two_factor_enabled": u.TwoFactorEnabled,
		"created_at":         u.CreatedAt,
	}, "profile", nil)
}
