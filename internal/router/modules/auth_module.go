package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/labmetrixis/identity/internal/container"
	handlers "github.com/labmetrixis/identity/internal/interface/http"
	"github.com/labmetrixis/identity/internal/interface/middleware"
	"github.com/labmetrixis/identity/pkg/helpers"
)

// AuthModule wires the authentication endpoints.
// Public: register, verify-email, login, verify-otp, forget/reset password.
// Protected (bearer session): enable-2fa, me.
type AuthModule struct {
	Handler *handlers.AuthHandler
	Tokens  *helpers.TokenManager
}

func NewAuthModule(h *handlers.AuthHandler, tokens *helpers.TokenManager) *AuthModule {
	return &AuthModule{Handler: h, Tokens: tokens}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()

	registerLimiter := middleware.RateLimit(rdb, 5, time.Minute, middleware.KeyByIPAndPath())
	loginLimiter := middleware.RateLimit(rdb, 10, time.Minute, middleware.KeyByIP())
	otpLimiter := middleware.RateLimit(rdb, 30, time.Minute, middleware.KeyByIPAndPath())
	forgetLimiter := middleware.RateLimit(rdb, 5, time.Minute, middleware.KeyByIPAndPath())

	rg.POST("/auth/register", registerLimiter, m.Handler.Register)
	rg.GET("/auth/verify-email", m.Handler.VerifyEmail)
	rg.POST("/auth/login", loginLimiter, m.Handler.Login)
	rg.POST("/auth/verify-otp", otpLimiter, m.Handler.VerifyOTP)
	rg.POST("/auth/forget-password", forgetLimiter, m.Handler.ForgetPassword)
	rg.POST("/auth/reset-password", otpLimiter, m.Handler.ResetPassword)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Tokens))
	auth.Use(middleware.RateLimit(rdb, 60, time.Minute, middleware.KeyByUserID()))
	{
		auth.POST("/auth/enable-2fa", m.Handler.Enable2FA)
		auth.GET("/auth/me", m.Handler.Me)
	}
}
