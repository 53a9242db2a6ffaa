package application

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/labmetrixis/identity/config"
	"github.com/labmetrixis/identity/internal/domain/entity"
	repo "github.com/labmetrixis/identity/internal/domain/repository"
	"github.com/labmetrixis/identity/pkg/helpers"
	"github.com/labmetrixis/identity/pkg/mailer"
	tpl "github.com/labmetrixis/identity/pkg/mailer/templates"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrRoleNotAllowed     = errors.New("role not allowed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrOTPInvalid         = errors.New("invalid or expired otp")
)

// EmailPublisher is the notifier contract: enqueue a message, best effort.
// Publish failures are logged by the caller and never abort the operation
// that triggered them.
type EmailPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// Service orchestrates the authentication lifecycle: registration, email
// verification, password login, OTP challenges, and session issuance.
type Service struct {
	Repo   repo.UserRepository
	Tokens *helpers.TokenManager
	Redis  *redis.Client
	Logger *logrus.Logger
	Pub    EmailPublisher
	Cfg    *config.Config

	// Now is injectable for expiry-window tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(repo repo.UserRepository, tokens *helpers.TokenManager, rdb *redis.Client, logger *logrus.Logger, pub EmailPublisher, cfg *config.Config) *Service {
	return &Service{
		Repo:   repo,
		Tokens: tokens,
		Redis:  rdb,
		Logger: logger,
		Pub:    pub,
		Cfg:    cfg,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Role        entity.Role
}

// Register creates an unverified user, stores a fresh verification token on
// the row, and enqueues the verification mail.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if !in.Role.SelfRegisterable() {
		return nil, ErrRoleNotAllowed
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNumber:  in.PhoneNumber,
		Role:         in.Role,
	}
	if err := s.Repo.Create(u); err != nil {
		return nil, err
	}

	token, exp, err := s.Tokens.GenerateVerifyToken(u.ID)
	if err != nil {
		return nil, err
	}
	u.VerificationToken = token
	u.VerificationExpires = exp
	if err := s.Repo.Update(u); err != nil {
		return nil, err
	}

	s.sendVerificationMail(ctx, u)
	return u, nil
}

// VerifyEmail redeems a verification token. The signature must verify and
// the token must still match the stored copy; redemption clears the stored
// copy so a second attempt fails even while the signature stays valid.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.Tokens.ParseVerifyToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	u, err := s.Repo.GetByID(claims.UserID)
	if err != nil {
		return ErrInvalidToken
	}
	if u.VerificationToken == "" || u.VerificationToken != token {
		return ErrInvalidToken
	}
	if s.now().After(u.VerificationExpires) {
		return ErrInvalidToken
	}

	u.IsEmailVerified = true
	u.ClearVerification()
	return s.Repo.Update(u)
}

// LoginResult carries either a session token or an OTP-required notice.
type LoginResult struct {
	OTPRequired bool
	Token       string
	ExpiresAt   time.Time
	Role        entity.Role
}

// Login authenticates email/password. Verified users without 2FA, and users
// inside the post-OTP grace window, get a session token directly; everyone
// else with 2FA enabled gets an OTP challenge mailed to them.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.Repo.GetByEmail(email)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if !helpers.CompareHashAndPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}

	if !u.TwoFactorEnabled || s.inGraceWindow(ctx, u.ID) {
		return s.issueSession(u)
	}

	now := s.now()
	if u.HasValidOTP(now) && now.Sub(u.LastOTPSentAt) < s.Cfg.OTPResendMinGap {
		// A fresh code is already on its way; don't reissue or resend.
		return &LoginResult{OTPRequired: true}, nil
	}
	if err := s.issueOTP(ctx, u, s.Cfg.LoginOTPTTL); err != nil {
		return nil, err
	}
	return &LoginResult{OTPRequired: true}, nil
}

// VerifyOTP validates a submitted login code. Success clears the stored code
// (single use), opens the grace window, and issues a session token.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*LoginResult, error) {
	u, err := s.Repo.GetByEmail(email)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if !helpers.OTPEqual(u.OTPCode, code) || s.now().After(u.OTPExpiresAt) {
		return nil, ErrOTPInvalid
	}

	u.ClearOTP()
	if err := s.Repo.Update(u); err != nil {
		return nil, err
	}
	s.openGraceWindow(ctx, u.ID)
	return s.issueSession(u)
}

// ForgotPassword issues a fresh reset OTP and mails it. The 404 for unknown
// emails is part of the documented interface.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Repo.GetByEmail(email)
	if err != nil {
		return ErrUserNotFound
	}
	return s.issueOTP(ctx, u, s.Cfg.ResetOTPTTL)
}

// ResetPassword replaces the password hash after validating the reset OTP
// issued by ForgotPassword. The reset path never opens a grace window.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	u, err := s.Repo.GetByEmail(email)
	if err != nil {
		return ErrUserNotFound
	}
	if !helpers.OTPEqual(u.OTPCode, code) || s.now().After(u.OTPExpiresAt) {
		return ErrOTPInvalid
	}

	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.ClearOTP()
	return s.Repo.Update(u)
}

// Enable2FA provisions a persistent second-factor secret and turns on OTP
// challenges for future logins. Idempotent for already-enabled users.
func (s *Service) Enable2FA(ctx context.Context, userID string) error {
	u, err := s.Repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	if u.TwoFactorEnabled {
		return nil
	}
	secret, err := helpers.GenTwoFactorSecret()
	if err != nil {
		return err
	}
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = secret
	return s.Repo.Update(u)
}

// Profile returns the user for a session's subject.
func (s *Service) Profile(userID string) (*entity.User, error) {
	u, err := s.Repo.GetByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) issueSession(u *entity.User) (*LoginResult, error) {
	token, exp, err := s.Tokens.GenerateSessionToken(u.ID, string(u.Role))
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate session token failed")
		}
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, Role: u.Role}, nil
}

// issueOTP replaces any outstanding code with a fresh one. The row write
// commits before the mail is enqueued.
func (s *Service) issueOTP(ctx context.Context, u *entity.User, ttl time.Duration) error {
	code, err := helpers.GenOTPCode()
	if err != nil {
		return err
	}
	now := s.now()
	u.OTPCode = code
	u.OTPExpiresAt = now.Add(ttl)
	u.LastOTPSentAt = now
	if err := s.Repo.Update(u); err != nil {
		return err
	}
	s.sendOTPMail(ctx, u, code, ttl)
	return nil
}

func (s *Service) inGraceWindow(ctx context.Context, userID string) bool {
	if s.Redis == nil {
		return false
	}
	n, err := s.Redis.Exists(ctx, helpers.KeyOTPGrace(userID)).Result()
	return err == nil && n > 0
}

func (s *Service) openGraceWindow(ctx context.Context, userID string) {
	if s.Redis == nil {
		return
	}
	key := helpers.KeyOTPGrace(userID)
	if err := s.Redis.Set(ctx, key, "1", s.Cfg.OTPGraceDuration).Err(); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("key", key).Warn("set otp grace key failed")
	}
}

func (s *Service) sendVerificationMail(ctx context.Context, u *entity.User) {
	if s.Pub == nil || s.Cfg == nil || !s.Cfg.MailSendEnabled {
		return
	}
	link := s.Cfg.VerifyEmailURL + "?token=" + u.VerificationToken
	data := tpl.EmailData{
		Name:      u.Name,
		Email:     u.Email,
		AppName:   s.Cfg.AppName,
		VerifyURL: link,
		ExpiresIn: tpl.WithExpiresIn(s.Cfg.VerifyTTL),
	}
	job := mailer.EmailJob{To: u.Email, Template: mailer.TemplateVerifyEmail, Data: tpl.ToMap(data)}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("enqueue verification mail failed")
	}
}

func (s *Service) sendOTPMail(ctx context.Context, u *entity.User, code string, ttl time.Duration) {
	if s.Pub == nil || s.Cfg == nil || !s.Cfg.MailSendEnabled {
		return
	}
	data := tpl.EmailData{
		Name:      u.Name,
		Email:     u.Email,
		AppName:   s.Cfg.AppName,
		Code:      code,
		ExpiresIn: tpl.WithExpiresIn(ttl),
	}
	job := mailer.EmailJob{To: u.Email, Template: mailer.TemplateOTPCode, Data: tpl.ToMap(data)}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("enqueue otp mail failed")
	}
}
