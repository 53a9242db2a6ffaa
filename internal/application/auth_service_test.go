package application

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labmetrixis/identity/config"
	"github.com/labmetrixis/identity/internal/domain/entity"
	"github.com/labmetrixis/identity/internal/domain/repository"
	"github.com/labmetrixis/identity/pkg/helpers"
	"github.com/labmetrixis/identity/pkg/mailer"
)

// memRepo is an in-memory UserRepository used to exercise the flow logic
// without Postgres. It returns copies so mutations only persist via Update,
// like a real row store.
type memRepo struct {
	mu   sync.Mutex
	byID map[string]entity.User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]entity.User{}}
}

func (r *memRepo) Create(u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.byID[u.ID] = *u
	return nil
}

func (r *memRepo) GetByID(id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := u
	return &cp, nil
}

func (r *memRepo) GetByEmail(email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) Update(u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; !ok {
		return repository.ErrNotFound
	}
	u.UpdatedAt = time.Now()
	r.byID[u.ID] = *u
	return nil
}

// memPublisher records enqueued mail jobs.
type memPublisher struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
}

func (p *memPublisher) PublishJSON(ctx context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, body.(mailer.EmailJob))
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func (p *memPublisher) last() mailer.EmailJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs[len(p.jobs)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:          "labmetrixis-identity-test",
		SessionTTL:       time.Hour,
		VerifyTTL:        time.Hour,
		LoginOTPTTL:      3 * time.Minute,
		ResetOTPTTL:      10 * time.Minute,
		OTPResendMinGap:  time.Minute,
		OTPGraceDuration: 7 * 24 * time.Hour,
		VerifyEmailURL:   "http://localhost:8080/api/auth/verify-email",
		MailSendEnabled:  true,
	}
}

func newTestService(t *testing.T, rdb *redis.Client) (*Service, *memRepo, *memPublisher) {
	t.Helper()
	repo := newMemRepo()
	pub := &memPublisher{}
	cfg := testConfig()
	tokens := helpers.NewTokenManager("test-session-secret", "test-verify-secret", cfg.SessionTTL, cfg.VerifyTTL)
	svc := NewService(repo, tokens, rdb, helpers.NewLogger(cfg.AppName, "test"), pub, cfg)
	return svc, repo, pub
}

func register(t *testing.T, svc *Service, email string) *entity.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    email,
		Password: "pw1-longenough",
		Role:     entity.RoleResearcher,
	})
	require.NoError(t, err)
	return u
}

func registerVerified(t *testing.T, svc *Service, email string) *entity.User {
	t.Helper()
	u := register(t, svc, email)
	require.NoError(t, svc.VerifyEmail(context.Background(), u.VerificationToken))
	return u
}

func TestRegister(t *testing.T) {
	svc, repo, pub := newTestService(t, nil)

	u := register(t, svc, "alice@x.com")
	assert.False(t, u.IsEmailVerified)
	assert.NotEmpty(t, u.VerificationToken)
	assert.NotEqual(t, "pw1-longenough", u.PasswordHash)

	stored, err := repo.GetByEmail("alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.VerificationToken, stored.VerificationToken)

	require.Equal(t, 1, pub.count())
	job := pub.last()
	assert.Equal(t, mailer.TemplateVerifyEmail, job.Template)
	assert.Equal(t, "alice@x.com", job.To)
	assert.Contains(t, job.Data["VerifyURL"], u.VerificationToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	register(t, svc, "alice@x.com")
	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Imposter",
		Email:    "Alice@X.com",
		Password: "another-pw-123",
		Role:     entity.RoleTechnician,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Mallory",
		Email:    "mallory@x.com",
		Password: "pw-123456789",
		Role:     entity.RoleAdmin,
	})
	assert.ErrorIs(t, err, ErrRoleNotAllowed)
}

func TestVerifyEmailSingleUse(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := register(t, svc, "alice@x.com")
	token := u.VerificationToken

	require.NoError(t, svc.VerifyEmail(context.Background(), token))
	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)
	assert.Empty(t, stored.VerificationToken)

	// The JWT still verifies cryptographically, but the stored copy is gone.
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), token), ErrInvalidToken)
}

func TestVerifyEmailGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), "not-a-jwt"), ErrInvalidToken)
}

func TestVerifyEmailExpiredWindow(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	u := register(t, svc, "alice@x.com")
	svc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), u.VerificationToken), ErrInvalidToken)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.Login(context.Background(), "ghost@x.com", "whatever-pw")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginWrongPasswordNoStateChange(t *testing.T) {
	svc, repo, pub := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	before, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	mailsBefore := pub.count()

	_, err = svc.Login(context.Background(), "alice@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	after, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, before.OTPCode, after.OTPCode)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, mailsBefore, pub.count())
}

func TestLoginUnverifiedForbidden(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	register(t, svc, "alice@x.com")
	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestLoginWithout2FAIssuesSession(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	registerVerified(t, svc, "alice@x.com")
	res, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	assert.False(t, res.OTPRequired)
	require.NotEmpty(t, res.Token)

	claims, err := svc.Tokens.ParseSessionToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, string(entity.RoleResearcher), claims.Role)
}

func TestLoginWith2FAChallenges(t *testing.T) {
	svc, repo, pub := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	res, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
	assert.Empty(t, res.Token)

	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Len(t, stored.OTPCode, 6)
	assert.WithinDuration(t, time.Now().Add(3*time.Minute), stored.OTPExpiresAt, 5*time.Second)

	job := pub.last()
	assert.Equal(t, mailer.TemplateOTPCode, job.Template)
	assert.Equal(t, stored.OTPCode, job.Data["Code"])
}

func TestLoginResendThrottle(t *testing.T) {
	svc, repo, pub := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	base := time.Now()
	svc.Now = func() time.Time { return base }
	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	first, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	mails := pub.count()

	// Within the resend gap: no reissue, no extra mail.
	svc.Now = func() time.Time { return base.Add(30 * time.Second) }
	res, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
	second, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OTPCode, second.OTPCode)
	assert.Equal(t, first.OTPExpiresAt, second.OTPExpiresAt)
	assert.Equal(t, mails, pub.count())

	// After the gap a fresh code replaces the old one.
	svc.Now = func() time.Time { return base.Add(61 * time.Second) }
	_, err = svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	third, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.OTPCode, third.OTPCode)
	assert.Equal(t, mails+1, pub.count())
}

func TestVerifyOTPWindowBoundaries(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	base := time.Now()
	svc.Now = func() time.Time { return base }
	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	code := stored.OTPCode

	// 179s into a 3 minute window: still valid.
	svc.Now = func() time.Time { return base.Add(179 * time.Second) }
	res, err := svc.VerifyOTP(context.Background(), "alice@x.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	// Reissue, then try past the window.
	svc.Now = func() time.Time { return base.Add(5 * time.Minute) }
	_, err = svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	stored, err = repo.GetByID(u.ID)
	require.NoError(t, err)
	code = stored.OTPCode

	svc.Now = func() time.Time { return base.Add(5*time.Minute + 181*time.Second) }
	_, err = svc.VerifyOTP(context.Background(), "alice@x.com", code)
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestVerifyOTPSingleUse(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))
	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	code := stored.OTPCode

	_, err = svc.VerifyOTP(context.Background(), "alice@x.com", code)
	require.NoError(t, err)

	cleared, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.OTPCode)

	_, err = svc.VerifyOTP(context.Background(), "alice@x.com", code)
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestVerifyOTPWrongCode(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))
	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)

	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	wrong := "000000"
	if stored.OTPCode == wrong {
		wrong = "000001"
	}
	_, err = svc.VerifyOTP(context.Background(), "alice@x.com", wrong)
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestGraceWindowSuppressesChallenge(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc, repo, _ := newTestService(t, rdb)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	_, err := svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	stored, err := repo.GetByID(u.ID)
	require.NoError(t, err)

	res, err := svc.VerifyOTP(context.Background(), "alice@x.com", stored.OTPCode)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	// Inside the 7 day window: straight to a session token.
	res, err = svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	assert.False(t, res.OTPRequired)
	assert.NotEmpty(t, res.Token)

	// Window expired: challenged again.
	mr.FastForward(7*24*time.Hour + time.Second)
	res, err = svc.Login(context.Background(), "alice@x.com", "pw1-longenough")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
}

func TestForgotPasswordAndReset(t *testing.T) {
	svc, repo, pub := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	oldHash := mustGet(t, repo, u.ID).PasswordHash

	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@x.com"))
	stored := mustGet(t, repo, u.ID)
	assert.Len(t, stored.OTPCode, 6)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored.OTPExpiresAt, 5*time.Second)
	assert.Equal(t, mailer.TemplateOTPCode, pub.last().Template)

	require.NoError(t, svc.ResetPassword(context.Background(), "alice@x.com", stored.OTPCode, "pw2-longenough"))

	after := mustGet(t, repo, u.ID)
	assert.NotEqual(t, oldHash, after.PasswordHash)
	assert.Empty(t, after.OTPCode)
	assert.False(t, helpers.CompareHashAndPassword(after.PasswordHash, "pw1-longenough"))
	assert.True(t, helpers.CompareHashAndPassword(after.PasswordHash, "pw2-longenough"))

	// The reset OTP is spent.
	assert.ErrorIs(t,
		svc.ResetPassword(context.Background(), "alice@x.com", stored.OTPCode, "pw3-longenough"),
		ErrOTPInvalid)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	assert.ErrorIs(t, svc.ForgotPassword(context.Background(), "ghost@x.com"), ErrUserNotFound)
}

func TestResetPasswordWrongOTP(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@x.com"))
	stored := mustGet(t, repo, u.ID)
	wrong := "000000"
	if stored.OTPCode == wrong {
		wrong = "000001"
	}
	err := svc.ResetPassword(context.Background(), "alice@x.com", wrong, "pw2-longenough")
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestResetPasswordDoesNotOpenGraceWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc, repo, _ := newTestService(t, rdb)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	require.NoError(t, svc.ForgotPassword(context.Background(), "alice@x.com"))
	stored := mustGet(t, repo, u.ID)
	require.NoError(t, svc.ResetPassword(context.Background(), "alice@x.com", stored.OTPCode, "pw2-longenough"))

	res, err := svc.Login(context.Background(), "alice@x.com", "pw2-longenough")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
}

func TestEnable2FA(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	u := registerVerified(t, svc, "alice@x.com")
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))

	stored := mustGet(t, repo, u.ID)
	assert.True(t, stored.TwoFactorEnabled)
	assert.NotEmpty(t, stored.TwoFactorSecret)

	// Idempotent: the secret survives a second call.
	require.NoError(t, svc.Enable2FA(context.Background(), u.ID))
	again := mustGet(t, repo, u.ID)
	assert.Equal(t, stored.TwoFactorSecret, again.TwoFactorSecret)

	assert.ErrorIs(t, svc.Enable2FA(context.Background(), "missing-id"), ErrUserNotFound)
}

func mustGet(t *testing.T, repo *memRepo, id string) *entity.User {
	t.Helper()
	u, err := repo.GetByID(id)
	require.NoError(t, err)
	return u
}
