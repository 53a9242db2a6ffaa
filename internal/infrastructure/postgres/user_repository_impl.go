package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labmetrixis/identity/internal/domain/entity"
	"github.com/labmetrixis/identity/internal/domain/repository"
)

const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id, name, email, password_hash, phone_number, role,
	is_email_verified, verification_token, verification_expires,
	otp_code, otp_expires_at, last_otp_sent_at,
	two_factor_enabled, two_factor_secret,
	created_at, updated_at`

func (r *UserRepository) Create(u *entity.User) error {
	ctx := context.Background()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, phone_number, role,
			verification_token, verification_expires)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, u.Name, u.Email, u.PasswordHash, u.PhoneNumber, string(u.Role),
		nullStr(u.VerificationToken), nullTime(u.VerificationExpires))

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(id string) (*entity.User, error) {
	return r.getOne(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(email string) (*entity.User, error) {
	return r.getOne(`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
}

func (r *UserRepository) getOne(query string, arg any) (*entity.User, error) {
	ctx := context.Background()
	u := &entity.User{}
	var (
		role                string
		verificationToken   *string
		verificationExpires *time.Time
		otpCode             *string
		otpExpiresAt        *time.Time
		lastOTPSentAt       *time.Time
		twoFactorSecret     *string
	)

	row := r.pool.QueryRow(ctx, query, arg)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.PhoneNumber, &role,
		&u.IsEmailVerified, &verificationToken, &verificationExpires,
		&otpCode, &otpExpiresAt, &lastOTPSentAt,
		&u.TwoFactorEnabled, &twoFactorSecret,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	u.Role = entity.Role(role)
	u.VerificationToken = strVal(verificationToken)
	u.VerificationExpires = timeVal(verificationExpires)
	u.OTPCode = strVal(otpCode)
	u.OTPExpiresAt = timeVal(otpExpiresAt)
	u.LastOTPSentAt = timeVal(lastOTPSentAt)
	u.TwoFactorSecret = strVal(twoFactorSecret)
	return u, nil
}

func (r *UserRepository) Update(u *entity.User) error {
	ctx := context.Background()
	u.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $1, email = lower($2), password_hash = $3, phone_number = $4, role = $5,
			is_email_verified = $6, verification_token = $7, verification_expires = $8,
			otp_code = $9, otp_expires_at = $10, last_otp_sent_at = $11,
			two_factor_enabled = $12, two_factor_secret = $13, updated_at = $14
		WHERE id = $15
	`, u.Name, u.Email, u.PasswordHash, u.PhoneNumber, string(u.Role),
		u.IsEmailVerified, nullStr(u.VerificationToken), nullTime(u.VerificationExpires),
		nullStr(u.OTPCode), nullTime(u.OTPExpiresAt), nullTime(u.LastOTPSentAt),
		u.TwoFactorEnabled, nullStr(u.TwoFactorSecret), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

var _ repository.UserRepository = (*UserRepository)(nil)
