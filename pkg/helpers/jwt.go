package helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and verifies the two token kinds the service issues:
// bearer session tokens carrying {uid, role} and single-purpose
// email-verification tokens carrying {uid}. The kinds use separate secrets
// so one can never be presented as the other.
type TokenManager struct {
	SessionSecret []byte
	VerifySecret  []byte
	SessionTTL    time.Duration
	VerifyTTL     time.Duration
}

func NewTokenManager(sessionSecret, verifySecret string, sessionTTL, verifyTTL time.Duration) *TokenManager {
	return &TokenManager{
		SessionSecret: []byte(sessionSecret),
		VerifySecret:  []byte(verifySecret),
		SessionTTL:    sessionTTL,
		VerifyTTL:     verifyTTL,
	}
}

type SessionClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type VerifyClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func (m *TokenManager) GenerateSessionToken(userID, role string) (string, time.Time, error) {
	exp := time.Now().Add(m.SessionTTL)
	claims := &SessionClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.SessionSecret)
	return s, exp, err
}

func (m *TokenManager) GenerateVerifyToken(userID string) (string, time.Time, error) {
	exp := time.Now().Add(m.VerifyTTL)
	claims := &VerifyClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.VerifySecret)
	return s, exp, err
}

func (m *TokenManager) ParseSessionToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parseInto(tokenStr, m.SessionSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) ParseVerifyToken(tokenStr string) (*VerifyClaims, error) {
	claims := &VerifyClaims{}
	if err := parseInto(tokenStr, m.VerifySecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(tokenStr string, secret []byte, claims jwt.Claims) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !tkn.Valid {
		return errors.New("invalid token")
	}
	return nil
}
