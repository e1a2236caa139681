package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"gigbook/apperror"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenManager signs and validates HS256 bearer tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL is how long a refresh token stays valid.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// TokenPair is returned on refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

func (m *TokenManager) GenerateToken(subject, tokenType string) (string, time.Time, error) {
	ttl := m.accessTTL
	if tokenType == TokenTypeRefresh {
		ttl = m.refreshTTL
	}
	now := m.now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": subject,
		"typ": tokenType,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	return signed, exp, err
}

// GeneratePair issues a fresh access and refresh token for subject.
func (m *TokenManager) GeneratePair(subject string) (*TokenPair, error) {
	access, exp, err := m.GenerateToken(subject, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, _, err := m.GenerateToken(subject, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp.Unix()}, nil
}

// ExtractSubject validates tokenString as tokenType and returns its subject.
// Expired tokens fail with AuthExpired; anything else unusable with AuthRequired.
func (m *TokenManager) ExtractSubject(tokenString, tokenType string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", apperror.AuthExpired(err)
		}
		return "", apperror.AuthRequired("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", apperror.AuthRequired("invalid token")
	}
	if typ, _ := claims["typ"].(string); typ != tokenType {
		return "", apperror.AuthRequired("wrong token type")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", apperror.AuthRequired("token does not contain a valid 'sub' claim")
	}
	return sub, nil
}

// HashToken computes a SHA-256 hash of the token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
