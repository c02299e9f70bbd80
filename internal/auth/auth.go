// Package auth issues and validates the API's JWT bearer tokens and
// verifies admin credentials against the configured bcrypt hash.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/OldStager01/service-autoscaler/pkg/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the token payload. Username doubles as the subject; the
// override API records it as set_by.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	secret        []byte
	ttl           time.Duration
	issuer        string
	adminUsername string
	adminHash     string
}

func NewService(cfg config.APIConfig) *Service {
	return &Service{
		secret:        []byte(cfg.JWTSecret),
		ttl:           cfg.JWTDuration,
		issuer:        cfg.JWTIssuer,
		adminUsername: cfg.AdminUsername,
		adminHash:     cfg.AdminPasswordHash,
	}
}

// Authenticate checks a username/password pair against the configured
// admin account. The bcrypt comparison runs even for a wrong username
// so both failures cost the same.
func (s *Service) Authenticate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) == 1
	passOK := CheckPassword(password, s.adminHash)
	return userOK && passOK
}

// GenerateToken signs a token for username and returns it with its
// expiry time.
func (s *Service) GenerateToken(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateToken parses and verifies a bearer token and returns its
// claims. Expiry is reported as ErrExpiredToken so the middleware can
// tell clients to re-login; every other failure is ErrInvalidToken.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash for the admin_password_hash
// config field. The -hash-password CLI flag uses it.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
