package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/pkg/config"
)

func testAuthConfig() config.APIConfig {
	return config.APIConfig{
		JWTSecret:     "test-secret",
		JWTDuration:   time.Hour,
		JWTIssuer:     "service-autoscaler",
		AdminUsername: "admin",
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService(testAuthConfig())

	token, expiresAt, err := svc.GenerateToken("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "service-autoscaler", claims.Issuer)
}

func TestValidateToken_Expired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.JWTDuration = -time.Minute
	svc := NewService(cfg)

	token, _, err := svc.GenerateToken("admin")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := NewService(testAuthConfig())

	otherSecret := testAuthConfig()
	otherSecret.JWTSecret = "different-secret"
	otherIssuer := testAuthConfig()
	otherIssuer.JWTIssuer = "someone-else"

	fromOtherSecret, _, err := NewService(otherSecret).GenerateToken("admin")
	require.NoError(t, err)
	fromOtherIssuer, _, err := NewService(otherIssuer).GenerateToken("admin")
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "admin"})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"wrong secret", fromOtherSecret},
		{"wrong issuer", fromOtherIssuer},
		{"alg none", noneToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	cfg := testAuthConfig()
	cfg.AdminPasswordHash = hash
	svc := NewService(cfg)

	assert.True(t, svc.Authenticate("admin", "s3cret"))
	assert.False(t, svc.Authenticate("admin", "wrong"))
	assert.False(t, svc.Authenticate("root", "s3cret"))
	assert.False(t, svc.Authenticate("", ""))
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
	assert.False(t, CheckPassword("hunter2", "not-a-bcrypt-hash"))
}
