package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func newTestAuthService(t *testing.T) *AuthService {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Minute,
		Issuer:            "heronix-test",
		ClientID:          "registrar-bot",
		ClientSecretHash:  string(hash),
		ClientRole:        models.RoleAdmin,
	})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService(t)

	resp, err := svc.IssueToken(models.TokenRequest{ClientID: "registrar-bot", ClientSecret: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(60), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "registrar-bot", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "heronix-test", claims.Issuer)
}

func TestAuthServiceRejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.IssueToken(models.TokenRequest{ClientID: "registrar-bot", ClientSecret: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.IssueToken(models.TokenRequest{ClientID: "other", ClientSecret: "s3cret"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.IssueToken(models.TokenRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuthServiceRejectsForeignSignature(t *testing.T) {
	svc := newTestAuthService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "x", Role: models.RoleAdmin})
	signed, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuthService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.IssueToken(models.TokenRequest{ClientID: "registrar-bot", ClientSecret: "s3cret"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	assert.Error(t, err)
}
