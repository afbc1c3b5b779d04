package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func TestTokenRejectsBadSecret(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/auth/token", `{"client_id":"registrar","client_secret":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_CREDENTIALS")
}

func TestTokenMalformedPayload(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/auth/token", `{"client_id":`, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type stubTokenIssuer struct{}

func (stubTokenIssuer) IssueToken(req models.TokenRequest) (*models.TokenResponse, error) {
	if req.ClientSecret != "s3cret" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	return &models.TokenResponse{AccessToken: "token-" + req.ClientID, TokenType: "Bearer", ExpiresIn: 3600}, nil
}
