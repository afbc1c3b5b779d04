package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/response"
)

type tokenIssuer interface {
	IssueToken(req models.TokenRequest) (*models.TokenResponse, error)
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service tokenIssuer
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Token godoc
// @Summary Issue an access token
// @Description Exchange service-account credentials for a bearer token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Client credentials"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid token payload"))
		return
	}

	res, err := h.service.IssueToken(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, res)
}
