package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/middleware"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func requesterID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func yearParam(c *gin.Context) (int, error) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 2000 || year > 2100 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "year must be between 2000 and 2100")
	}
	return year, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer")
	}
	return v, nil
}

func dayTypeQuery(c *gin.Context) (models.DayType, error) {
	dayType := models.DayType(strings.ToUpper(strings.TrimSpace(c.Query("dayType"))))
	if !dayType.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "dayType must be ODD, EVEN or DAILY")
	}
	return dayType, nil
}

func bindError(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg)
}
