package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// pageRequest reads ?page= and ?limit=; invalid values fall back to defaults.
func pageRequest(c *gin.Context) models.PageRequest {
	var p models.PageRequest
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		p.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(models.DefaultPageSize))); err == nil {
		p.PageSize = size
	}
	return p.Normalize()
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be YYYY-MM-DD")
	}
	return &t, nil
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}
