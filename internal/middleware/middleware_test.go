package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) Create(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(tokenStub{
		"admin":   {UserID: "u-admin", Role: models.RoleAdmin},
		"teacher": {UserID: "u-teacher", Role: models.RoleTeacher},
		"root":    {UserID: "u-root", Role: models.RoleSuperAdmin},
	}))
	r.POST("/invoices/:id", append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentUser(c).UserID})
	})...)
	r.POST("/fail/:id", append(handlers, func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})...)
	return r
}

func do(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingOrInvalidToken(t *testing.T) {
	r := newRouter()

	require.Equal(t, http.StatusUnauthorized, do(r, "/invoices/1", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "/invoices/1", "forged").Code)

	w := do(r, "/invoices/1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "u-admin")
}

func TestBearerTokenParsing(t *testing.T) {
	token, ok := bearerToken("bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	require.False(t, ok)
	_, ok = bearerToken("Bearer   ")
	require.False(t, ok)
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(RequireRoles(models.RoleAdmin))

	require.Equal(t, http.StatusOK, do(r, "/invoices/1", "admin").Code)
	require.Equal(t, http.StatusOK, do(r, "/invoices/1", "root").Code)
	require.Equal(t, http.StatusForbidden, do(r, "/invoices/1", "teacher").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditRecordsSuccessfulRequestsOnly(t *testing.T) {
	audit := &auditStub{}
	r := newRouter(Audit(audit, nil, "UPDATE", "invoice"))

	require.Equal(t, http.StatusOK, do(r, "/invoices/inv-9", "admin").Code)
	require.Equal(t, http.StatusConflict, do(r, "/fail/inv-9", "admin").Code)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	require.Equal(t, "UPDATE", entry.Action)
	require.Equal(t, "invoice", entry.Resource)
	require.Equal(t, "inv-9", *entry.ResourceID)
	require.Equal(t, "u-admin", *entry.UserID)
	require.Contains(t, string(entry.NewValues), `"/invoices/:id"`)
}
