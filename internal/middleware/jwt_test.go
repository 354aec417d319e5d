package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/svnapro/campus-api/internal/models"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func newAuthRouter(validator *validatorStub, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{JWTAuth(validator)}, extra...)
	router.GET("/secure", append(chain, func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID})
	})...)
	return router
}

func TestJWTAuthMissingHeader(t *testing.T) {
	router := newAuthRouter(&validatorStub{})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestJWTAuthInvalidToken(t *testing.T) {
	router := newAuthRouter(&validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer stale")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestJWTAuthStoresClaims(t *testing.T) {
	router := newAuthRouter(&validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesForbidden(t *testing.T) {
	router := newAuthRouter(
		&validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}},
		RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
	)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesAllowed(t *testing.T) {
	router := newAuthRouter(
		&validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleHOD}},
		RequireRoles(models.RoleAdmin, models.RoleHOD),
	)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
