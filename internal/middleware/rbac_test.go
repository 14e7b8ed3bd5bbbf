package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/clearspend/expense-approval-api/internal/models"
)

func runRBAC(t *testing.T, claims *models.JWTClaims, paramID string, allowed ...string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	c.Request = req
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	RBAC(allowed...)(c)
	return w
}

func TestRBACMissingClaims(t *testing.T) {
	w := runRBAC(t, nil, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBACRoleAllowed(t *testing.T) {
	claims := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}
	w := runRBAC(t, claims, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRoleForbidden(t *testing.T) {
	claims := &models.JWTClaims{UserID: "emp-1", Role: models.RoleEmployee}
	w := runRBAC(t, claims, "", string(models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatch(t *testing.T) {
	claims := &models.JWTClaims{UserID: "emp-1", Role: models.RoleEmployee}
	w := runRBAC(t, claims, "emp-1", "SELF", string(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApproverRolesRejectsEmployee(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/expenses/exp-1/approvals", nil)
	c.Request = req
	c.Set(ContextUserKey, &models.JWTClaims{UserID: "emp-1", Role: models.RoleEmployee})

	ApproverRoles()(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
