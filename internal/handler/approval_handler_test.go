package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/clearspend/expense-approval-api/internal/middleware"
	"github.com/clearspend/expense-approval-api/internal/models"
)

func approverContext(t *testing.T, method, path string, body []byte) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager})
	return w, c
}

func TestApprovalHandlerDecideMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/expenses/exp-1/approvals", nil)
	c.Request = req

	handler.Decide(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprovalHandlerDecideInvalidBody(t *testing.T) {
	handler := NewApprovalHandler(nil, nil)
	w, c := approverContext(t, http.MethodPost, "/expenses/exp-1/approvals", []byte(`not json`))

	handler.Decide(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalHandlerPendingMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/approvals/pending", nil)
	c.Request = req

	handler.Pending(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
