package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/service"
)

const testSecret = "test_secret"

func testAuthService() *service.AuthService {
	return service.NewAuthService(nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: time.Hour,
		Issuer:            "expense-approval-api",
	})
}

func signedToken(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID:    userID,
		CompanyID: "co-1",
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func runJWT(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/expenses", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c.Request = req

	JWT(testAuthService())(c)
	return w, c
}

func TestJWTMissingHeader(t *testing.T) {
	w, c := runJWT(t, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
}

func TestJWTMalformedHeader(t *testing.T) {
	w, _ := runJWT(t, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTInvalidToken(t *testing.T) {
	w, _ := runJWT(t, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidTokenSetsClaims(t *testing.T) {
	token := signedToken(t, "mgr-1", models.RoleManager)
	w, c := runJWT(t, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	claims, ok := CurrentClaims(c)
	require.True(t, ok)
	assert.Equal(t, "mgr-1", claims.UserID)
	assert.Equal(t, models.RoleManager, claims.Role)
}
