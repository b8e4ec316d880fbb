package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authFixture() (*http.Request, http.Handler, *string, *string) {
	var userID, workspaceID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = GetUserID(r.Context())
		workspaceID = GetWorkspaceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req, handler, &userID, &workspaceID
}

func TestAuthValidToken(t *testing.T) {
	req, next, userID, workspaceID := authFixture()
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		WorkspaceID: "ws-1",
	})
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", *userID)
	assert.Equal(t, "ws-1", *workspaceID)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	req, next, _, _ := authFixture()

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	req, next, _, _ := authFixture()
	req.Header.Set("Authorization", "Token abc")

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	req, next, _, _ := authFixture()
	token := signToken(t, "other-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		WorkspaceID: "ws-1",
	})
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	req, next, _, _ := authFixture()
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		WorkspaceID: "ws-1",
	})
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
