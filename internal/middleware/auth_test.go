package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret, userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	defer viper.Set("jwt.secret_key", "")

	var gotUserID string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes the identity through", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/downloads", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "user-abc"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-abc", gotUserID)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/downloads", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/downloads", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/downloads", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "user-abc"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": "user-abc",
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		req := httptest.NewRequest("GET", "/downloads", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
