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

const testSecret = "0123456789abcdef0123456789abcdef"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestRequireAuth(t *testing.T) {
	valid := signed(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	subjectOnly := signed(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
	})
	expired := signed(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), Claims{UserID: "user-1"})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
		wantUser   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "", "user-1"},
		{"subject fallback", "Bearer " + subjectOnly, http.StatusOK, "", "user-2"},
		{"missing header", "", http.StatusUnauthorized, "auth_required", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "auth_invalid_scheme", ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "auth_invalid", ""},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized, "auth_invalid", ""},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "auth_invalid", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user string
			h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, _ = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestRequireAuth_RejectsNoneAlgorithm(t *testing.T) {
	token := signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{UserID: "user-1"})

	h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
