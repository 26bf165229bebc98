package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/pkg/auth"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer"}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func mintTestToken(t *testing.T, role enums.UserRole, userID uuid.UUID, issuedAt time.Time) string {
	t.Helper()
	token, err := auth.Mint(testJWT, issuedAt, time.Hour, auth.Identity{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func authorize(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestAuthChallengesMissingCredentials(t *testing.T) {
	h := Auth(testJWT, nil)(okHandler())
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer "} {
		resp := authorize(h, header)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, header)
		assert.Equal(t, `Bearer realm="trackvault"`, resp.Header().Get("WWW-Authenticate"), header)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	h := Auth(testJWT, nil)(okHandler())

	resp := authorize(h, "Bearer invalid")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Header().Get("WWW-Authenticate"), `error_description="token invalid"`)

	expired := mintTestToken(t, enums.UserRoleCustomer, uuid.New(), time.Now().Add(-2*time.Hour))
	resp = authorize(h, "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Header().Get("WWW-Authenticate"), `error="invalid_token", error_description="token expired"`)
}

func TestAuthSeedsCaller(t *testing.T) {
	userID := uuid.New()
	var user, role string
	h := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		role = RoleFromContext(r.Context())
	}))

	resp := authorize(h, "bearer "+mintTestToken(t, enums.UserRoleCustomer, userID, time.Now()))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID.String(), user)
	assert.Equal(t, string(enums.UserRoleCustomer), role)
	assert.Empty(t, resp.Header().Get("WWW-Authenticate"))
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleArtist)(okHandler())
	serve := func(role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusForbidden, serve(string(enums.UserRoleCustomer)))
	assert.Equal(t, http.StatusOK, serve(string(enums.UserRoleAdmin)))
	assert.Equal(t, http.StatusOK, serve(string(enums.UserRoleArtist)))
}
