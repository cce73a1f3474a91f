package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveWithAuth(header string) *httptest.ResponseRecorder {
	handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// Feature: storefront-backend, Property 1: Protected endpoints reject missing tokens
func TestProperty_ProtectedEndpointsRejectMissingTokens(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without authorization header are rejected", prop.ForAll(
		func(method string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())
			req := httptest.NewRequest(method, "/orders", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			return w.Code == http.StatusUnauthorized
		},
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-backend, Property 2: Expired tokens are rejected
func TestProperty_ExpiredTokensAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("expired tokens are rejected with 401", prop.ForAll(
		func(userID string, role string) bool {
			token, err := IssueToken(testSecret, userID, domain.Role(role), time.Hour, time.Now().Add(-2*time.Hour))
			if err != nil {
				return false
			}
			return serveWithAuth("Bearer "+token).Code == http.StatusUnauthorized
		},
		gen.Identifier(),
		gen.OneConstOf("user", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-backend, Property 3: Valid tokens carry identity into the handler
func TestProperty_ValidTokensAllowProcessing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid tokens expose user id and role", prop.ForAll(
		func(userID string, role string) bool {
			token, err := IssueToken(testSecret, userID, domain.Role(role), time.Hour, time.Now())
			if err != nil {
				return false
			}

			var gotID string
			var gotRole domain.Role
			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, _ = GetUserID(r.Context())
				gotRole, _ = GetUserRole(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusOK && gotID == userID && string(gotRole) == role
		},
		gen.Identifier(),
		gen.OneConstOf("user", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront-backend, Property 4: Garbage tokens are rejected
func TestProperty_InvalidTokenRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("arbitrary bearer values are rejected", prop.ForAll(
		func(token string) bool {
			return serveWithAuth("Bearer "+token).Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.Property("values without the Bearer scheme are rejected", prop.ForAll(
		func(token string) bool {
			return serveWithAuth("Token "+token).Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestParseToken(t *testing.T) {
	now := time.Now()

	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueToken("other", "u1", domain.RoleUser, time.Hour, now)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		token, err := IssueToken(testSecret, "u1", domain.Role("root"), time.Hour, now)
		require.NoError(t, err)
		_, err = ParseToken(testSecret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := IssueToken(testSecret, "u1", domain.RoleUser, time.Minute, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = ParseToken(testSecret, token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("round trip", func(t *testing.T) {
		token, err := IssueToken(testSecret, "u1", domain.RoleAdmin, time.Hour, now)
		require.NoError(t, err)
		claims, err := ParseToken(testSecret, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, domain.RoleAdmin, claims.Role)
	})
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(zap.NewNop())(okHandler())

	tests := []struct {
		name string
		role domain.Role
		set  bool
		want int
	}{
		{"admin passes", domain.RoleAdmin, true, http.StatusOK},
		{"user forbidden", domain.RoleUser, true, http.StatusForbidden},
		{"no role forbidden", "", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/orders/1", nil)
			if tt.set {
				req = req.WithContext(WithUser(req.Context(), "u1", tt.role))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
