package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/device-services/dsc/internal/audit"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
)

// Role constants.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Scope constants.
const (
	ScopeRead    = "read"    // position reads, record reads, provider listing
	ScopeControl = "control" // watches, record writes, sync triggers, provider selection
	ScopeEvents  = "events"  // SSE event stream
)

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier *Verifier
	enabled  bool
}

// NewMiddleware creates an auth middleware. A nil verifier with enabled
// false passes every request through unauthenticated.
func NewMiddleware(verifier *Verifier, enabled bool) *Middleware {
	return &Middleware{verifier: verifier, enabled: enabled}
}

// RequireAuth requires a valid bearer token on every request except the
// health endpoint. Verified claims land in the request context and the
// subject is attached for audit logging.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next(w, r)
			return
		}

		if r.URL.Path == "/api/v1/health" {
			next(w, r)
			return
		}

		token, err := m.extractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
				"Authentication required", nil)
			return
		}

		claims, err := m.verifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
				"Invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = audit.WithUser(ctx, claims.Subject)
		next(w, r.WithContext(ctx))
	}
}

// RequireScope requires all listed scopes on the verified claims.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !m.enabled {
				next(w, r)
				return
			}

			claims := GetClaimsFromRequest(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Authentication required", nil)
				return
			}

			if !hasRequiredScopes(claims, requiredScopes) {
				writeError(w, http.StatusForbidden, "FORBIDDEN",
					"Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}

// RequireRole requires any of the listed roles on the verified claims.
func (m *Middleware) RequireRole(requiredRoles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !m.enabled {
				next(w, r)
				return
			}

			claims := GetClaimsFromRequest(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Authentication required", nil)
				return
			}

			if !hasRequiredRoles(claims, requiredRoles) {
				writeError(w, http.StatusForbidden, "FORBIDDEN",
					"Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func (m *Middleware) extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	return token, nil
}

func (m *Middleware) verifyToken(token string) (*Claims, error) {
	if m.verifier == nil {
		return nil, fmt.Errorf("no verifier configured")
	}
	return m.verifier.VerifyToken(token)
}

// hasRequiredScopes checks that the claims carry every required scope.
func hasRequiredScopes(claims *Claims, requiredScopes []string) bool {
	if claims == nil {
		return false
	}

	for _, required := range requiredScopes {
		found := false
		for _, scope := range claims.Scopes {
			if scope == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// hasRequiredRoles checks that the claims carry at least one required role.
func hasRequiredRoles(claims *Claims, requiredRoles []string) bool {
	if claims == nil {
		return false
	}
	if len(requiredRoles) == 0 {
		return true
	}

	for _, required := range requiredRoles {
		for _, role := range claims.Roles {
			if role == required {
				return true
			}
		}
	}

	return false
}

// GetClaimsFromRequest extracts claims from the request context.
func GetClaimsFromRequest(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// writeError writes an error response in the API envelope format.
func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	}

	if details != nil {
		response["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}
