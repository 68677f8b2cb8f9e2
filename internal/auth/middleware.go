package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	claimsContextKey contextKey = "claims"
	tokenContextKey  contextKey = "token"
)

// ExtractToken extracts a JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// IdentifyBuyer adds claims and the raw token to the request context when a
// valid token is present. Absence of a token is not an error: the request
// proceeds on the guest path.
func IdentifyBuyer(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateAccessToken(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), claimsContextKey, claims)
					ctx = context.WithValue(ctx, tokenContextKey, tokenString)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext retrieves buyer claims from the request context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// TokenFromContext retrieves the raw bearer token, for forwarding to the backend
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

// ContextWithToken attaches a raw bearer token (used by tests and internal callers)
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}
