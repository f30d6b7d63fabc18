package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/storefront/storefront-go/internal/crypto"
)

type contextKey string

const claimsKey contextKey = "claims"

// Guard messages.
const (
	MsgUnauthorized = "Unauthorized"
	MsgInvalidToken = "Invalid token"
	MsgForbidden    = "You are not authorized to perform this action"
)

// Authenticate returns middleware that requires a valid Bearer session token
// and attaches its claims to the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status, msg := verifyRequest(r, secret)
			if claims == nil {
				writeJSONError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin is Authenticate plus the admin claim. A valid non-admin token
// is rejected with 403.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status, msg := verifyRequest(r, secret)
			if claims == nil {
				writeJSONError(w, status, msg)
				return
			}
			if !claims.IsAdmin {
				writeJSONError(w, http.StatusForbidden, MsgForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when the request carries a valid token and
// otherwise lets it through anonymously. It never rejects.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, _, _ := verifyRequest(r, secret); claims != nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyRequest(r *http.Request, secret string) (*crypto.Claims, int, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, http.StatusUnauthorized, MsgUnauthorized
	}

	token, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || token == "" {
		return nil, http.StatusUnauthorized, MsgInvalidToken
	}

	claims, err := crypto.ValidateToken(token, secret)
	if err != nil {
		return nil, http.StatusUnauthorized, MsgInvalidToken
	}
	return claims, 0, ""
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *crypto.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts the authenticated session claims.
func ClaimsFromContext(ctx context.Context) (*crypto.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*crypto.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}

// IsAdmin reports whether the request was made with an admin session token.
func IsAdmin(ctx context.Context) bool {
	claims, ok := ClaimsFromContext(ctx)
	return ok && claims.IsAdmin
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": 0, "message": msg})
}
