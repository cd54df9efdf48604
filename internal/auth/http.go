// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts bearer tokens from the Authorization header and adds auth context

package auth

import (
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + msg + `"}`))
}

func forbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + msg + `"}`))
}

// requireToken builds a middleware that verifies a bearer token of the given
// use and attaches the resulting AuthContext to the request context.
func requireToken(issuer *Issuer, use string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			claims, err := issuer.Verify(token, use)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			authCtx := &AuthContext{
				ActorID:   claims.Subject,
				Kind:      claims.Kind,
				SessionID: claims.SessionID,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAccessToken creates a middleware that requires a valid access token.
func RequireAccessToken(issuer *Issuer) func(http.Handler) http.Handler {
	return requireToken(issuer, UseAccess)
}

// RequireRefreshToken creates a middleware that requires a valid refresh token.
// Used on the refresh endpoints per the route table.
func RequireRefreshToken(issuer *Issuer) func(http.Handler) http.Handler {
	return requireToken(issuer, UseRefresh)
}

// RequireAdmin creates a middleware that requires the authenticated actor to be
// an administrator. Must be used after RequireAccessToken.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				unauthorized(w, "not authenticated")
				return
			}

			if !authCtx.IsAdmin() {
				forbidden(w, "administrator role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalRefreshToken attempts to verify a refresh token but lets the request
// through unauthenticated when none is present or it is invalid. Logout uses
// this so it stays idempotent for clients that already lost their token.
func OptionalRefreshToken(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				next.ServeHTTP(w, r) // Continue as anonymous
				return
			}

			claims, err := issuer.Verify(token, UseRefresh)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := &AuthContext{
				ActorID:   claims.Subject,
				Kind:      claims.Kind,
				SessionID: claims.SessionID,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
