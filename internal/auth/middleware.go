package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ViewerIDKey is the context key for the viewer ID
	ViewerIDKey ContextKey = "viewer_id"
	// ClaimsKey is the context key for token claims
	ClaimsKey ContextKey = "claims"
)

// Middleware validates bearer tokens and adds the viewer to the request context.
// With tokens disabled it passes requests through untouched.
func (h *SessionHandlers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.tokens.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			h.sendError(w, http.StatusUnauthorized, "MissingToken", "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid authorization header format")
			return
		}

		claims, err := h.tokens.ValidateStreamToken(parts[1])
		if err != nil {
			h.sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ViewerIDKey, claims.ViewerID)
		ctx = context.WithValue(ctx, ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetViewerID extracts the viewer ID from request context
func GetViewerID(r *http.Request) (string, bool) {
	viewerID, ok := r.Context().Value(ViewerIDKey).(string)
	return viewerID, ok && viewerID != ""
}

// GetClaims extracts token claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}
