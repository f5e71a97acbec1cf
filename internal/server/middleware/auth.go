// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// tenantIDKey is the context key for storing the authenticated tenant ID.
const tenantIDKey ContextKey = "tenantID"

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (TenantGetter, error)
}

// TenantGetter is an interface for extracting the tenant ID from token claims.
type TenantGetter interface {
	GetTenantID() uuid.UUID
}

// AuthMiddleware creates middleware that validates JWT tokens and adds the
// tenant ID to the request context.
func AuthMiddleware(jwtService TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Parse Bearer token
			// Handle case-insensitive "Bearer" prefix
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Validate token
			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Add tenant ID to request context
			ctx := context.WithValue(r.Context(), tenantIDKey, claims.GetTenantID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID extracts the authenticated tenant ID from the request context.
func GetTenantID(r *http.Request) (uuid.UUID, error) {
	tenantID, ok := r.Context().Value(tenantIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("tenant ID not found in request context")
	}
	return tenantID, nil
}

// TenantIDKey returns the context key for the tenant ID (for testing purposes).
func TenantIDKey() ContextKey {
	return tenantIDKey
}
