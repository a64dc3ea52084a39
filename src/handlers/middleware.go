package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/security"
	"github.com/username/petshop/backend/src/utils"
)

// This type is unexported, making it unique to this package.
type contextKey string

const (
	userIDContextKey   contextKey = "userID"
	tenantIDContextKey contextKey = "tenantID"
)

// AuthHandler wraps the token validator and exposes the auth middleware.
type AuthHandler struct {
	authService *security.AuthService
}

func NewAuthHandler(authService *security.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := ""
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			tokenString = authHeader
		}

		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
			utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		claims, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		// Use the custom context key types; every downstream query is scoped
		// by the tenant carried in the token.
		ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID)
		ctx = context.WithValue(ctx, tenantIDContextKey, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext retrieves the userID from the context.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// GetTenantIDFromContext retrieves the tenantID from the context.
func GetTenantIDFromContext(ctx context.Context) (int64, bool) {
	tenantID, ok := ctx.Value(tenantIDContextKey).(int64)
	return tenantID, ok
}
