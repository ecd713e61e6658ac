package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sms-panel/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	apiKeyHeader        = "X-Api-Key"
	bearerPrefix        = "Bearer "

	// Matches rbac.RoleReseller; API keys can never carry the admin role.
	apiKeyRole = "reseller"

	touchTimeout = 3 * time.Second
)

// RequireCredential resolves the caller identity from either an API key or a
// bearer token and injects it into the request context. The API key takes
// precedence when both are present. It does not perform role checks; those
// belong to internal/rbac.
func RequireCredential(m *Manager, keys KeyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := strings.TrimSpace(c.GetHeader(apiKeyHeader)); key != "" {
			accountID, err := keys.Resolve(c.Request.Context(), key)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Invalid or inactive API key"})
				return
			}

			// Usage bookkeeping is best-effort and must not delay the send.
			touchLastUsed(keys, key, logger.FromGin(c))

			applyIdentity(c, accountID, apiKeyRole, MethodAPIKey)
			c.Next()
			return
		}

		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "No authentication provided"})
			return
		}
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
			return
		}

		applyIdentity(c, claims.AccountID, claims.Role, MethodBearer)
		c.Next()
	}
}

// touchLastUsed updates last_used_at in a detached goroutine. The request
// context may be gone by the time the update lands, so it gets its own.
func touchLastUsed(keys KeyResolver, key string, log *slog.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := keys.TouchLastUsed(ctx, key, time.Now().UTC()); err != nil {
			log.Warn("api key last_used update failed", "err", err)
		}
	}()
}

func applyIdentity(c *gin.Context, accountID, role string, method Method) {
	ctx := WithIdentity(c.Request.Context(), accountID, role, method)
	c.Request = c.Request.WithContext(ctx)

	// Also store on gin context for handler convenience.
	c.Set("account_id", accountID)
	c.Set("role", role)
}
