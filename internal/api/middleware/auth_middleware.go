package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobassist/internal/auth"
)

// UserIDKey 为 gin 上下文中保存当前用户 ID 的键。
const UserIDKey = "userID"

// TokenValidator 校验访问令牌。
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

// AuthMiddleware 校验 Bearer 令牌并将 userID 注入上下文。
// 缺失或格式错误返回 401，令牌无效或过期返回 403。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			LoggerFromContext(c).Info("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}
