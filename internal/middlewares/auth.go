package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"valuations/internal/config"
)

// BearerAuth 校验 Authorization: Bearer <JWT>（HS256）。未配置密钥时放行。
// 校验通过后将 sub 写入 Context 的 "subject"。
func BearerAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.Header("WWW-Authenticate", `Bearer error="invalid_request"`)
			c.AbortWithStatusJSON(401, gin.H{"detail": "Not authenticated"})
			return
		}
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, opts...)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(401, gin.H{"detail": "Invalid token"})
			return
		}
		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set("subject", sub)
		}
		c.Next()
	}
}
