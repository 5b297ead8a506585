package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/ratelimit"
)

// subjectKey holds the token subject in the gin context.
const subjectKey = "jwt_subject"

// RequireJWT accepts only HS256 bearer tokens signed with secret.
func RequireJWT(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		if secret == "" {
			writeError(c, apperror.Unauthorized(apperror.CodeUnauthorized, "execution endpoints are disabled"))
			return
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(c, apperror.Unauthorized(apperror.CodeUnauthorized, "missing bearer token"))
			return
		}

		token, err := parser.Parse(strings.TrimSpace(raw), func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			writeError(c, apperror.New(apperror.CodeUnauthorized,
				apperror.WithCause(err),
				apperror.WithContext("invalid token")))
			return
		}

		if sub, err := token.Claims.GetSubject(); err == nil {
			c.Set(subjectKey, sub)
		}
		c.Next()
	}
}

// RateLimit rejects requests once the client IP's bucket is empty.
func RateLimit(limiter *ratelimit.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			writeError(c, apperror.New(apperror.CodeRateLimitExceeded,
				apperror.WithContext(c.ClientIP())))
			return
		}
		c.Next()
	}
}
