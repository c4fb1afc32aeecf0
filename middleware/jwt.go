package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/gin-gonic/gin"
)

// ClaimsKey gin context key holding *jwt.Claims
const ClaimsKey = "jwt_claims"

// JWTConfig identity middleware configuration
type JWTConfig struct {
	// Skipper skips the middleware when it returns true
	Skipper func(*gin.Context) bool

	// TokenLookup "header:<name>", "query:<name>" or "cookie:<name>"
	TokenLookup string

	// TokenHeadName token prefix, e.g. "Bearer"
	TokenHeadName string

	// Optional anonymous requests pass without a user id; invalid tokens are still rejected
	Optional bool

	// ErrorHandler renders verification failures (default 401)
	ErrorHandler func(*gin.Context, error)
}

// DefaultJWTConfig bearer token from the Authorization header
var DefaultJWTConfig = JWTConfig{
	TokenLookup:   "header:Authorization",
	TokenHeadName: "Bearer",
}

// JWT requires a valid token and stores the user id under UserIDKey
func JWT(tokenManager jwt.TokenManager) gin.HandlerFunc {
	return JWTWithConfig(tokenManager, DefaultJWTConfig)
}

// OptionalJWT identifies callers that present a token and lets anonymous ones through,
// so per-user partitions fall back to the client address
func OptionalJWT(tokenManager jwt.TokenManager) gin.HandlerFunc {
	cfg := DefaultJWTConfig
	cfg.Optional = true
	return JWTWithConfig(tokenManager, cfg)
}

// JWTWithConfig creates the identity middleware with a custom configuration
func JWTWithConfig(tokenManager jwt.TokenManager, config JWTConfig) gin.HandlerFunc {
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultJWTConfig.TokenLookup
	}
	if config.TokenHeadName == "" {
		config.TokenHeadName = DefaultJWTConfig.TokenHeadName
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultJWTErrorHandler
	}

	return func(c *gin.Context) {
		if config.Skipper != nil && config.Skipper(c) {
			c.Next()
			return
		}

		token, err := extractToken(c, config.TokenLookup, config.TokenHeadName)
		if errors.Is(err, jwt.ErrTokenMissing) && config.Optional {
			c.Next()
			return
		}
		if err != nil {
			config.ErrorHandler(c, err)
			return
		}

		claims, err := tokenManager.VerifyToken(c.Request.Context(), token)
		if err != nil {
			config.ErrorHandler(c, err)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.Identity())
		c.Next()
	}
}

func extractToken(c *gin.Context, tokenLookup, tokenHeadName string) (string, error) {
	source, name, ok := strings.Cut(tokenLookup, ":")
	if !ok {
		return "", jwt.ErrTokenMissing
	}

	var token string
	switch source {
	case "header":
		token = c.GetHeader(name)
	case "query":
		token = c.Query(name)
	case "cookie":
		token, _ = c.Cookie(name)
	}

	if tokenHeadName != "" {
		token = strings.TrimPrefix(token, tokenHeadName+" ")
	}
	if token == "" {
		return "", jwt.ErrTokenMissing
	}
	return token, nil
}

func defaultJWTErrorHandler(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, httpx.Response{
		Code: http.StatusUnauthorized,
		Msg:  err.Error(),
	})
}
