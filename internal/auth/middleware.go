// Package auth guards the identification routes with optional bearer tokens.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/plant-identifier/internal/identify"
)

type callerKey struct{}

// Subject returns the token subject of the caller, if the request carried one.
// Rate limiting uses it as the bucket key.
func Subject(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(callerKey{}).(string)
	return subject, ok && subject != ""
}

// JWTMiddleware admits requests bearing an HMAC signed token with a subject
// and, when audience is set, that audience. With no secret configured the
// proxy is open and the returned handler only calls c.Next.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if audience = strings.TrimSpace(audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *gin.Context) {
		raw, problem := bearer(c.GetHeader("Authorization"))
		if problem != "" {
			reject(c, problem)
			return
		}

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}); err != nil {
			reject(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			reject(c, "token has no subject")
			return
		}

		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), callerKey{}, claims.Subject))
		c.Next()
	}
}

// bearer pulls the token out of an Authorization header. The second value
// is the rejection message when the header is unusable.
func bearer(header string) (string, string) {
	if header == "" {
		return "", "authorization header required"
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "bearer token required"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "bearer token required"
	}
	return token, ""
}

func reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, identify.ErrorResponse{Error: message})
}
