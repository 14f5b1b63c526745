package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
)

// UserIDKey is the gin context key an authenticated request's caller
// id is stored under, set by RequireAuth.
const UserIDKey = "labrinth_user_id"

// Claims is the subset of the identity provider's JWT this service
// relies on: sub carries the Labrinth user id as a base-10 string.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator validates a bearer token against a JWKS endpoint and
// resolves it to a Labrinth user id.
type Authenticator struct {
	jwks *keyfunc.JWKS
}

// NewAuthenticator fetches and caches the identity provider's signing
// keys, refreshing them on the same schedule the teacher's Web3Auth
// client uses.
func NewAuthenticator(jwksURL string) (*Authenticator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshRateLimit: time.Minute,
		RefreshTimeout:   10 * time.Second,
		RefreshErrorHandler: func(err error) {
			logger.Error("JWKS refresh failed", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("middleware: fetch JWKS: %w", err)
	}
	return &Authenticator{jwks: jwks}, nil
}

// UserIDFromToken parses and validates a bearer token, returning the
// Labrinth user id encoded in its subject claim.
func (a *Authenticator) UserIDFromToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, a.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return 0, apperr.Unauthorizedf("invalid bearer token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return 0, apperr.Unauthorizedf("invalid token claims")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, apperr.Unauthorizedf("token subject is not a user id")
	}
	return userID, nil
}

// RequireAuth rejects requests without a valid bearer token and stashes
// the resolved user id in the gin context under UserIDKey.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apperr.Respond(c, apperr.Unauthorizedf("missing bearer token"))
			c.Abort()
			return
		}
		userID, err := a.UserIDFromToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			apperr.Respond(c, err)
			c.Abort()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext reads the user id RequireAuth stashed in the
// context; callers should only use this behind that middleware.
func UserIDFromContext(c *gin.Context) int64 {
	v, _ := c.Get(UserIDKey)
	id, _ := v.(int64)
	return id
}
