package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workclock/internal/apperr"
)

const claimsKey = "claims"

var (
	errMissingToken = errors.New("missing bearer token")
	errNotBearer    = errors.New("authorization scheme is not bearer")
)

// RejectFunc answers a request whose token was refused. err wraps
// apperr.ErrUnauthorized.
type RejectFunc func(c *gin.Context, err error)

// OptionalBearer parses a bearer JWT when one is sent. A present but invalid
// token is always rejected; a missing token is rejected only when required.
// A nil reject writes the error body directly.
func OptionalBearer(signingKey, issuer string, required bool, reject RejectFunc) gin.HandlerFunc {
	if reject == nil {
		reject = func(c *gin.Context, err error) {
			ae := apperr.From(err)
			c.AbortWithStatusJSON(ae.Status, gin.H{"message": ae.Message, "code": ae.Code})
		}
	}
	return func(c *gin.Context) {
		deny := func(err error) {
			reject(c, err)
			abortIfNotAborted(c)
		}
		authz := c.GetHeader("Authorization")
		if authz == "" {
			if required {
				deny(apperr.Unauthorized(errMissingToken))
				return
			}
			c.Next()
			return
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			deny(apperr.Unauthorized(errNotBearer))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			deny(apperr.Unauthorized(err))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by OptionalBearer, if any.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// abortIfNotAborted guards reject funcs that forget to abort.
func abortIfNotAborted(c *gin.Context) {
	if !c.IsAborted() {
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}
