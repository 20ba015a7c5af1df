// Package authgin adapts the bearerkit resolver to gin handler chains.
package authgin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/bearerkit/identity"
)

const (
	userKey      = "bearerkit.user"
	requestIDKey = "bearerkit.request_id"
)

// IdentityResolver is what the middleware needs from a resolver.
// *resolver.Resolver satisfies it.
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) (identity.User, error)
}

// RequireIdentity resolves the caller once per request and aborts with a
// bare 401 on any failure. The response body never says why: header shape,
// signature, introspection, and storage failures are indistinguishable to
// the client.
func RequireIdentity(res IdentityResolver, log logrus.FieldLogger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Set(requestIDKey, reqID)

		user, err := res.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			log.WithFields(logrus.Fields{
				"request_id": reqID,
				"path":       c.FullPath(),
			}).WithError(err).Debug("request unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the identity resolved by RequireIdentity, if any.
func CurrentUser(c *gin.Context) (identity.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return identity.User{}, false
	}
	u, ok := v.(identity.User)
	return u, ok
}

// RequestID returns the id assigned to this request by RequireIdentity.
func RequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
