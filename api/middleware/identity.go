package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/quota"
)

// Context keys set by the middleware in this package.
const (
	APIKeyKey   = "api_key"
	IdentityKey = "identity"
)

// UserIDHeader names the signed-in user forwarded by the front end.
const UserIDHeader = "X-User-ID"

// maxUserIDLen bounds the header value used in storage keys.
const maxUserIDLen = 128

// Identity resolves who the caller is for quotas and history: a signed-in
// user ("user:<id>") when X-User-ID is present, otherwise a guest keyed by
// client IP ("guest:<ip>").
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id != "" && len(id) <= maxUserIDLen {
			c.Set(IdentityKey, quota.UserPrefix+id)
		} else {
			c.Set(IdentityKey, "guest:"+c.ClientIP())
		}
		c.Next()
	}
}

// IdentityOf returns the identity set by Identity.
func IdentityOf(c *gin.Context) string {
	return c.GetString(IdentityKey)
}
