package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/models"
)

// ErrorCodeHeader carries the machine-readable code of an error response.
const ErrorCodeHeader = "X-Error-Code"

// Abort stops the chain with the standard error body.
func Abort(c *gin.Context, status int, code, message string) {
	c.Header(ErrorCodeHeader, code)
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message})
}

const (
	msgMissingKey = "missing API key: send X-API-Key or Authorization: Bearer <key>"
	msgBadKey     = "invalid API key"
)

// Auth accepts a request when it presents one of apiKeys, either as
// X-API-Key or as a bearer token. Blank keys are ignored; with no usable key
// the middleware lets everything through.
func Auth(apiKeys []string) gin.HandlerFunc {
	var keys [][]byte
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := presentedKey(c.Request)
		switch {
		case presented == "":
			Abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, msgMissingKey)
		case !knownKey(keys, presented):
			Abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, msgBadKey)
		default:
			c.Set(APIKeyKey, presented)
			c.Next()
		}
	}
}

// knownKey compares against every key in constant time.
func knownKey(keys [][]byte, presented string) bool {
	p := []byte(presented)
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, p)
	}
	return found == 1
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
