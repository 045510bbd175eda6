package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "koinonia.app/notifier/internal/pkg/errors"
)

// IngestSecretHeader carries the shared secret of the event ingest endpoint.
const IngestSecretHeader = "X-Ingest-Secret"

// RequireIngestSecret rejects requests whose IngestSecretHeader does not
// match secret. An empty secret rejects everything.
func RequireIngestSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(IngestSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    apperrors.CodeUnauthenticated,
				"message": "invalid ingest secret",
			})
			return
		}
		c.Next()
	}
}
