package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	apperrors "koinonia.app/notifier/internal/pkg/errors"
)

// Permissions carried in JWT claims.
const (
	// PermissionPlatformAdmin grants every permission.
	PermissionPlatformAdmin = "platform:admin"
	// PermissionBroadcast allows sending announcements to every user.
	PermissionBroadcast = "notifications:broadcast"
)

// RequirePermission returns middleware that checks if the authenticated user
// holds permission, or the platform admin permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get("permissions")
		if !exists {
			abortForbidden(c, "no permissions in context")
			return
		}
		permList, ok := perms.([]string)
		if !ok {
			abortForbidden(c, "invalid permissions type")
			return
		}

		if slices.Contains(permList, PermissionPlatformAdmin) || slices.Contains(permList, permission) {
			c.Next()
			return
		}

		abortForbidden(c, "insufficient permissions")
	}
}

func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code": apperrors.CodePermissionDenied, "message": msg,
	})
}
