package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"linkvault/internal/pkg/response"
)

const roleAdmin = "admin"

// RequireRole lets the request through when the token role is one of roles.
// Must run after JWTAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		switch {
		case role == "":
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token carries no role")
		case !slices.Contains(roles, role):
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "This route needs one of: "+strings.Join(roles, ", "))
		default:
			c.Next()
		}
	}
}

// AdminOnly guards maintenance routes such as the batch expiry sweep.
func AdminOnly() gin.HandlerFunc {
	return RequireRole(roleAdmin)
}
