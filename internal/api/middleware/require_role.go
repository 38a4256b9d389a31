package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
)

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// RequireRole admits requests whose JWT role is one of allowed. It must run after JWTAuth.
func RequireRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			set[a] = true
		}
	}

	return func(c *gin.Context) {
		if !set[c.GetString(CtxRole)] {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "role may not control calls")
			return
		}
		c.Next()
	}
}

// RequireOperator admits the roles allowed to place and end calls.
func RequireOperator() gin.HandlerFunc { return RequireRole(RoleOperator, RoleAdmin) }
