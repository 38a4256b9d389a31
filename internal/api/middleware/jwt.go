package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxOperatorID = "operator_id"
	CtxRole       = "role"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func abort(c *gin.Context, status int, code utils.Code, msg string) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: msg})
}

// OperatorClaims are carried by the CRM/dashboard tokens that place and end calls.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuth guards the call-control API with an HS256 bearer token. Tokens must expire and
// name the operator in sub; iss is checked when issuer is set.
func JWTAuth(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(c *gin.Context) {
		if secret == "" {
			abort(c, http.StatusInternalServerError, utils.CodeMisconfigured, "API_JWT_SECRET is not set")
			return
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "missing bearer token")
			return
		}

		claims := &OperatorClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, key); err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				msg = "token expired"
			case errors.Is(err, jwt.ErrTokenInvalidIssuer):
				msg = "invalid token issuer"
			}
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, msg)
			return
		}
		if claims.Subject == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "missing subject")
			return
		}

		c.Set(CtxOperatorID, claims.Subject)
		c.Set(CtxRole, strings.ToLower(strings.TrimSpace(claims.Role)))
		c.Next()
	}
}
