package security

import (
	"net/http"
	"strings"

	sec "NotifyGate/tools/security"
	"NotifyGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// Context keys downstream handlers read.
const (
	CtxPrincipalKey = "principal_id"
	CtxRoleKey      = "principal_role"
)

type Options struct {
	HeaderToken               string // default "Authorization"
	EnableAuthorizationBearer bool   // default true
	JWT                       sec.Options
}

func DefaultOptions(jwt sec.Options) *Options {
	return &Options{
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
		JWT:                       jwt,
	}
}

// Middleware verifies the bearer token and stores the principal in the
// gin context. Requests without a valid token are rejected.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		claims, err := sec.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail(err.Error()))
			return
		}

		c.Set(CtxPrincipalKey, claims.PrincipalID())
		c.Set(CtxRoleKey, claims.Role())
		c.Next()
	}
}

// PrincipalID reads the authenticated principal set by Middleware.
func PrincipalID(c *gin.Context) string {
	v, _ := c.Get(CtxPrincipalKey)
	s, _ := v.(string)
	return s
}
