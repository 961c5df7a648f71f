package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorKey is the gin context key holding the authenticated operator.
const OperatorKey = "drwatch_operator"

// Authenticate accepts a bearer token or HTTP basic credentials.
func (s *Service) Authenticate(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return s.Verify(strings.TrimSpace(parts[1]))
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return s.CheckPassword(user, pass)
	}
	return "", ErrInvalidCredentials
}

// GinAuth rejects unauthenticated requests with 401. A nil service disables
// the check.
func GinAuth(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		op, err := s.Authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="drwatch", Bearer`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(OperatorKey, op)
		c.Next()
	}
}

// Operator returns the operator stored by GinAuth, or "".
func Operator(c *gin.Context) string {
	return c.GetString(OperatorKey)
}
