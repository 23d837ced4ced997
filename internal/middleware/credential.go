package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/synchronizer"
)

// ContextKeyCredential is the Gin context key for the forwarded bearer token.
const ContextKeyCredential = "credential"

// CredentialSink receives the credential forwarded to the question service.
type CredentialSink interface {
	SetCredential(credential string)
}

// ForwardCredential takes the caller's bearer token, rejects it when it is
// a JWT past its expiry, and hands it to sink for remote calls. WebSocket
// upgrades may pass the token as ?token=.
func ForwardCredential(sink CredentialSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if synchronizer.Expired(token) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionExpired)
			return
		}

		sink.SetCredential(token)
		c.Set(ContextKeyCredential, token)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}
