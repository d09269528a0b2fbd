package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/gin-gonic/gin"
)

const credentialsKey = "credentials"

func (s *HTTPServer) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error(c.Request.Context(), "panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	})
}

// observe logs every request and records it in the HTTP metrics.
func (s *HTTPServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), elapsed)
		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", elapsed,
			"client_ip", c.ClientIP(),
		)
	}
}

// session resolves the session token, from the cookie or a bearer header,
// into credentials. Requests without a token proceed with nil credentials.
func (s *HTTPServer) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(common.SessionCookieName)
		}
		if token == "" {
			c.Next()
			return
		}

		creds, err := s.svc.Sessions.Authenticate(token)
		if err != nil {
			s.logger.Warn(c.Request.Context(), "rejected session token", "error", err)
			s.clearSessionCookie(c)
			s.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(credentialsKey, creds)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func credentialsFrom(c *gin.Context) *models.Credentials {
	if v, ok := c.Get(credentialsKey); ok {
		if creds, ok := v.(*models.Credentials); ok {
			return creds
		}
	}
	return nil
}

func (s *HTTPServer) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookieName, token, int(s.opts.SessionValidity.Seconds()), "/", "", s.opts.SecureCookies, true)
}

func (s *HTTPServer) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.SessionCookieName, "", -1, "/", "", s.opts.SecureCookies, true)
}
