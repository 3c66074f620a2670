package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// BearerToken extracts the token from an Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[len("bearer "):])
	return token, token != ""
}

// RequireSession resolves the bearer token to a live session, counts the
// request as activity and stores the session on the context.
func RequireSession(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		s, err := m.Authenticate(c.Request.Context(), token)
		if err == nil {
			err = m.Touch(c.Request.Context(), s.ID)
		}
		if err != nil {
			abortAuth(c, m, err)
			return
		}
		c.Set(sessionKey, &s)
		c.Next()
	}
}

// OptionalSession attaches a session when a valid token is present and lets
// the request through without one otherwise. A session ended by the idle
// timer is still answered with the expiry notice, since Authenticate has
// consumed it.
func OptionalSession(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.Next()
			return
		}
		s, err := m.Authenticate(c.Request.Context(), token)
		if err == nil {
			err = m.Touch(c.Request.Context(), s.ID)
		}
		switch {
		case err == nil:
			c.Set(sessionKey, &s)
		case errors.Is(err, ErrSessionExpired):
			abortAuth(c, m, err)
			return
		}
		c.Next()
	}
}

// RequireRole rejects sessions for which allow returns false. It must run
// after RequireSession.
func RequireRole(allow func(*Session) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		if !allow(s) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session stored by RequireSession, or nil.
func CurrentSession(c *gin.Context) *Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Session)
	return s
}

func abortAuth(c *gin.Context, m *Manager, err error) {
	switch {
	case errors.Is(err, ErrSessionExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": m.Notice(),
			"code":  "session_expired",
			"view":  "home",
		})
	case errors.Is(err, ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
	default:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	}
}
