package server

import (
	"net/http"
	"strings"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityContextKey = "dimsum_identity"

type identitySource string

const (
	identitySourceSession identitySource = "session"
	identitySourceBearer  identitySource = "bearer"
	identitySourceDev     identitySource = "dev"
)

// identity is the authenticated caller attached to the request context by
// one of the gate middlewares.
type identity struct {
	UserID        string
	Role          users.Role
	IsSystemAdmin bool
	Source        identitySource
}

func setIdentity(c *gin.Context, id identity) {
	c.Set(identityContextKey, id)
}

func currentIdentity(c *gin.Context) (identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return identity{}, false
	}
	id, ok := value.(identity)
	return id, ok
}

// requireSession authenticates the web surface via the session cookie.
func (h *httpHandler) requireSession(c *gin.Context) {
	if id, ok := devIdentity(c); ok {
		setIdentity(c, id)
		c.Next()
		return
	}

	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Debug("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	setIdentity(c, identity{
		UserID:        claims.UserID,
		Role:          claims.UserRole(),
		IsSystemAdmin: claims.IsSystemAdmin,
		Source:        identitySourceSession,
	})
	c.Next()
}

// requireBearer authenticates the miniprogram surface via the Authorization
// header and a stateless access-token check.
func (h *httpHandler) requireBearer(c *gin.Context) {
	if id, ok := devIdentity(c); ok {
		setIdentity(c, id)
		c.Next()
		return
	}

	token, ok := bearerToken(c.Request)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	payload, err := h.tokens.Verify(token, auth.TokenUseAccess)
	if err != nil {
		h.logger.Debug("bearer validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	setIdentity(c, identity{
		UserID:        payload.UserID,
		Role:          payload.Role,
		IsSystemAdmin: payload.IsSystemAdmin,
		Source:        identitySourceBearer,
	})
	c.Next()
}

// requireRoles allows the request through when the authenticated identity
// holds one of the listed roles. System admins pass every role gate.
func (h *httpHandler) requireRoles(allowed ...users.Role) gin.HandlerFunc {
	allowedSet := make(map[users.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if id.IsSystemAdmin {
			c.Next()
			return
		}
		if _, ok := allowedSet[id.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// optionalIdentity attaches an identity when a valid credential is present
// but never rejects the request. Used by the public view counter.
func (h *httpHandler) optionalIdentity(c *gin.Context) {
	if id, ok := devIdentity(c); ok {
		setIdentity(c, id)
		c.Next()
		return
	}

	if claims, err := h.sessions.ValidateRequest(c.Request); err == nil {
		setIdentity(c, identity{
			UserID:        claims.UserID,
			Role:          claims.UserRole(),
			IsSystemAdmin: claims.IsSystemAdmin,
			Source:        identitySourceSession,
		})
		c.Next()
		return
	}
	if token, ok := bearerToken(c.Request); ok {
		if payload, err := h.tokens.Verify(token, auth.TokenUseAccess); err == nil {
			setIdentity(c, identity{
				UserID:        payload.UserID,
				Role:          payload.Role,
				IsSystemAdmin: payload.IsSystemAdmin,
				Source:        identitySourceBearer,
			})
		}
	}
	c.Next()
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
