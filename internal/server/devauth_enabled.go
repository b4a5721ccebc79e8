//go:build devauth

package server

import (
	"strings"

	"github.com/dimsum-app/backend/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	devUserHeader  = "X-Dev-User"
	devRoleHeader  = "X-Dev-Role"
	devAdminHeader = "X-Dev-Admin"
)

// devIdentity trusts the X-Dev-* headers so local frontends can exercise
// authenticated routes without a real credential. Only compiled in with the
// devauth build tag; never part of a production binary.
func devIdentity(c *gin.Context) (identity, bool) {
	userID := strings.TrimSpace(c.GetHeader(devUserHeader))
	if userID == "" {
		return identity{}, false
	}
	role, err := users.ParseRole(c.GetHeader(devRoleHeader))
	if err != nil {
		role = users.RoleUser
	}
	return identity{
		UserID:        userID,
		Role:          role,
		IsSystemAdmin: strings.EqualFold(c.GetHeader(devAdminHeader), "true"),
		Source:        identitySourceDev,
	}, true
}
