package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/model"
)

// Keys under which middleware stores request-scoped values on the gin context.
const (
	ContextRequestID = "request_id"
	ContextUserID    = "user_id"
	ContextRole      = "role"
)

// SetIdentity stores the authenticated caller.
func SetIdentity(c *gin.Context, claims *model.TokenClaims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
}

// Identity returns the authenticated caller. ok is false on routes that are
// not behind the auth middleware.
func Identity(c *gin.Context) (userID int64, role model.Role, ok bool) {
	id, idOK := c.Get(ContextUserID)
	r, roleOK := c.Get(ContextRole)
	if !idOK || !roleOK {
		return 0, 0, false
	}
	userID, idOK = id.(int64)
	role, roleOK = r.(model.Role)
	return userID, role, idOK && roleOK
}
