package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lms-agent/model"
	"lms-agent/service"
)

type CapabilitiesResponse struct {
	Role         model.Role         `json:"role"`
	Capabilities []model.Capability `json:"capabilities"`
}

// CapabilitiesHandler lists what the given role may ask for: GET /chat/capabilities?role=user.
func CapabilitiesHandler(chatSvc *service.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := model.Role(c.DefaultQuery("role", string(model.RoleUser)))
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role", "roles": model.Roles})
			return
		}
		c.JSON(http.StatusOK, CapabilitiesResponse{Role: role, Capabilities: chatSvc.Capabilities(role)})
	}
}
