package accesslog

import "github.com/gin-gonic/gin"

// RegisterRoutes registers owner routes; rg must already require auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/links/:code/access-logs", h.ListAccessLogs)
}

// RegisterWSRoutes registers the live feed, which authenticates itself.
func (h *Handler) RegisterWSRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/events", h.Events)
}
