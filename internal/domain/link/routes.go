package link

import "github.com/gin-gonic/gin"

// RegisterRoutes registers owner routes; rg must already require auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	links := rg.Group("/links")
	{
		links.POST("", h.CreateLink)
		links.GET("", h.ListLinks)
		links.GET("/:code", h.GetLink)
		links.POST("/:code/revoke", h.RevokeLink)
	}
	rg.POST("/legacy/links/:id/revoke", h.LegacyRevoke)
}

// RegisterAdminRoutes registers maintenance routes; rg must require the admin role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/links/expire-overdue", h.ExpireOverdue)
}

// RegisterPublicRoutes registers visitor routes. verifyLimit guards every
// password attempt: the verify endpoint and resolves carrying X-Link-Password.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup, verifyLimit gin.HandlerFunc) {
	s := rg.Group("/s")
	if verifyLimit == nil {
		s.GET("/:code", h.Resolve)
		s.POST("/:code/verify", h.VerifyPassword)
		return
	}
	s.GET("/:code", passwordAttempts(verifyLimit), h.Resolve)
	s.POST("/:code/verify", verifyLimit, h.VerifyPassword)
}

// passwordAttempts applies limit only to requests that try a password.
func passwordAttempts(limit gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(passwordHeader) == "" {
			c.Next()
			return
		}
		limit(c)
	}
}
