package accesslog

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"linkvault/internal/domain/link"
	"linkvault/internal/logger"
	"linkvault/internal/pkg/jwt"
	"linkvault/internal/pkg/response"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// LinkReader resolves a link for its owner.
type LinkReader interface {
	GetLink(ctx context.Context, code string, requester int64) (*link.Link, error)
}

type Handler struct {
	store    Store
	links    LinkReader
	hub      *Hub
	jwt      *jwt.Service
	upgrader websocket.Upgrader
}

// NewHandler builds the handler. Browser origins outside allowedOrigins
// cannot open the live feed; "*" allows any.
func NewHandler(store Store, links LinkReader, hub *Hub, jwtService *jwt.Service, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		store: store,
		links: links,
		hub:   hub,
		jwt:   jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// ListAccessLogs handles GET /api/v1/links/:code/access-logs
func (h *Handler) ListAccessLogs(c *gin.Context) {
	code := c.Param("code")
	if !link.ValidShortCode(code) {
		response.Fail(c, link.ProblemFor(link.ErrLinkNotFound))
		return
	}

	if _, err := h.links.GetLink(c.Request.Context(), code, c.GetInt64("user_id")); err != nil {
		response.Fail(c, link.ProblemFor(err))
		return
	}

	limit, offset := link.Pagination(c, defaultLogLimit, maxLogLimit)
	logs, err := h.store.ListByShortCode(c.Request.Context(), code, limit, offset)
	if err != nil {
		logger.Component("accesslog").WithError(err).Error("list access logs failed")
		response.Fail(c, link.ProblemFor(err))
		return
	}
	if logs == nil {
		logs = []*AccessLog{}
	}
	response.Success(c, http.StatusOK, gin.H{"logs": logs, "limit": limit, "offset": offset})
}

// Events handles GET /api/v1/ws/events?token=JWT
// Browsers cannot set headers on a websocket handshake, so the token comes in the query.
func (h *Handler) Events(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Fail(c, response.Problem{Status: http.StatusUnauthorized, Code: "TOKEN_REQUIRED", Message: "Token is required. Use ?token=YOUR_JWT_TOKEN"})
		return
	}
	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		response.Fail(c, response.Problem{Status: http.StatusUnauthorized, Code: "INVALID_TOKEN", Message: "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Component("accesslog").WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.hub.ServeWS(conn, claims.UserID)
}
