package storage

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"linkvault/internal/pkg/response"
)

// Handler delivers local blobs behind URLs minted by LocalStore.SignURL.
type Handler struct {
	store *LocalStore
}

func NewHandler(store *LocalStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/blobs/*path", h.Serve)
}

func (h *Handler) Serve(c *gin.Context) {
	p := c.Param("path")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil || !h.store.Verify(p, expires, c.Query("signature")) {
		response.Error(c, http.StatusForbidden, "INVALID_SIGNATURE", "signed URL is invalid or expired")
		return
	}

	obj, err := h.store.Open(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrInvalidPath) {
			response.Error(c, http.StatusNotFound, "BLOB_NOT_FOUND", "blob not found")
			return
		}
		response.Error(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage unavailable")
		return
	}
	defer obj.Body.Close()

	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, nil)
}
