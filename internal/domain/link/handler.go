package link

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"linkvault/internal/logger"
	"linkvault/internal/pkg/response"
	"linkvault/internal/pkg/validator"
	"linkvault/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100

	passwordHeader = "X-Link-Password"
)

type Handler struct {
	service *Service
	legacy  *LegacyAdapter
}

func NewHandler(service *Service, legacy *LegacyAdapter) *Handler {
	return &Handler{service: service, legacy: legacy}
}

// CreateLink handles POST /api/v1/links
func (h *Handler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.Problem{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Invalid JSON body"})
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		c.Set("error_code", "VALIDATION_ERROR")
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", errs)
		return
	}

	l, err := h.service.CreateLink(c.Request.Context(), req.toInput(c.GetInt64("user_id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, h.service.toResponse(l))
}

// ListLinks handles GET /api/v1/links
func (h *Handler) ListLinks(c *gin.Context) {
	limit, offset := Pagination(c, defaultListLimit, maxListLimit)

	links, err := h.service.ListLinks(c.Request.Context(), c.GetInt64("user_id"), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]LinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, h.service.toResponse(l))
	}
	response.Success(c, http.StatusOK, LinkListResponse{Links: out, Limit: limit, Offset: offset})
}

// GetLink handles GET /api/v1/links/:code
func (h *Handler) GetLink(c *gin.Context) {
	code := c.Param("code")
	if !ValidShortCode(code) {
		h.fail(c, ErrLinkNotFound)
		return
	}

	l, err := h.service.GetLink(c.Request.Context(), code, c.GetInt64("user_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.service.toResponse(l))
}

// RevokeLink handles POST /api/v1/links/:code/revoke
func (h *Handler) RevokeLink(c *gin.Context) {
	code := c.Param("code")
	if !ValidShortCode(code) {
		h.fail(c, ErrLinkNotFound)
		return
	}

	if err := h.service.RevokeLink(c.Request.Context(), code, c.GetInt64("user_id")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"short_code": code, "status": StatusRevoked})
}

// LegacyRevoke handles POST /api/v1/legacy/links/:id/revoke
func (h *Handler) LegacyRevoke(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, response.Problem{Status: http.StatusBadRequest, Code: "INVALID_ID", Message: "Invalid link ID"})
		return
	}

	code, err := h.legacy.RevokeByLinkID(c.Request.Context(), id, c.GetInt64("user_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"short_code": code, "status": StatusRevoked})
}

// ExpireOverdue handles POST /api/v1/admin/links/expire-overdue
func (h *Handler) ExpireOverdue(c *gin.Context) {
	n, err := h.service.ExpireOverdue(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, ExpireOverdueResponse{Expired: n})
}

// Resolve handles GET /s/:code
func (h *Handler) Resolve(c *gin.Context) {
	code := c.Param("code")
	if !ValidShortCode(code) {
		h.fail(c, ErrLinkNotFound)
		return
	}

	attempt := Attempt{
		Password: c.GetHeader(passwordHeader),
		Token:    firstNonEmpty(c.GetHeader("X-Link-Token"), c.Query("token")),
		Email:    firstNonEmpty(c.Query("email"), c.GetHeader("X-Link-Email")),
	}
	visitor := Visitor{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}

	c.Header("Cache-Control", "no-store")
	res, err := h.service.ResolveLink(c.Request.Context(), code, attempt, visitor)
	if err != nil {
		h.fail(c, err)
		return
	}

	if res.Access.IsStream() {
		defer res.Access.Body.Close()
		disposition := "attachment"
		if res.Flags.AllowPreview {
			disposition = "inline"
		}
		c.DataFromReader(http.StatusOK, res.Access.Size, res.Access.ContentType, res.Access.Body, map[string]string{
			"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": downloadName(res.Link)}),
		})
		return
	}

	if c.Query("mode") == "redirect" {
		c.Redirect(http.StatusFound, res.Access.URL)
		return
	}

	response.Success(c, http.StatusOK, ResolveResponse{
		URL:              res.Access.URL,
		ExpiresAt:        res.Access.ExpiresAt,
		AccessCount:      res.AccessCount,
		Policies:         res.Flags.Policies,
		ShowTrackingPage: res.Flags.ShowTrackingPage,
	})
}

// VerifyPassword handles POST /s/:code/verify
func (h *Handler) VerifyPassword(c *gin.Context) {
	code := c.Param("code")
	if !ValidShortCode(code) {
		h.fail(c, ErrLinkNotFound)
		return
	}

	var req VerifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, response.Problem{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Invalid JSON body"})
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		c.Set("error_code", "VALIDATION_ERROR")
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", errs)
		return
	}

	c.Header("Cache-Control", "no-store")
	token, exp, err := h.service.VerifyPassword(c.Request.Context(), code, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp})
}

func (h *Handler) fail(c *gin.Context, err error) {
	p := ProblemFor(err)
	if p.Status >= http.StatusInternalServerError {
		logger.Component("link").WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	response.Fail(c, p)
}

// ProblemFor maps link and storage errors onto the HTTP envelope.
func ProblemFor(err error) response.Problem {
	var deny *DenyError
	switch {
	case errors.Is(err, ErrInvalidTTL):
		return response.Problem{Status: http.StatusBadRequest, Code: "INVALID_TTL", Message: err.Error()}
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotPasswordProtected), errors.Is(err, storage.ErrInvalidPath):
		return response.Problem{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, ErrLinkNotFound):
		return response.Problem{Status: http.StatusNotFound, Code: "LINK_NOT_FOUND", Message: "Link not found"}
	case errors.Is(err, storage.ErrBlobNotFound):
		return response.Problem{Status: http.StatusNotFound, Code: "BLOB_NOT_FOUND", Message: "File not found"}
	case errors.As(err, &deny):
		return denyProblem(deny)
	case errors.Is(err, ErrForbidden):
		return response.Problem{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "You do not own this link"}
	case errors.Is(err, ErrAlreadyTerminal):
		return response.Problem{Status: http.StatusConflict, Code: "LINK_ALREADY_TERMINAL", Message: err.Error()}
	case errors.Is(err, storage.ErrStorageUnavailable):
		return response.Problem{Status: http.StatusServiceUnavailable, Code: "STORAGE_UNAVAILABLE", Message: "Storage is temporarily unavailable, retry later"}
	}
	return response.Problem{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "Internal server error"}
}

func denyProblem(d *DenyError) response.Problem {
	msg := d.Error()
	switch d.Reason {
	case ReasonRevoked:
		return response.Problem{Status: http.StatusGone, Code: "LINK_REVOKED", Message: msg}
	case ReasonExpired:
		return response.Problem{Status: http.StatusGone, Code: "LINK_EXPIRED", Message: msg}
	case ReasonLimitReached:
		return response.Problem{Status: http.StatusGone, Code: "LINK_LIMIT_REACHED", Message: msg}
	case ReasonPasswordRequired:
		return response.Problem{Status: http.StatusUnauthorized, Code: "PASSWORD_REQUIRED", Message: msg}
	case ReasonInvalidPassword:
		return response.Problem{Status: http.StatusForbidden, Code: "INVALID_PASSWORD", Message: msg}
	case ReasonEmailRequired:
		return response.Problem{Status: http.StatusUnprocessableEntity, Code: "EMAIL_REQUIRED", Message: msg}
	}
	return response.Problem{Status: http.StatusForbidden, Code: "ACCESS_DENIED", Message: msg}
}

// Pagination reads limit and offset query values, clamping limit to max.
func Pagination(c *gin.Context, def, max int) (int, int) {
	limit := def
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > max {
		limit = max
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func downloadName(l *Link) string {
	if name := strings.TrimSpace(l.Metadata.OriginalFileName); name != "" {
		return name
	}
	return path.Base(l.BlobPath)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
