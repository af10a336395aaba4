package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkvault/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// stubAuth stands in for the JWT middleware: X-Test-User becomes user_id.
func stubAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.GetHeader("X-Test-User"), 10, 64)
		c.Set("user_id", id)
		c.Next()
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *serviceFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newServiceFixture(t, nil)
	h := NewHandler(f.svc, NewLegacyAdapter(f.store, f.svc))

	r := gin.New()
	h.RegisterPublicRoutes(&r.RouterGroup, nil)
	api := r.Group("/api/v1", stubAuth())
	h.RegisterRoutes(api)
	h.RegisterAdminRoutes(api.Group("/admin"))
	return r, f
}

func doJSON(r http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func owner(id int64) map[string]string {
	return map[string]string{"X-Test-User": strconv.FormatInt(id, 10)}
}

func createViaAPI(t *testing.T, r http.Handler, body map[string]any) LinkResponse {
	t.Helper()
	w, env := doJSON(r, http.MethodPost, "/api/v1/links", body, owner(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out LinkResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHandler_CreateLink(t *testing.T) {
	r, _ := setupRouter(t)

	out := createViaAPI(t, r, map[string]any{
		"blob_path":          "docs/report.pdf",
		"ttl_hours":          24,
		"max_access_count":   3,
		"password":           "secret",
		"original_file_name": "Q1 report.pdf",
	})
	assert.Equal(t, StatusActive, out.Status)
	assert.Equal(t, "https://share.example.com/s/"+out.ShortCode, out.URL)
	assert.True(t, out.HasPassword)
	assert.True(t, out.Policies.AllowPreview, "preview defaults to on")
	require.NotNil(t, out.MaxAccessCount)
	assert.Equal(t, int64(3), *out.MaxAccessCount)

	w, env := doJSON(r, http.MethodPost, "/api/v1/links", map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 200}, owner(1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TTL", env.Error.Code)

	w, env = doJSON(r, http.MethodPost, "/api/v1/links", map[string]any{"ttl_hours": 2}, owner(1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = doJSON(r, http.MethodPost, "/api/v1/links", map[string]any{"blob_path": "docs/missing.pdf", "ttl_hours": 2}, owner(1))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BLOB_NOT_FOUND", env.Error.Code)

	// within the rune limit of the validator, over bcrypt's byte limit
	w, env = doJSON(r, http.MethodPost, "/api/v1/links", map[string]any{
		"blob_path": "docs/report.pdf",
		"ttl_hours": 2,
		"password":  strings.Repeat("é", 40),
	}, owner(1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHandler_ResolveJSONAndRedirect(t *testing.T) {
	r, _ := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1, "watermark_enabled": true})

	w, env := doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var res ResolveResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "https://cdn.example.com/docs/report.pdf?sig=abc", res.URL)
	assert.Equal(t, int64(1), res.AccessCount)
	assert.True(t, res.Policies.WatermarkEnabled)
	assert.True(t, res.ShowTrackingPage)

	w, _ = doJSON(r, http.MethodGet, "/s/"+out.ShortCode+"?mode=redirect", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://cdn.example.com/docs/report.pdf?sig=abc", w.Header().Get("Location"))

	w, env = doJSON(r, http.MethodGet, "/s/NoSuchCode1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "LINK_NOT_FOUND", env.Error.Code)

	w, env = doJSON(r, http.MethodGet, "/s/bad!", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "LINK_NOT_FOUND", env.Error.Code)
}

func TestHandler_ResolveStream(t *testing.T) {
	r, f := setupRouter(t)
	f.issuer.On("Exists", mock.Anything, "docs/notes.txt").Return(true, nil)
	f.issuer.On("IssueAccess", mock.Anything, "docs/notes.txt", mock.Anything).Return(&storage.Access{
		Body:        io.NopCloser(strings.NewReader("hello")),
		ContentType: "text/plain",
		Size:        5,
	}, nil)

	out := createViaAPI(t, r, map[string]any{
		"blob_path":          "docs/notes.txt",
		"ttl_hours":          1,
		"allow_preview":      false,
		"original_file_name": "notes.txt",
	})

	w, _ := doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=notes.txt", w.Header().Get("Content-Disposition"))
}

func TestHandler_PasswordFlow(t *testing.T) {
	r, _ := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1, "password": "secret"})
	path := "/s/" + out.ShortCode

	w, env := doJSON(r, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "PASSWORD_REQUIRED", env.Error.Code)

	w, env = doJSON(r, http.MethodGet, path, nil, map[string]string{"X-Link-Password": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_PASSWORD", env.Error.Code)

	w, env = doJSON(r, http.MethodPost, path+"/verify", map[string]string{"password": "wrong"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_PASSWORD", env.Error.Code)

	w, env = doJSON(r, http.MethodPost, path+"/verify", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = doJSON(r, http.MethodPost, path+"/verify", map[string]string{"password": "secret"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	require.NotEmpty(t, tok.Token)

	w, _ = doJSON(r, http.MethodGet, path, nil, map[string]string{"X-Link-Token": tok.Token})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(r, http.MethodGet, path+"?token="+tok.Token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(r, http.MethodGet, path, nil, map[string]string{"X-Link-Password": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_EmailGate(t *testing.T) {
	r, _ := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1, "require_email": true})

	w, env := doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EMAIL_REQUIRED", env.Error.Code)

	w, _ = doJSON(r, http.MethodGet, "/s/"+out.ShortCode+"?email=guest@example.com", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, map[string]string{"X-Link-Email": "guest@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_RevokeAndGone(t *testing.T) {
	r, _ := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1})
	revoke := "/api/v1/links/" + out.ShortCode + "/revoke"

	w, env := doJSON(r, http.MethodPost, revoke, nil, owner(2))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = doJSON(r, http.MethodGet, "/api/v1/links/"+out.ShortCode, nil, owner(2))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = doJSON(r, http.MethodPost, revoke, nil, owner(1))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(r, http.MethodPost, revoke, nil, owner(1))
	assert.Equal(t, http.StatusOK, w.Code, "revoke is idempotent")

	w, env = doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "LINK_REVOKED", env.Error.Code)

	w, env = doJSON(r, http.MethodGet, "/api/v1/links/"+out.ShortCode, nil, owner(1))
	require.Equal(t, http.StatusOK, w.Code)
	var got LinkResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, StatusRevoked, got.Status)
}

func TestHandler_RevokeExpired(t *testing.T) {
	r, f := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1})

	f.advance(2 * time.Hour)

	w, env := doJSON(r, http.MethodGet, "/api/v1/links/"+out.ShortCode, nil, owner(1))
	require.Equal(t, http.StatusOK, w.Code)
	var got LinkResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, StatusExpired, got.Status)

	w, env = doJSON(r, http.MethodPost, "/api/v1/links/"+out.ShortCode+"/revoke", nil, owner(1))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LINK_ALREADY_TERMINAL", env.Error.Code)

	w, env = doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "LINK_EXPIRED", env.Error.Code)
}

func TestHandler_LimitReached(t *testing.T) {
	r, _ := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1, "max_access_count": 1})

	w, _ := doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "LINK_LIMIT_REACHED", env.Error.Code)
}

func TestHandler_ListLinks(t *testing.T) {
	r, _ := setupRouter(t)
	first := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1})
	second := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 2})

	w, env := doJSON(r, http.MethodGet, "/api/v1/links?limit=500", nil, owner(1))
	require.Equal(t, http.StatusOK, w.Code)
	var list LinkListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, maxListLimit, list.Limit)
	require.Len(t, list.Links, 2)
	codes := []string{list.Links[0].ShortCode, list.Links[1].ShortCode}
	assert.ElementsMatch(t, []string{first.ShortCode, second.ShortCode}, codes)

	w, env = doJSON(r, http.MethodGet, "/api/v1/links", nil, owner(9))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Links)
}

func TestHandler_LegacyRevoke(t *testing.T) {
	r, f := setupRouter(t)
	out := createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1})
	stored, err := f.store.GetByShortCode(t.Context(), out.ShortCode)
	require.NoError(t, err)

	w, env := doJSON(r, http.MethodPost, "/api/v1/legacy/links/abc/revoke", nil, owner(1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	w, _ = doJSON(r, http.MethodPost, fmt.Sprintf("/api/v1/legacy/links/%d/revoke", stored.ID), nil, owner(1))
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(r, http.MethodGet, "/s/"+out.ShortCode, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "LINK_REVOKED", env.Error.Code)
}

func TestHandler_ExpireOverdue(t *testing.T) {
	r, f := setupRouter(t)
	createViaAPI(t, r, map[string]any{"blob_path": "docs/report.pdf", "ttl_hours": 1})
	f.advance(90 * time.Minute)

	w, env := doJSON(r, http.MethodPost, "/api/v1/admin/links/expire-overdue", nil, owner(1))
	require.Equal(t, http.StatusOK, w.Code)
	var out ExpireOverdueResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, int64(1), out.Expired)
}

func TestProblemFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrInvalidTTL, http.StatusBadRequest, "INVALID_TTL"},
		{fmt.Errorf("%w: x", ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{ErrNotPasswordProtected, http.StatusBadRequest, "VALIDATION_ERROR"},
		{ErrLinkNotFound, http.StatusNotFound, "LINK_NOT_FOUND"},
		{storage.ErrBlobNotFound, http.StatusNotFound, "BLOB_NOT_FOUND"},
		{ErrRevoked, http.StatusGone, "LINK_REVOKED"},
		{ErrExpired, http.StatusGone, "LINK_EXPIRED"},
		{ErrLimitReached, http.StatusGone, "LINK_LIMIT_REACHED"},
		{ErrPasswordRequired, http.StatusUnauthorized, "PASSWORD_REQUIRED"},
		{ErrInvalidPassword, http.StatusForbidden, "INVALID_PASSWORD"},
		{ErrEmailRequired, http.StatusUnprocessableEntity, "EMAIL_REQUIRED"},
		{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{ErrAlreadyTerminal, http.StatusConflict, "LINK_ALREADY_TERMINAL"},
		{fmt.Errorf("%w: sign: reset", storage.ErrStorageUnavailable), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{ErrGenerationExhausted, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		p := ProblemFor(tc.err)
		assert.Equal(t, tc.status, p.Status, tc.err.Error())
		assert.Equal(t, tc.code, p.Code, tc.err.Error())
	}
}
