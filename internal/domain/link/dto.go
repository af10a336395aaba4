package link

import "time"

// CreateLinkRequest is the body of POST /links.
// ttl_hours is range-checked by the service so it maps to INVALID_TTL.
type CreateLinkRequest struct {
	BlobPath         string `json:"blob_path" validate:"required,max=1024"`
	TTLHours         int    `json:"ttl_hours"`
	MaxAccessCount   *int64 `json:"max_access_count" validate:"omitempty,min=1"`
	Password         string `json:"password" validate:"omitempty,max=72"`
	RequireEmail     bool   `json:"require_email"`
	WatermarkEnabled bool   `json:"watermark_enabled"`
	AllowPreview     *bool  `json:"allow_preview"` // default true
	UseTrackingPage  bool   `json:"use_tracking_page"`

	OriginalFileName string `json:"original_file_name" validate:"max=255"`
	FileSize         int64  `json:"file_size" validate:"min=0"`
	MimeType         string `json:"mime_type" validate:"max=255"`
}

func (r *CreateLinkRequest) toInput(ownerID int64) CreateInput {
	allowPreview := true
	if r.AllowPreview != nil {
		allowPreview = *r.AllowPreview
	}
	return CreateInput{
		OwnerID:        ownerID,
		BlobPath:       r.BlobPath,
		TTLHours:       r.TTLHours,
		MaxAccessCount: r.MaxAccessCount,
		Password:       r.Password,
		Policies: Policies{
			RequireEmail:     r.RequireEmail,
			WatermarkEnabled: r.WatermarkEnabled,
			AllowPreview:     allowPreview,
			UseTrackingPage:  r.UseTrackingPage,
		},
		Metadata: Metadata{
			OriginalFileName: r.OriginalFileName,
			FileSize:         r.FileSize,
			MimeType:         r.MimeType,
		},
	}
}

type VerifyPasswordRequest struct {
	Password string `json:"password" validate:"required,max=72"`
}

// LinkResponse is the owner view of a link.
type LinkResponse struct {
	ShortCode      string     `json:"short_code"`
	URL            string     `json:"url"`
	Status         Status     `json:"status"`
	AccessCount    int64      `json:"access_count"`
	MaxAccessCount *int64     `json:"max_access_count,omitempty"`
	HasPassword    bool       `json:"has_password"`
	Policies       Policies   `json:"policies"`
	Metadata       Metadata   `json:"metadata"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

type LinkListResponse struct {
	Links  []LinkResponse `json:"links"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ResolveResponse is the visitor view of an allowed resolve.
type ResolveResponse struct {
	URL              string    `json:"url"`
	ExpiresAt        time.Time `json:"expires_at"`
	AccessCount      int64     `json:"access_count"`
	Policies         Policies  `json:"policies"`
	ShowTrackingPage bool      `json:"show_tracking_page"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ExpireOverdueResponse struct {
	Expired int64 `json:"expired"`
}

// toResponse reports an overdue active link as expired even before the
// status write lands.
func (s *Service) toResponse(l *Link) LinkResponse {
	status := l.Status
	if status == StatusActive && l.ExpiredAt(s.clock()) {
		status = StatusExpired
	}
	return LinkResponse{
		ShortCode:      l.ShortCode,
		URL:            s.PublicURL(l.ShortCode),
		Status:         status,
		AccessCount:    l.AccessCount,
		MaxAccessCount: l.MaxAccessCount,
		HasPassword:    l.HasPassword(),
		Policies:       l.Policies,
		Metadata:       l.Metadata,
		CreatedAt:      l.CreatedAt,
		ExpiresAt:      l.ExpiresAt,
		RevokedAt:      l.RevokedAt,
	}
}
