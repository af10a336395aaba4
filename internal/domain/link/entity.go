package link

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Policies are presentation and gating flags composed independently of status.
type Policies struct {
	RequireEmail     bool `gorm:"column:require_email" json:"require_email"`
	WatermarkEnabled bool `gorm:"column:watermark_enabled" json:"watermark_enabled"`
	AllowPreview     bool `gorm:"column:allow_preview" json:"allow_preview"`
	UseTrackingPage  bool `gorm:"column:use_tracking_page" json:"use_tracking_page"`
}

// Metadata describes the shared file. It is fixed at creation.
type Metadata struct {
	OriginalFileName string `gorm:"column:original_file_name" json:"original_file_name"`
	FileSize         int64  `gorm:"column:file_size" json:"file_size"`
	MimeType         string `gorm:"column:mime_type" json:"mime_type"`
}

// Link is a time-bounded, access-counted share of one stored blob.
// ID is the internal key; ShortCode is the only public identifier.
type Link struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ShortCode      string     `gorm:"column:short_code;size:32;not null;uniqueIndex" json:"short_code"`
	OwnerID        int64      `gorm:"column:owner_id;not null;index:idx_links_owner_created,priority:1" json:"owner_id"`
	BlobPath       string     `gorm:"column:blob_path;not null" json:"-"`
	Status         Status     `gorm:"column:status;size:16;not null;index:idx_links_status_expires,priority:1" json:"status"`
	AccessCount    int64      `gorm:"column:access_count;not null" json:"access_count"`
	MaxAccessCount *int64     `gorm:"column:max_access_count" json:"max_access_count,omitempty"`
	PasswordHash   string     `gorm:"column:password_hash;not null" json:"-"`
	Policies       Policies   `gorm:"embedded" json:"policies"`
	Metadata       Metadata   `gorm:"embedded" json:"metadata"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;index:idx_links_owner_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
	ExpiresAt      time.Time  `gorm:"column:expires_at;not null;index:idx_links_status_expires,priority:2" json:"expires_at"`
	RevokedAt      *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
}

func (Link) TableName() string { return "links" }

func (l *Link) HasPassword() bool { return l.PasswordHash != "" }

// Exhausted reports whether the access ceiling has been reached.
func (l *Link) Exhausted() bool {
	return l.MaxAccessCount != nil && l.AccessCount >= *l.MaxAccessCount
}

// ExpiredAt reports whether the link is past expiry at now.
func (l *Link) ExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
