// Package accesslog records link lifecycle events and streams them to owners.
package accesslog

import (
	"time"

	"github.com/google/uuid"

	"linkvault/internal/domain/link"
)

// AccessLog is one persisted link event.
type AccessLog struct {
	ID           string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LinkID       int64     `gorm:"column:link_id;not null" json:"-"`
	ShortCode    string    `gorm:"column:short_code;size:32;not null;index:idx_access_logs_short_code,priority:1" json:"short_code"`
	OwnerID      int64     `gorm:"column:owner_id;not null;index:idx_access_logs_owner,priority:1" json:"owner_id"`
	Event        string    `gorm:"column:event;size:16;not null" json:"event"`
	AccessCount  int64     `gorm:"column:access_count;not null" json:"access_count"`
	VisitorIP    string    `gorm:"column:visitor_ip;size:64;not null" json:"visitor_ip,omitempty"`
	VisitorEmail string    `gorm:"column:visitor_email;size:320;not null" json:"visitor_email,omitempty"`
	UserAgent    string    `gorm:"column:user_agent;not null" json:"user_agent,omitempty"`
	Referer      string    `gorm:"column:referer;not null" json:"referer,omitempty"`
	OccurredAt   time.Time `gorm:"column:occurred_at;not null;index:idx_access_logs_short_code,priority:2;index:idx_access_logs_owner,priority:2" json:"occurred_at"`
}

func (AccessLog) TableName() string { return "access_logs" }

func fromEvent(e link.Event) *AccessLog {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return &AccessLog{
		ID:           uuid.NewString(),
		LinkID:       e.LinkID,
		ShortCode:    e.ShortCode,
		OwnerID:      e.OwnerID,
		Event:        string(e.Type),
		AccessCount:  e.AccessCount,
		VisitorIP:    e.VisitorIP,
		VisitorEmail: e.VisitorEmail,
		UserAgent:    e.UserAgent,
		Referer:      e.Referer,
		OccurredAt:   occurred.UTC(),
	}
}
