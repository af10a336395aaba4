package link

import (
	"context"
	"time"

	"linkvault/internal/pkg/credential"
	"linkvault/internal/storage"
)

// Store is the persistence contract for links. All cross-request
// coordination goes through its conditional updates.
type Store interface {
	Create(ctx context.Context, l *Link) error
	GetByShortCode(ctx context.Context, code string) (*Link, error)
	GetByID(ctx context.Context, id int64) (*Link, error)
	ExistsShortCode(ctx context.Context, code string) (bool, error)
	AtomicIncrementAccess(ctx context.Context, code string, now time.Time) (int64, error)
	SetStatus(ctx context.Context, code string, to, from Status, now time.Time) error
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*Link, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]*Link, error)
}

type Credentials interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	IssueToken(shortCode string, ttl time.Duration) (string, time.Time, error)
	VerifyToken(token string) (*credential.AccessClaims, error)
}

// AccessIssuer is the signed-URL delegate backed by object storage.
type AccessIssuer interface {
	Exists(ctx context.Context, path string) (bool, error)
	IssueAccess(ctx context.Context, path string, ttl time.Duration) (*storage.Access, error)
}

// EventSink receives lifecycle events. Record must not block.
type EventSink interface {
	Record(e Event)
}

type EventType string

const (
	EventAccess EventType = "access"
	EventRevoke EventType = "revoke"
	EventExpire EventType = "expire"
)

// ExpireEvent is the event for l having been moved to Expired at now.
func ExpireEvent(l *Link, now time.Time) Event {
	return Event{
		Type:        EventExpire,
		LinkID:      l.ID,
		ShortCode:   l.ShortCode,
		OwnerID:     l.OwnerID,
		AccessCount: l.AccessCount,
		OccurredAt:  now,
	}
}

// Event describes one access or state change of a link.
type Event struct {
	Type         EventType
	LinkID       int64
	ShortCode    string
	OwnerID      int64
	AccessCount  int64
	VisitorIP    string
	VisitorEmail string
	UserAgent    string
	Referer      string
	OccurredAt   time.Time
}
