package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"linkvault/internal/logger"
	"linkvault/internal/storage"
)

const (
	MinTTLHours = 1
	MaxTTLHours = 168

	// MaxPasswordBytes is bcrypt's input limit. It is counted in bytes, not runes.
	MaxPasswordBytes = 72
)

type Config struct {
	CodeLength        int
	TokenTTL          time.Duration
	SignedURLTTL      time.Duration
	LazyExpireTimeout time.Duration
	PublicBaseURL     string
}

// CreateInput is everything an owner supplies when sharing a blob.
type CreateInput struct {
	OwnerID        int64
	BlobPath       string
	TTLHours       int
	MaxAccessCount *int64
	Password       string
	Policies       Policies
	Metadata       Metadata
}

// Visitor is request context recorded with access events.
type Visitor struct {
	IP        string
	UserAgent string
	Referer   string
}

// Resolution is the result of an allowed resolve.
type Resolution struct {
	Link        *Link
	Access      *storage.Access
	AccessCount int64
	Flags       Flags
}

// Service orchestrates the link lifecycle: create, resolve, verify, revoke.
type Service struct {
	store  Store
	codes  *ShortCodeGenerator
	eval   *PolicyEvaluator
	creds  Credentials
	issuer AccessIssuer
	events EventSink
	cfg    Config
	now    func() time.Time
	log    *logrus.Entry
}

func NewService(store Store, creds Credentials, issuer AccessIssuer, events EventSink, cfg Config) *Service {
	if cfg.CodeLength == 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 5 * time.Minute
	}
	if cfg.LazyExpireTimeout <= 0 {
		cfg.LazyExpireTimeout = 2 * time.Second
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	s := &Service{
		store:  store,
		creds:  creds,
		issuer: issuer,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.Component("link"),
	}
	s.codes = NewShortCodeGenerator(cfg.CodeLength, store.ExistsShortCode)
	s.eval = NewPolicyEvaluator(creds, s.clock)
	return s
}

// WithClock replaces the wall clock for the service and its evaluator.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// PublicURL is the visitor-facing URL of a short code.
func (s *Service) PublicURL(code string) string {
	return s.cfg.PublicBaseURL + "/s/" + code
}

func (s *Service) CreateLink(ctx context.Context, in CreateInput) (*Link, error) {
	if in.OwnerID <= 0 {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	in.BlobPath = strings.TrimSpace(in.BlobPath)
	if in.BlobPath == "" {
		return nil, fmt.Errorf("%w: blob_path is required", ErrValidation)
	}
	if in.TTLHours < MinTTLHours || in.TTLHours > MaxTTLHours {
		return nil, ErrInvalidTTL
	}
	if in.MaxAccessCount != nil && *in.MaxAccessCount < 1 {
		return nil, fmt.Errorf("%w: max_access_count must be at least 1", ErrValidation)
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, MaxPasswordBytes)
	}

	ok, err := s.issuer.Exists(ctx, in.BlobPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrBlobNotFound
	}

	var hash string
	if in.Password != "" {
		if hash, err = s.creds.Hash(in.Password); err != nil {
			return nil, err
		}
	}

	now := s.clock()
	l := &Link{
		OwnerID:        in.OwnerID,
		BlobPath:       in.BlobPath,
		Status:         StatusActive,
		MaxAccessCount: in.MaxAccessCount,
		PasswordHash:   hash,
		Policies:       in.Policies,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(in.TTLHours) * time.Hour),
	}

	// pre-check collisions and insert races draw from one budget
	for attempt := 0; attempt < GenerateAttempts; attempt++ {
		code, free, err := s.codes.draw(ctx)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}
		l.ShortCode = code
		err = s.store.Create(ctx, l)
		if errors.Is(err, ErrDuplicateCode) {
			// lost a race after the pre-check
			l.ID = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create link: %w", err)
		}

		linksCreatedTotal.Inc()
		s.log.WithFields(logrus.Fields{
			"short_code": l.ShortCode,
			"owner_id":   l.OwnerID,
			"expires_at": l.ExpiresAt,
		}).Info("link created")
		return l, nil
	}
	return nil, ErrGenerationExhausted
}

// ResolveLink evaluates policy and, on Allow, counts the access and
// issues delivery. A denial is returned as a *DenyError.
func (s *Service) ResolveLink(ctx context.Context, code string, a Attempt, v Visitor) (*Resolution, error) {
	l, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			observeResolve("not_found")
		} else {
			observeResolve("error")
		}
		return nil, err
	}

	d := s.eval.Evaluate(l, a)
	if !d.Allowed() {
		s.observeExpiry(ctx, l, d.Reason)
		observeResolve(string(d.Reason))
		return nil, d.Err()
	}

	now := s.clock()
	count, err := s.store.AtomicIncrementAccess(ctx, code, now)
	if errors.Is(err, ErrIncrementRejected) {
		reason := s.rejectionReason(ctx, code)
		observeResolve(string(reason))
		return nil, Deny(reason)
	}
	if err != nil {
		observeResolve("error")
		return nil, fmt.Errorf("increment access: %w", err)
	}
	l.AccessCount = count

	ttl := s.cfg.SignedURLTTL
	if left := l.ExpiresAt.Sub(now); left < ttl {
		ttl = left
	}
	access, err := s.issuer.IssueAccess(ctx, l.BlobPath, ttl)
	if err != nil {
		observeResolve("storage_error")
		return nil, err
	}

	s.emit(Event{
		Type:         EventAccess,
		LinkID:       l.ID,
		ShortCode:    l.ShortCode,
		OwnerID:      l.OwnerID,
		AccessCount:  count,
		VisitorIP:    v.IP,
		VisitorEmail: strings.TrimSpace(a.Email),
		UserAgent:    v.UserAgent,
		Referer:      v.Referer,
		OccurredAt:   now,
	})
	observeResolve("allowed")

	return &Resolution{Link: l, Access: access, AccessCount: count, Flags: d.Flags}, nil
}

// rejectionReason names the denial after the conditional increment matched no row.
func (s *Service) rejectionReason(ctx context.Context, code string) DenyReason {
	fresh, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		return ReasonLimitReached
	}
	reason := s.eval.CheckLifecycle(fresh)
	if reason == ReasonNone {
		return ReasonLimitReached
	}
	s.observeExpiry(ctx, fresh, reason)
	return reason
}

// VerifyPassword exchanges a correct password for a short-lived access token.
// It never counts an access.
func (s *Service) VerifyPassword(ctx context.Context, code, password string) (string, time.Time, error) {
	l, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		return "", time.Time{}, err
	}

	if r := s.eval.CheckLifecycle(l); r != ReasonNone {
		s.observeExpiry(ctx, l, r)
		return "", time.Time{}, Deny(r)
	}
	if !l.HasPassword() {
		return "", time.Time{}, ErrNotPasswordProtected
	}
	if password == "" {
		return "", time.Time{}, ErrPasswordRequired
	}
	if !s.creds.Verify(password, l.PasswordHash) {
		return "", time.Time{}, ErrInvalidPassword
	}

	ttl := s.cfg.TokenTTL
	if left := l.ExpiresAt.Sub(s.clock()); left < ttl {
		ttl = left
	}
	return s.creds.IssueToken(l.ShortCode, ttl)
}

// RevokeLink moves an active link to Revoked. Revoking a revoked link is a
// no-op; revoking an expired one returns ErrAlreadyTerminal.
func (s *Service) RevokeLink(ctx context.Context, code string, requester int64) error {
	l, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			observeRevoke("not_found")
		}
		return err
	}
	if l.OwnerID != requester {
		observeRevoke("forbidden")
		return ErrForbidden
	}

	switch {
	case l.Status == StatusRevoked:
		observeRevoke("already_revoked")
		return nil
	case l.Status == StatusExpired:
		observeRevoke("already_terminal")
		return ErrAlreadyTerminal
	case l.ExpiredAt(s.clock()):
		s.observeExpiry(ctx, l, ReasonExpired)
		observeRevoke("already_terminal")
		return ErrAlreadyTerminal
	}

	now := s.clock()
	err = s.store.SetStatus(ctx, code, StatusRevoked, StatusActive, now)
	if errors.Is(err, ErrStatusConflict) {
		fresh, gerr := s.store.GetByShortCode(ctx, code)
		if gerr == nil && fresh.Status == StatusRevoked {
			observeRevoke("already_revoked")
			return nil
		}
		observeRevoke("already_terminal")
		return ErrAlreadyTerminal
	}
	if err != nil {
		observeRevoke("error")
		return fmt.Errorf("revoke link: %w", err)
	}

	s.emit(Event{
		Type:        EventRevoke,
		LinkID:      l.ID,
		ShortCode:   l.ShortCode,
		OwnerID:     l.OwnerID,
		AccessCount: l.AccessCount,
		OccurredAt:  now,
	})
	observeRevoke("revoked")
	s.log.WithFields(logrus.Fields{"short_code": code, "owner_id": requester}).Info("link revoked")
	return nil
}

// GetLink returns a link to its owner only.
func (s *Service) GetLink(ctx context.Context, code string, requester int64) (*Link, error) {
	l, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != requester {
		return nil, ErrForbidden
	}
	return l, nil
}

func (s *Service) ListLinks(ctx context.Context, ownerID int64, limit, offset int) ([]*Link, error) {
	return s.store.ListByOwner(ctx, ownerID, limit, offset)
}

// ExpireOverdue persists Expired for all overdue active links.
// Each transitioned link emits EventExpire, the same as lazy expiry.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.clock()
	expired, err := s.store.ExpireOverdue(ctx, now)
	for _, l := range expired {
		s.emit(ExpireEvent(l, now))
	}
	if err != nil {
		return int64(len(expired)), fmt.Errorf("expire overdue links: %w", err)
	}
	if len(expired) > 0 {
		s.log.WithField("count", len(expired)).Info("overdue links expired")
	}
	return int64(len(expired)), nil
}

// observeExpiry persists an expiry that was only observed on the wall
// clock. It is best-effort: errors are logged, and the caller's outcome
// does not depend on them.
func (s *Service) observeExpiry(ctx context.Context, l *Link, reason DenyReason) {
	if reason != ReasonExpired || l.Status != StatusActive {
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LazyExpireTimeout)
	defer cancel()

	now := s.clock()
	err := s.store.SetStatus(wctx, l.ShortCode, StatusExpired, StatusActive, now)
	switch {
	case err == nil:
		l.Status = StatusExpired
		s.emit(ExpireEvent(l, now))
	case errors.Is(err, ErrStatusConflict):
		// someone else already moved it to a terminal state
	default:
		s.log.WithError(err).WithField("short_code", l.ShortCode).Warn("persist expiry failed")
	}
}

func (s *Service) emit(e Event) {
	if s.events == nil {
		return
	}
	s.events.Record(e)
}
