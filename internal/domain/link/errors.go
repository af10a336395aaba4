package link

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrInvalidTTL           = errors.New("ttl_hours must be between 1 and 168")
	ErrLinkNotFound         = errors.New("link not found")
	ErrDuplicateCode        = errors.New("short code already exists")
	ErrGenerationExhausted  = errors.New("short code generation exhausted")
	ErrForbidden            = errors.New("you do not own this link")
	ErrAlreadyTerminal      = errors.New("link is already in a terminal state")
	ErrStatusConflict       = errors.New("link status changed concurrently")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrIncrementRejected    = errors.New("access increment rejected")
	ErrNotPasswordProtected = errors.New("link is not password protected")
)

// Class sentinels. Every DenyError matches exactly one of them via errors.Is.
var (
	ErrGone       = errors.New("link is no longer available")
	ErrCredential = errors.New("link credentials required")
)

// DenyReason is the outcome of policy evaluation. ReasonNone means allow.
type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonRevoked          DenyReason = "revoked"
	ReasonExpired          DenyReason = "expired"
	ReasonLimitReached     DenyReason = "limit_reached"
	ReasonPasswordRequired DenyReason = "password_required"
	ReasonInvalidPassword  DenyReason = "invalid_password"
	ReasonEmailRequired    DenyReason = "email_required"
)

// Gone reports whether the reason is terminal for the link.
func (r DenyReason) Gone() bool {
	return r == ReasonRevoked || r == ReasonExpired || r == ReasonLimitReached
}

func (r DenyReason) credential() bool {
	return r == ReasonPasswordRequired || r == ReasonInvalidPassword || r == ReasonEmailRequired
}

// DenyError carries the first applicable denial reason.
type DenyError struct {
	Reason DenyReason
}

func (e *DenyError) Error() string {
	switch e.Reason {
	case ReasonRevoked:
		return "link has been revoked"
	case ReasonExpired:
		return "link has expired"
	case ReasonLimitReached:
		return "link access limit reached"
	case ReasonPasswordRequired:
		return "password required"
	case ReasonInvalidPassword:
		return "invalid password"
	case ReasonEmailRequired:
		return "a valid email is required"
	}
	return "access denied"
}

func (e *DenyError) Is(target error) bool {
	if t, ok := target.(*DenyError); ok {
		return t.Reason == e.Reason
	}
	switch target {
	case ErrGone:
		return e.Reason.Gone()
	case ErrCredential:
		return e.Reason.credential()
	}
	return false
}

var (
	ErrRevoked          = &DenyError{Reason: ReasonRevoked}
	ErrExpired          = &DenyError{Reason: ReasonExpired}
	ErrLimitReached     = &DenyError{Reason: ReasonLimitReached}
	ErrPasswordRequired = &DenyError{Reason: ReasonPasswordRequired}
	ErrInvalidPassword  = &DenyError{Reason: ReasonInvalidPassword}
	ErrEmailRequired    = &DenyError{Reason: ReasonEmailRequired}
)

// Deny returns the sentinel for r, or nil for ReasonNone.
func Deny(r DenyReason) error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonRevoked:
		return ErrRevoked
	case ReasonExpired:
		return ErrExpired
	case ReasonLimitReached:
		return ErrLimitReached
	case ReasonPasswordRequired:
		return ErrPasswordRequired
	case ReasonInvalidPassword:
		return ErrInvalidPassword
	case ReasonEmailRequired:
		return ErrEmailRequired
	}
	return &DenyError{Reason: r}
}
