package link

import (
	"time"

	"linkvault/internal/pkg/validator"
)

// Attempt is what a visitor presents when resolving a link.
type Attempt struct {
	Password string
	Email    string
	Token    string
}

// Flags are the policy flags handed to the caller on Allow.
type Flags struct {
	Policies
	// ShowTrackingPage only drives presentation; it never gates access.
	ShowTrackingPage bool `json:"show_tracking_page"`
}

// Decision is Allow when Reason is ReasonNone.
type Decision struct {
	Reason DenyReason
	Flags  Flags
}

func (d Decision) Allowed() bool { return d.Reason == ReasonNone }

// Err returns the sentinel for a denial, or nil on Allow.
func (d Decision) Err() error { return Deny(d.Reason) }

// PolicyEvaluator checks an attempt against a link. Lifecycle checks run
// before any credential comparison so a dead link never reveals password state.
type PolicyEvaluator struct {
	creds Credentials
	now   func() time.Time
}

func NewPolicyEvaluator(creds Credentials, now func() time.Time) *PolicyEvaluator {
	if now == nil {
		now = time.Now
	}
	return &PolicyEvaluator{creds: creds, now: now}
}

// CheckLifecycle returns the first of Revoked, Expired, LimitReached that applies.
func (e *PolicyEvaluator) CheckLifecycle(l *Link) DenyReason {
	switch {
	case l.Status == StatusRevoked:
		return ReasonRevoked
	case l.Status == StatusExpired || l.ExpiredAt(e.now()):
		return ReasonExpired
	case l.Exhausted():
		return ReasonLimitReached
	}
	return ReasonNone
}

func (e *PolicyEvaluator) Evaluate(l *Link, a Attempt) Decision {
	if r := e.CheckLifecycle(l); r != ReasonNone {
		return Decision{Reason: r}
	}

	if l.HasPassword() && !e.tokenValidFor(l, a.Token) {
		if a.Password == "" {
			return Decision{Reason: ReasonPasswordRequired}
		}
		if !e.creds.Verify(a.Password, l.PasswordHash) {
			return Decision{Reason: ReasonInvalidPassword}
		}
	}

	if l.Policies.RequireEmail && !validator.IsEmail(a.Email) {
		return Decision{Reason: ReasonEmailRequired}
	}

	return Decision{Flags: flagsFor(l)}
}

func (e *PolicyEvaluator) tokenValidFor(l *Link, token string) bool {
	if token == "" {
		return false
	}
	claims, err := e.creds.VerifyToken(token)
	return err == nil && claims.ShortCode == l.ShortCode
}

func flagsFor(l *Link) Flags {
	p := l.Policies
	return Flags{
		Policies:         p,
		ShowTrackingPage: p.UseTrackingPage || p.RequireEmail || p.WatermarkEnabled || l.HasPassword() || !p.AllowPreview,
	}
}
