package negotiation

import (
	"math"
	"time"
)

// ForceReleasePolicy decides who may break a lease.
type ForceReleasePolicy string

const (
	// ForceReleaseAny lets either party clear any lease.
	ForceReleaseAny ForceReleasePolicy = "any"
	// ForceReleaseOwner limits release to the lease owner or an administrator.
	ForceReleaseOwner ForceReleasePolicy = "owner"
)

// LockManager issues, renews, releases and expires the single edit lease of a negotiation.
// It mutates the negotiation in place; persistence is the caller's job.
type LockManager struct {
	TTLSeconds int
	Policy     ForceReleasePolicy
}

// NewLockManager returns a lock manager with defaults applied.
func NewLockManager(ttlSeconds int, policy ForceReleasePolicy) LockManager {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultLockTTLSeconds
	}
	if policy == "" {
		policy = ForceReleaseAny
	}
	return LockManager{TTLSeconds: ttlSeconds, Policy: policy}
}

// RemainingSeconds is max(0, ttl - (now - acquired)), rounded up so a live lease is never 0.
func RemainingSeconds(n *Negotiation, now time.Time) int {
	if n.LockOwner == nil || n.LockAcquiredAt == nil {
		return 0
	}
	ttl := time.Duration(ttlOf(n)) * time.Second
	left := n.LockAcquiredAt.Add(ttl).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// IsLive reports whether a lease is held at now.
func IsLive(n *Negotiation, now time.Time) bool {
	return RemainingSeconds(n, now) > 0
}

// LiveOwner returns the lease owner when the lease is live.
func LiveOwner(n *Negotiation, now time.Time) (string, bool) {
	if !IsLive(n, now) {
		return "", false
	}
	return *n.LockOwner, true
}

// ClearExpired drops lease fields that no longer describe a live lease.
// It reports whether anything changed.
func ClearExpired(n *Negotiation, now time.Time) bool {
	if n.LockOwner == nil && n.LockAcquiredAt == nil {
		return false
	}
	if IsLive(n, now) {
		return false
	}
	clearLock(n)
	return true
}

// Acquire grants the lease to actor when it is free, expired, or already theirs.
func (m LockManager) Acquire(n *Negotiation, actor string, now time.Time) error {
	if n.Status.IsTerminal() {
		return ErrNegotiationClosed
	}
	if owner, ok := LiveOwner(n, now); ok && owner != actor {
		return LockHeldError(owner, RemainingSeconds(n, now))
	}
	m.grant(n, actor, now)
	return nil
}

// Extend restarts a live lease owned by actor. Expired leases must be re-acquired.
func (m LockManager) Extend(n *Negotiation, actor string, now time.Time) error {
	if n.Status.IsTerminal() {
		return ErrNegotiationClosed
	}
	owner, ok := LiveOwner(n, now)
	if !ok || owner != actor {
		return ErrNotLockOwner
	}
	m.grant(n, actor, now)
	n.UpdatedAt = now
	return nil
}

// ForceRelease clears the lease. Idempotent on an unlocked negotiation.
func (m LockManager) ForceRelease(n *Negotiation, actor string, isAdmin bool, now time.Time) error {
	if m.Policy == ForceReleaseOwner && !isAdmin {
		if owner, ok := LiveOwner(n, now); ok && owner != actor {
			return ErrNotLockOwner
		}
	}
	clearLock(n)
	return nil
}

// CheckWrite allows a mutation unless a live lease belongs to someone else.
func (m LockManager) CheckWrite(n *Negotiation, actor string, now time.Time) error {
	if owner, ok := LiveOwner(n, now); ok && owner != actor {
		return LockHeldError(owner, RemainingSeconds(n, now))
	}
	return nil
}

// ReleaseOwn clears the lease if actor holds it.
func (m LockManager) ReleaseOwn(n *Negotiation, actor string) {
	if n.LockOwner != nil && *n.LockOwner == actor {
		clearLock(n)
	}
}

func (m LockManager) grant(n *Negotiation, actor string, now time.Time) {
	owner := actor
	at := now
	n.LockOwner = &owner
	n.LockAcquiredAt = &at
	n.LockTTLSeconds = m.TTLSeconds
}

func clearLock(n *Negotiation) {
	n.LockOwner = nil
	n.LockAcquiredAt = nil
}

func ttlOf(n *Negotiation) int {
	if n.LockTTLSeconds > 0 {
		return n.LockTTLSeconds
	}
	return DefaultLockTTLSeconds
}

// LockView is the read-time lock state exposed to callers.
type LockView struct {
	IsLocked   bool
	Owner      *string
	AcquiredAt *time.Time
	ExpiresIn  int
	TTLSeconds int
}

// ViewLock derives the caller-facing lock state at now.
func ViewLock(n *Negotiation, now time.Time) LockView {
	v := LockView{TTLSeconds: ttlOf(n)}
	remaining := RemainingSeconds(n, now)
	if remaining == 0 {
		return v
	}
	owner := *n.LockOwner
	at := *n.LockAcquiredAt
	v.IsLocked = true
	v.Owner = &owner
	v.AcquiredAt = &at
	v.ExpiresIn = remaining
	return v
}

// View is the serialized negotiation with read-time lock state.
// Lease fields of an expired lease are dropped.
type View struct {
	Negotiation
	IsLocked      bool `json:"is_locked"`
	LockExpiresIn int  `json:"lock_expires_in,omitempty"`
}

// NewView builds the caller-facing representation of n at now.
func NewView(n *Negotiation, now time.Time) View {
	c := n.Clone()
	ClearExpired(c, now)
	lv := ViewLock(c, now)
	return View{Negotiation: *c, IsLocked: lv.IsLocked, LockExpiresIn: lv.ExpiresIn}
}
