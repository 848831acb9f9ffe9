package negotiation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MutateFunc computes the next state of a row locked for writing.
// Returning a nil negotiation leaves the row untouched; a nil entry appends no history.
type MutateFunc func(current *Negotiation) (*Negotiation, *OfferHistoryEntry, error)

// Repository defines persistence for negotiations and their offer history.
type Repository interface {
	// Create stores a new negotiation with its seed entry. When exclusive is set it fails with
	// ErrConflict if the buyer already has a non-terminal negotiation on the product.
	Create(ctx context.Context, n *Negotiation, seed *OfferHistoryEntry, exclusive bool) error
	GetByID(ctx context.Context, negotiationID uuid.UUID) (*Negotiation, error)
	FindActiveForProduct(ctx context.Context, productID, partyID string) (*Negotiation, error)
	List(ctx context.Context, filter Filter) ([]*Negotiation, error)
	ListHistory(ctx context.Context, negotiationID uuid.UUID) ([]*OfferHistoryEntry, error)

	// Mutate serializes all writers of one negotiation. fn runs while the row is held; its
	// result and history entry are persisted atomically. Returns ErrNotFound for unknown ids.
	Mutate(ctx context.Context, negotiationID uuid.UUID, fn MutateFunc) (*Negotiation, error)

	// ClearExpiredLocks drops lease fields of up to limit negotiations whose lease ended before now.
	ClearExpiredLocks(ctx context.Context, now time.Time, limit int) (int, error)
}
