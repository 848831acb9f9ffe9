package negotiation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/metrics"
)

// DuplicatePolicy decides whether a buyer may hold several open negotiations on one product.
type DuplicatePolicy string

const (
	DuplicateReject DuplicatePolicy = "reject"
	DuplicateAllow  DuplicatePolicy = "allow"
)

// Catalog resolves the seller of a listing.
type Catalog interface {
	SellerOf(ctx context.Context, productID string) (string, error)
}

// Publisher fans negotiation changes out to connected parties.
type Publisher interface {
	PublishNegotiation(event string, n *negotiation.Negotiation)
}

// Actor is the caller identity supplied by the identity provider.
type Actor struct {
	PartyID string
	IsAdmin bool
	// IsService marks trusted backend callers such as the order service.
	IsService bool
}

// Options configures the service.
type Options struct {
	LockTTLSeconds     int
	ForceReleasePolicy negotiation.ForceReleasePolicy
	DuplicatePolicy    DuplicatePolicy
	Catalog            Catalog
	Publisher          Publisher
	Clock              func() time.Time
}

// Service is the negotiation store: it composes the state machine, the lock manager and the
// offer history behind one serialized write path per negotiation.
type Service struct {
	repo      negotiation.Repository
	sm        negotiation.StateMachine
	locks     negotiation.LockManager
	dupPolicy DuplicatePolicy
	catalog   Catalog
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates a negotiation service.
func NewService(repo negotiation.Repository, opts Options, logger zerolog.Logger) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	dup := opts.DuplicatePolicy
	if dup == "" {
		dup = DuplicateReject
	}
	return &Service{
		repo:      repo,
		locks:     negotiation.NewLockManager(opts.LockTTLSeconds, opts.ForceReleasePolicy),
		dupPolicy: dup,
		catalog:   opts.Catalog,
		publisher: opts.Publisher,
		now:       clock,
		logger:    logger.With().Str("service", "negotiation").Logger(),
	}
}

// Now returns the service clock, used by callers to derive lock views consistently.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateInput opens a negotiation on behalf of the buyer.
type CreateInput struct {
	ProductID string
	SellerID  string
	Price     decimal.Decimal
	Quantity  int
	Message   *string
	Actor     Actor
}

// Create opens a PENDING negotiation with the caller as buyer.
func (s *Service) Create(ctx context.Context, in CreateInput) (*negotiation.Negotiation, error) {
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return nil, s.fail("create", negotiation.ValidationError("product_id is required"))
	}
	sellerID := strings.TrimSpace(in.SellerID)
	if s.catalog != nil {
		// the catalog is authoritative for who sells a product
		resolved, err := s.catalog.SellerOf(ctx, productID)
		if err != nil {
			return nil, s.fail("create", err)
		}
		if sellerID != "" && sellerID != resolved {
			return nil, s.fail("create", negotiation.ValidationError("seller_id does not match the product's seller"))
		}
		sellerID = resolved
	}
	if sellerID == "" {
		return nil, s.fail("create", negotiation.ValidationError("seller_id is required"))
	}

	now := s.now()
	n, seed, err := s.sm.Open(negotiation.CreateInput{
		ProductID:      productID,
		BuyerID:        in.Actor.PartyID,
		SellerID:       sellerID,
		Price:          in.Price,
		Quantity:       in.Quantity,
		Message:        in.Message,
		LockTTLSeconds: s.locks.TTLSeconds,
	}, now)
	if err != nil {
		return nil, s.fail("create", err)
	}

	if err := s.repo.Create(ctx, n, seed, s.dupPolicy == DuplicateReject); err != nil {
		return nil, s.fail("create", err)
	}

	metrics.ObserveTransition(string(negotiation.ActionCreate))
	s.logger.Info().
		Str("negotiation_id", n.NegotiationID.String()).
		Str("product_id", n.ProductID).
		Str("buyer_id", n.BuyerID).
		Str("seller_id", n.SellerID).
		Msg("negotiation created")
	s.publish(n, "negotiation.created")
	return n, nil
}

// Get returns a negotiation visible to the actor.
func (s *Service) Get(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	n, err := s.load(ctx, negotiationID, actor)
	if err != nil {
		return nil, s.fail("get", err)
	}
	return n, nil
}

// GetActiveForProduct returns the open negotiation on a product where the actor is a party, or nil.
func (s *Service) GetActiveForProduct(ctx context.Context, productID string, actor Actor) (*negotiation.Negotiation, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, s.fail("get_active", negotiation.ValidationError("product_id is required"))
	}
	n, err := s.repo.FindActiveForProduct(ctx, productID, actor.PartyID)
	if err != nil {
		return nil, s.fail("get_active", err)
	}
	if n != nil {
		negotiation.ClearExpired(n, s.now())
	}
	return n, nil
}

// ListInput scopes listing to the caller.
type ListInput struct {
	Status *negotiation.Status
	Limit  int
	Offset int
	Actor  Actor
}

// List returns the actor's negotiations, most recently updated first. A zero Limit returns
// every visible negotiation.
func (s *Service) List(ctx context.Context, in ListInput) ([]*negotiation.Negotiation, error) {
	if in.Status != nil && !in.Status.IsValid() {
		return nil, s.fail("list", negotiation.ValidationError("unknown status %q", *in.Status))
	}
	items, err := s.repo.List(ctx, negotiation.Filter{
		PartyID: in.Actor.PartyID,
		Status:  in.Status,
		Limit:   pageLimit(in.Limit),
		Offset:  maxInt(in.Offset, 0),
	})
	if err != nil {
		return nil, s.fail("list", err)
	}
	now := s.now()
	for _, n := range items {
		negotiation.ClearExpired(n, now)
	}
	return items, nil
}

// ListHistory returns the offer ledger oldest first.
func (s *Service) ListHistory(ctx context.Context, negotiationID uuid.UUID, actor Actor) ([]*negotiation.OfferHistoryEntry, error) {
	if _, err := s.load(ctx, negotiationID, actor); err != nil {
		return nil, s.fail("history", err)
	}
	entries, err := s.repo.ListHistory(ctx, negotiationID)
	if err != nil {
		return nil, s.fail("history", err)
	}
	return entries, nil
}

// UpdateInput is the combined accept/reject/counter request.
type UpdateInput struct {
	NegotiationID uuid.UUID
	Patch         negotiation.Patch
	Actor         Actor
}

// Update checks the lease, runs the state machine and appends history in one serialized write.
// On success the actor's own lease is released since the turn has passed.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*negotiation.Negotiation, error) {
	var event negotiation.Action
	n, err := s.repo.Mutate(ctx, in.NegotiationID, func(current *negotiation.Negotiation) (*negotiation.Negotiation, *negotiation.OfferHistoryEntry, error) {
		if !current.IsParty(in.Actor.PartyID) {
			return nil, nil, negotiation.ErrNotParticipant
		}
		now := s.now()
		if current.Status.IsTerminal() {
			return nil, nil, negotiation.ErrNegotiationClosed
		}
		if err := s.locks.CheckWrite(current, in.Actor.PartyID, now); err != nil {
			return nil, nil, err
		}
		next, entry, err := s.sm.Apply(current, in.Actor.PartyID, in.Patch, now)
		if err != nil {
			return nil, nil, err
		}
		s.locks.ReleaseOwn(next, in.Actor.PartyID)
		negotiation.ClearExpired(next, now)
		event = entry.Action
		return next, entry, nil
	})
	if err != nil {
		return nil, s.fail("update", err)
	}

	metrics.ObserveTransition(string(event))
	s.logger.Info().
		Str("negotiation_id", n.NegotiationID.String()).
		Str("actor", in.Actor.PartyID).
		Str("action", string(event)).
		Str("status", string(n.Status)).
		Msg("negotiation updated")
	s.publish(n, "negotiation.updated")
	return n, nil
}

// ConfirmOrder records that an order was placed at the accepted terms.
func (s *Service) ConfirmOrder(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	n, err := s.repo.Mutate(ctx, negotiationID, func(current *negotiation.Negotiation) (*negotiation.Negotiation, *negotiation.OfferHistoryEntry, error) {
		if current.BuyerID != actor.PartyID && !actor.IsService && !actor.IsAdmin {
			return nil, nil, negotiation.ErrNotParticipant
		}
		now := s.now()
		next, entry, err := s.sm.ConfirmOrder(current, actor.PartyID, now)
		if err != nil {
			return nil, nil, err
		}
		negotiation.ClearExpired(next, now)
		return next, entry, nil
	})
	if err != nil {
		return nil, s.fail("order", err)
	}

	metrics.ObserveTransition(string(negotiation.ActionOrder))
	s.logger.Info().
		Str("negotiation_id", n.NegotiationID.String()).
		Str("actor", actor.PartyID).
		Msg("negotiation ordered")
	s.publish(n, "negotiation.updated")
	return n, nil
}

// AcquireLock grants the edit lease to the actor.
func (s *Service) AcquireLock(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	return s.lockOp(ctx, "acquire", negotiationID, actor, func(n *negotiation.Negotiation, now time.Time) error {
		return s.locks.Acquire(n, actor.PartyID, now)
	})
}

// ExtendLock restarts the actor's live lease for a full TTL.
func (s *Service) ExtendLock(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	return s.lockOp(ctx, "extend", negotiationID, actor, func(n *negotiation.Negotiation, now time.Time) error {
		return s.locks.Extend(n, actor.PartyID, now)
	})
}

// ForceReleaseLock clears the lease, subject to the configured release policy.
func (s *Service) ForceReleaseLock(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	return s.lockOp(ctx, "release", negotiationID, actor, func(n *negotiation.Negotiation, now time.Time) error {
		return s.locks.ForceRelease(n, actor.PartyID, actor.IsAdmin, now)
	})
}

func (s *Service) lockOp(ctx context.Context, op string, negotiationID uuid.UUID, actor Actor, fn func(*negotiation.Negotiation, time.Time) error) (*negotiation.Negotiation, error) {
	n, err := s.repo.Mutate(ctx, negotiationID, func(current *negotiation.Negotiation) (*negotiation.Negotiation, *negotiation.OfferHistoryEntry, error) {
		if !current.IsParty(actor.PartyID) && !actor.IsAdmin {
			return nil, nil, negotiation.ErrNotParticipant
		}
		now := s.now()
		next := current.Clone()
		negotiation.ClearExpired(next, now)
		if err := fn(next, now); err != nil {
			return nil, nil, err
		}
		return next, nil, nil
	})
	if err != nil {
		metrics.ObserveLock(op, string(negotiation.KindOf(err)))
		return nil, s.fail("lock_"+op, err)
	}
	metrics.ObserveLock(op, "ok")
	s.logger.Debug().
		Str("negotiation_id", n.NegotiationID.String()).
		Str("actor", actor.PartyID).
		Str("op", op).
		Msg("lock changed")
	s.publish(n, "negotiation.lock")
	return n, nil
}

// ProcessExpiredLocks clears lease fields of expired leases. Reads never depend on it.
func (s *Service) ProcessExpiredLocks(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	count, err := s.repo.ClearExpiredLocks(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.ObserveSweep(count)
		s.logger.Debug().Int("count", count).Msg("expired locks cleared")
	}
	return count, nil
}

func (s *Service) load(ctx context.Context, negotiationID uuid.UUID, actor Actor) (*negotiation.Negotiation, error) {
	n, err := s.repo.GetByID(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, negotiation.ErrNotFound
	}
	if !n.IsParty(actor.PartyID) && !actor.IsAdmin && !actor.IsService {
		return nil, negotiation.ErrNotParticipant
	}
	negotiation.ClearExpired(n, s.now())
	return n, nil
}

func (s *Service) fail(op string, err error) error {
	kind := negotiation.KindOf(err)
	if kind == "" {
		s.logger.Error().Err(err).Str("op", op).Msg("negotiation operation failed")
		metrics.ObserveError(op, "INTERNAL")
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.ObserveError(op, string(kind))
	return err
}

func (s *Service) publish(n *negotiation.Negotiation, event string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishNegotiation(event, n.Clone())
}

// pageLimit keeps 0 as "no limit" and caps explicit page sizes.
func pageLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func maxInt(a, b int) int {
	if a >= b {
		return a
	}
	return b
}
