package negotiation

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// MaxMessageLength bounds the free-text note attached to an offer, in characters.
const MaxMessageLength = 2000

// Offer bounds match the storage column types: prices are NUMERIC(18,4), quantities INTEGER.
const (
	PriceScale    = 4
	MaxQuantity   = math.MaxInt32
	maxPriceDigit = 14
)

var maxPrice = decimal.New(1, maxPriceDigit)

// Event is a state machine input derived from an update patch.
type Event string

const (
	EventAccept  Event = "accept"
	EventReject  Event = "reject"
	EventCounter Event = "counter"
	EventOrder   Event = "order"
)

// StateMachine validates transitions and computes the next negotiation state.
// It never touches storage or lease fields.
type StateMachine struct{}

// CreateInput opens a negotiation.
type CreateInput struct {
	ProductID      string
	BuyerID        string
	SellerID       string
	Price          decimal.Decimal
	Quantity       int
	Message        *string
	LockTTLSeconds int
}

// Open builds a PENDING negotiation with the buyer's initial offer and its seed history entry.
func (StateMachine) Open(in CreateInput, now time.Time) (*Negotiation, *OfferHistoryEntry, error) {
	productID := strings.TrimSpace(in.ProductID)
	buyerID := strings.TrimSpace(in.BuyerID)
	sellerID := strings.TrimSpace(in.SellerID)
	if productID == "" {
		return nil, nil, ValidationError("product_id is required")
	}
	if buyerID == "" || sellerID == "" {
		return nil, nil, ValidationError("buyer and seller are required")
	}
	if buyerID == sellerID {
		return nil, nil, ValidationError("buyer and seller must differ")
	}
	if err := validateOffer(in.Price, in.Quantity); err != nil {
		return nil, nil, err
	}
	msg, err := normalizeMessage(in.Message)
	if err != nil {
		return nil, nil, err
	}
	ttl := in.LockTTLSeconds
	if ttl <= 0 {
		ttl = DefaultLockTTLSeconds
	}

	n := &Negotiation{
		NegotiationID:    uuid.New(),
		ProductID:        productID,
		BuyerID:          buyerID,
		SellerID:         sellerID,
		Status:           StatusPending,
		ProposedPrice:    in.Price,
		ProposedQuantity: in.Quantity,
		LastOfferBy:      buyerID,
		LockTTLSeconds:   ttl,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return n, newEntry(n, buyerID, ActionCreate, msg, now), nil
}

// DeriveEvent maps a patch onto exactly one event, or fails validation.
func DeriveEvent(current *Negotiation, p Patch) (Event, error) {
	if p.IsEmpty() {
		return "", ValidationError("update requires status, price or quantity")
	}
	if p.Status == nil {
		if p.Price == nil && p.Quantity == nil {
			return "", ValidationError("update requires status, price or quantity")
		}
		return EventCounter, nil
	}
	switch *p.Status {
	case StatusAccepted, StatusRejected:
		if p.Price != nil && !p.Price.Equal(current.ProposedPrice) {
			return "", ValidationError("price cannot change when responding with %s", *p.Status)
		}
		if p.Quantity != nil && *p.Quantity != current.ProposedQuantity {
			return "", ValidationError("quantity cannot change when responding with %s", *p.Status)
		}
		if *p.Status == StatusAccepted {
			return EventAccept, nil
		}
		return EventReject, nil
	case StatusCounterOffer:
		if p.Price == nil && p.Quantity == nil {
			return "", ValidationError("counter offer requires price or quantity")
		}
		return EventCounter, nil
	default:
		return "", ValidationError("status %s cannot be requested", *p.Status)
	}
}

// Apply runs one update by actor against current and returns the next state plus its history entry.
func (StateMachine) Apply(current *Negotiation, actor string, p Patch, now time.Time) (*Negotiation, *OfferHistoryEntry, error) {
	if current.Status.IsTerminal() {
		return nil, nil, ErrNegotiationClosed
	}
	if actor == current.LastOfferBy {
		return nil, nil, ErrTurnViolation
	}
	ev, err := DeriveEvent(current, p)
	if err != nil {
		return nil, nil, err
	}
	msg, err := normalizeMessage(p.Message)
	if err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	next.UpdatedAt = now
	switch ev {
	case EventAccept:
		next.Status = StatusAccepted
		return next, newEntry(next, actor, ActionAccept, msg, now), nil
	case EventReject:
		next.Status = StatusRejected
		return next, newEntry(next, actor, ActionReject, msg, now), nil
	default:
		price := current.ProposedPrice
		if p.Price != nil {
			price = *p.Price
		}
		qty := current.ProposedQuantity
		if p.Quantity != nil {
			qty = *p.Quantity
		}
		if err := validateOffer(price, qty); err != nil {
			return nil, nil, err
		}
		next.Status = StatusCounterOffer
		next.ProposedPrice = price
		next.ProposedQuantity = qty
		next.LastOfferBy = actor
		return next, newEntry(next, actor, ActionCounter, msg, now), nil
	}
}

// ConfirmOrder moves an ACCEPTED negotiation to ORDERED once a purchase at the agreed terms exists.
func (StateMachine) ConfirmOrder(current *Negotiation, actor string, now time.Time) (*Negotiation, *OfferHistoryEntry, error) {
	if current.Status != StatusAccepted {
		if current.Status.IsTerminal() {
			return nil, nil, ErrNegotiationClosed
		}
		return nil, nil, ValidationError("only an accepted negotiation can be ordered")
	}
	next := current.Clone()
	next.Status = StatusOrdered
	next.UpdatedAt = now
	return next, newEntry(next, actor, ActionOrder, nil, now), nil
}

func validateOffer(price decimal.Decimal, qty int) error {
	if !price.IsPositive() {
		return ValidationError("price must be greater than 0")
	}
	if !price.Equal(price.Truncate(PriceScale)) {
		return ValidationError("price must have at most %d decimal places", PriceScale)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return ValidationError("price must be below %s", maxPrice.String())
	}
	if qty < 1 {
		return ValidationError("quantity must be at least 1")
	}
	if qty > MaxQuantity {
		return ValidationError("quantity must be at most %d", MaxQuantity)
	}
	return nil
}

func normalizeMessage(msg *string) (*string, error) {
	if msg == nil {
		return nil, nil
	}
	m := strings.TrimSpace(*msg)
	if m == "" {
		return nil, nil
	}
	if !utf8.ValidString(m) {
		return nil, ValidationError("message must be valid UTF-8")
	}
	if utf8.RuneCountInString(m) > MaxMessageLength {
		return nil, ValidationError("message exceeds %d characters", MaxMessageLength)
	}
	return &m, nil
}

func newEntry(n *Negotiation, actor string, action Action, msg *string, now time.Time) *OfferHistoryEntry {
	return &OfferHistoryEntry{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		NegotiationID: n.NegotiationID,
		OfferBy:       actor,
		Action:        action,
		Status:        n.Status,
		Price:         n.ProposedPrice,
		Quantity:      n.ProposedQuantity,
		Message:       msg,
		Timestamp:     now,
	}
}
