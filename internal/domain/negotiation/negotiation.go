package negotiation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLockTTLSeconds is the lease duration used when none is configured.
const DefaultLockTTLSeconds = 300

// Status describes negotiation state.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusCounterOffer Status = "COUNTER_OFFER"
	StatusAccepted     Status = "ACCEPTED"
	StatusRejected     Status = "REJECTED"
	StatusOrdered      Status = "ORDERED"
)

// IsTerminal reports whether no further offer or status mutation is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusOrdered:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCounterOffer, StatusAccepted, StatusRejected, StatusOrdered:
		return true
	}
	return false
}

// ParseStatus normalizes and validates a status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// Action describes what produced an offer history entry.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionCounter Action = "COUNTER"
	ActionAccept  Action = "ACCEPT"
	ActionReject  Action = "REJECT"
	ActionOrder   Action = "ORDER"
)

// Negotiation is one bargaining session between a buyer and a seller over a listing.
// Lock fields are stored as-is; callers read them through Lock views computed at a given time.
type Negotiation struct {
	ID               int64           `json:"-"`
	NegotiationID    uuid.UUID       `json:"id"`
	ProductID        string          `json:"product_id"`
	BuyerID          string          `json:"buyer_id"`
	SellerID         string          `json:"seller_id"`
	Status           Status          `json:"status"`
	ProposedPrice    decimal.Decimal `json:"proposed_price"`
	ProposedQuantity int             `json:"proposed_quantity"`
	LastOfferBy      string          `json:"last_offer_by"`
	LockOwner        *string         `json:"lock_owner"`
	LockAcquiredAt   *time.Time      `json:"lock_acquired_at,omitempty"`
	LockTTLSeconds   int             `json:"lock_ttl_seconds"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsParty reports whether partyID is the buyer or the seller.
func (n *Negotiation) IsParty(partyID string) bool {
	return partyID != "" && (partyID == n.BuyerID || partyID == n.SellerID)
}

// Counterparty returns the other side of the negotiation.
func (n *Negotiation) Counterparty(partyID string) string {
	if partyID == n.BuyerID {
		return n.SellerID
	}
	return n.BuyerID
}

// Parties returns buyer and seller ids.
func (n *Negotiation) Parties() []string {
	return []string{n.BuyerID, n.SellerID}
}

// Clone returns a deep copy.
func (n *Negotiation) Clone() *Negotiation {
	if n == nil {
		return nil
	}
	c := *n
	if n.LockOwner != nil {
		owner := *n.LockOwner
		c.LockOwner = &owner
	}
	if n.LockAcquiredAt != nil {
		at := *n.LockAcquiredAt
		c.LockAcquiredAt = &at
	}
	return &c
}

// OfferHistoryEntry is one immutable record in the offer ledger.
type OfferHistoryEntry struct {
	ID            string          `json:"id"`
	NegotiationID uuid.UUID       `json:"negotiation_id"`
	OfferBy       string          `json:"offer_by"`
	Action        Action          `json:"action"`
	Status        Status          `json:"status"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	Message       *string         `json:"message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Patch is the closed set of fields a caller may send on update.
type Patch struct {
	Status   *Status
	Price    *decimal.Decimal
	Quantity *int
	Message  *string
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Price == nil && p.Quantity == nil && p.Message == nil
}

// Filter scopes negotiation listing to one party. Limit 0 means no limit.
type Filter struct {
	PartyID string
	Status  *Status
	Limit   int
	Offset  int
}
