package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
)

type row struct {
	mu      sync.Mutex
	n       *negotiation.Negotiation
	history []*negotiation.OfferHistoryEntry
}

// NegotiationRepository implements negotiation.Repository in process memory.
// Each negotiation has its own mutex so writers of different ids never contend.
type NegotiationRepository struct {
	mu     sync.RWMutex
	rows   map[uuid.UUID]*row
	nextID int64

	// createMu serializes the duplicate check with the insert.
	createMu sync.Mutex
}

func NewNegotiationRepository() *NegotiationRepository {
	return &NegotiationRepository{rows: make(map[uuid.UUID]*row)}
}

func (r *NegotiationRepository) Create(ctx context.Context, n *negotiation.Negotiation, seed *negotiation.OfferHistoryEntry, exclusive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if exclusive {
		for _, rw := range r.snapshotRows() {
			rw.mu.Lock()
			dup := rw.n.ProductID == n.ProductID && rw.n.BuyerID == n.BuyerID && !rw.n.Status.IsTerminal()
			rw.mu.Unlock()
			if dup {
				return negotiation.ErrConflict
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[n.NegotiationID]; exists {
		return negotiation.ErrConflict
	}
	r.nextID++
	n.ID = r.nextID
	rw := &row{n: n.Clone()}
	if seed != nil {
		e := *seed
		rw.history = append(rw.history, &e)
	}
	r.rows[n.NegotiationID] = rw
	return nil
}

func (r *NegotiationRepository) GetByID(ctx context.Context, negotiationID uuid.UUID) (*negotiation.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rw := r.row(negotiationID)
	if rw == nil {
		return nil, nil
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.n.Clone(), nil
}

func (r *NegotiationRepository) FindActiveForProduct(ctx context.Context, productID, partyID string) (*negotiation.Negotiation, error) {
	items, err := r.collect(ctx, func(n *negotiation.Negotiation) bool {
		return n.ProductID == productID && n.IsParty(partyID) && !n.Status.IsTerminal()
	})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *NegotiationRepository) List(ctx context.Context, filter negotiation.Filter) ([]*negotiation.Negotiation, error) {
	items, err := r.collect(ctx, func(n *negotiation.Negotiation) bool {
		if !n.IsParty(filter.PartyID) {
			return false
		}
		return filter.Status == nil || n.Status == *filter.Status
	})
	if err != nil {
		return nil, err
	}
	return page(items, filter.Limit, filter.Offset), nil
}

func (r *NegotiationRepository) ListHistory(ctx context.Context, negotiationID uuid.UUID) ([]*negotiation.OfferHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rw := r.row(negotiationID)
	if rw == nil {
		return []*negotiation.OfferHistoryEntry{}, nil
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	out := make([]*negotiation.OfferHistoryEntry, 0, len(rw.history))
	for _, e := range rw.history {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *NegotiationRepository) Mutate(ctx context.Context, negotiationID uuid.UUID, fn negotiation.MutateFunc) (*negotiation.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rw := r.row(negotiationID)
	if rw == nil {
		return nil, negotiation.ErrNotFound
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()

	next, entry, err := fn(rw.n.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return rw.n.Clone(), nil
	}
	next.ID = rw.n.ID
	rw.n = next.Clone()
	if entry != nil {
		e := *entry
		rw.history = append(rw.history, &e)
	}
	return rw.n.Clone(), nil
}

func (r *NegotiationRepository) ClearExpiredLocks(ctx context.Context, now time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	for _, rw := range r.snapshotRows() {
		if limit > 0 && count >= limit {
			break
		}
		rw.mu.Lock()
		if negotiation.ClearExpired(rw.n, now) {
			count++
		}
		rw.mu.Unlock()
	}
	return count, nil
}

func (r *NegotiationRepository) row(id uuid.UUID) *row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rows[id]
}

func (r *NegotiationRepository) snapshotRows() []*row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*row, 0, len(r.rows))
	for _, rw := range r.rows {
		out = append(out, rw)
	}
	return out
}

func (r *NegotiationRepository) collect(ctx context.Context, match func(*negotiation.Negotiation) bool) ([]*negotiation.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*negotiation.Negotiation
	for _, rw := range r.snapshotRows() {
		rw.mu.Lock()
		if match(rw.n) {
			out = append(out, rw.n.Clone())
		}
		rw.mu.Unlock()
	}
	sortByRecent(out)
	return out, nil
}

// sortByRecent orders by updated_at desc, then creation order desc for ties.
func sortByRecent(items []*negotiation.Negotiation) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

func page(in []*negotiation.Negotiation, limit, offset int) []*negotiation.Negotiation {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = len(in)
	}
	if offset >= len(in) {
		return []*negotiation.Negotiation{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
