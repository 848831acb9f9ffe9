package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
)

const negotiationColumns = `id, negotiation_id, product_id, buyer_id, seller_id, status, proposed_price, proposed_quantity,
	last_offer_by, lock_owner, lock_acquired_at, lock_ttl_seconds, created_at, updated_at`

// NegotiationRepository implements negotiation.Repository.
// Writes to one negotiation are serialized with SELECT ... FOR UPDATE inside a transaction.
type NegotiationRepository struct {
	pool *pgxpool.Pool
}

func NewNegotiationRepository(pool *pgxpool.Pool) *NegotiationRepository {
	return &NegotiationRepository{pool: pool}
}

func (r *NegotiationRepository) Create(ctx context.Context, n *negotiation.Negotiation, seed *negotiation.OfferHistoryEntry, exclusive bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if exclusive {
		// held until commit, so two creates for the same buyer and product queue up here
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, n.ProductID+"|"+n.BuyerID); err != nil {
			return err
		}
		var open bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM negotiations
				WHERE product_id=$1 AND buyer_id=$2 AND status IN ('PENDING','COUNTER_OFFER')
			)
		`, n.ProductID, n.BuyerID).Scan(&open); err != nil {
			return err
		}
		if open {
			return negotiation.ErrConflict
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO negotiations
		(negotiation_id, product_id, buyer_id, seller_id, status, proposed_price, proposed_quantity,
		 last_offer_by, lock_owner, lock_acquired_at, lock_ttl_seconds, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, n.NegotiationID, n.ProductID, n.BuyerID, n.SellerID, n.Status, n.ProposedPrice, n.ProposedQuantity,
		n.LastOfferBy, n.LockOwner, n.LockAcquiredAt, n.LockTTLSeconds, n.CreatedAt, n.UpdatedAt).Scan(&n.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.ErrConflict
		}
		return err
	}

	if seed != nil {
		if err := insertHistory(ctx, tx, seed); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *NegotiationRepository) GetByID(ctx context.Context, negotiationID uuid.UUID) (*negotiation.Negotiation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE negotiation_id=$1`, negotiationID)
	return scanNegotiation(row)
}

func (r *NegotiationRepository) FindActiveForProduct(ctx context.Context, productID, partyID string) (*negotiation.Negotiation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+negotiationColumns+`
		FROM negotiations
		WHERE product_id=$1 AND (buyer_id=$2 OR seller_id=$2) AND status IN ('PENDING','COUNTER_OFFER')
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`, productID, partyID)
	return scanNegotiation(row)
}

func (r *NegotiationRepository) List(ctx context.Context, filter negotiation.Filter) ([]*negotiation.Negotiation, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+negotiationColumns+`
		FROM negotiations
		WHERE (buyer_id=$1 OR seller_id=$1) AND ($2::text IS NULL OR status=$2)
		ORDER BY updated_at DESC, id DESC
		LIMIT NULLIF($3::int, 0) OFFSET $4
	`, filter.PartyID, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*negotiation.Negotiation, 0)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NegotiationRepository) ListHistory(ctx context.Context, negotiationID uuid.UUID) ([]*negotiation.OfferHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entry_id, negotiation_id, offer_by, action, status, price, quantity, message, created_at
		FROM negotiation_offer_history
		WHERE negotiation_id=$1
		ORDER BY id ASC
	`, negotiationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*negotiation.OfferHistoryEntry, 0)
	for rows.Next() {
		var e negotiation.OfferHistoryEntry
		if err := rows.Scan(&e.ID, &e.NegotiationID, &e.OfferBy, &e.Action, &e.Status, &e.Price, &e.Quantity, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *NegotiationRepository) Mutate(ctx context.Context, negotiationID uuid.UUID, fn negotiation.MutateFunc) (*negotiation.Negotiation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanNegotiation(tx.QueryRow(ctx, `
		SELECT `+negotiationColumns+` FROM negotiations WHERE negotiation_id=$1 FOR UPDATE
	`, negotiationID))
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, negotiation.ErrNotFound
	}

	next, entry, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE negotiations
		SET status=$1, proposed_price=$2, proposed_quantity=$3, last_offer_by=$4,
		    lock_owner=$5, lock_acquired_at=$6, lock_ttl_seconds=$7, updated_at=$8
		WHERE negotiation_id=$9
	`, next.Status, next.ProposedPrice, next.ProposedQuantity, next.LastOfferBy,
		next.LockOwner, next.LockAcquiredAt, next.LockTTLSeconds, next.UpdatedAt, negotiationID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	next.ID = current.ID
	return next, nil
}

func (r *NegotiationRepository) ClearExpiredLocks(ctx context.Context, now time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE negotiations
		SET lock_owner=NULL, lock_acquired_at=NULL
		WHERE id IN (
			SELECT id FROM negotiations
			WHERE lock_owner IS NOT NULL
			  AND lock_acquired_at + make_interval(secs => lock_ttl_seconds) <= $1
			ORDER BY lock_acquired_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, now, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, e *negotiation.OfferHistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO negotiation_offer_history
		(entry_id, negotiation_id, offer_by, action, status, price, quantity, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.NegotiationID, e.OfferBy, e.Action, e.Status, e.Price, e.Quantity, e.Message, e.Timestamp)
	return err
}

func scanNegotiation(row pgx.Row) (*negotiation.Negotiation, error) {
	var n negotiation.Negotiation
	if err := row.Scan(&n.ID, &n.NegotiationID, &n.ProductID, &n.BuyerID, &n.SellerID, &n.Status, &n.ProposedPrice, &n.ProposedQuantity,
		&n.LastOfferBy, &n.LockOwner, &n.LockAcquiredAt, &n.LockTTLSeconds, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	if n.LockAcquiredAt != nil {
		at := n.LockAcquiredAt.UTC()
		n.LockAcquiredAt = &at
	}
	return &n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
