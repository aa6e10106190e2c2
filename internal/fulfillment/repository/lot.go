package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
)

// LotRepository is the Postgres-backed lot ledger. Per-lot serialization comes
// from row locks: every mutation either updates a single row conditionally or
// runs in a serializable transaction that locks its candidate rows with
// SELECT ... FOR UPDATE in a fixed order.
type LotRepository struct {
	db          *database.DB
	gen         ledger.CodeGenerator
	maxAttempts int
}

// NewLotRepository creates a lot repository. maxAttempts bounds the lot code
// collision retry on receive.
func NewLotRepository(db *database.DB, gen ledger.CodeGenerator, maxAttempts int) *LotRepository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &LotRepository{db: db, gen: gen, maxAttempts: maxAttempts}
}

// Receive inserts a new lot. The unique index on lot_code is the authority on
// uniqueness; a 23505 on insert means the generator collided and we draw a
// fresh code, up to maxAttempts times.
func (r *LotRepository) Receive(ctx context.Context, in ledger.ReceiveInput) (*domain.Lot, error) {
	if in.Quantity <= 0 {
		return nil, domain.InvalidQuantity(in.Quantity)
	}

	query := `
		INSERT INTO lots (
			lot_code, item_id, vendor_id, received_quantity, available_quantity,
			received_at, expiry_at
		) VALUES ($1, $2, $3, $4, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		lot := &domain.Lot{
			LotCode:           r.gen.NewLotCode(in.ReceivedAt),
			ItemID:            in.ItemID,
			VendorID:          in.VendorID,
			ReceivedQuantity:  in.Quantity,
			AvailableQuantity: in.Quantity,
			ReceivedAt:        in.ReceivedAt,
			ExpiryAt:          in.ExpiryAt,
		}

		err := r.db.QueryRowxContext(ctx, query,
			lot.LotCode, lot.ItemID, lot.VendorID, lot.ReceivedQuantity,
			lot.ReceivedAt, lot.ExpiryAt,
		).Scan(&lot.CreatedAt, &lot.UpdatedAt)
		if err == nil {
			return lot, nil
		}
		if database.IsUniqueViolation(err, "lot_code") || database.IsUniqueViolation(err, "lots_pkey") {
			continue
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return nil, domain.GenerationExhausted(r.maxAttempts)
}

// Allocate reserves quantity from the item's lots inside one serializable
// transaction. Candidate rows are locked in ascending lot_code order so
// concurrent allocations over overlapping lot sets cannot deadlock; the
// consumed amounts follow FIFO by received_at with lot_code as tie-break.
func (r *LotRepository) Allocate(ctx context.Context, itemID string, quantity int) ([]domain.LotAllocation, error) {
	if quantity <= 0 {
		return nil, domain.InvalidQuantity(quantity)
	}

	var allocs []domain.LotAllocation
	err := r.db.SerializableTransaction(ctx, func(tx *sqlx.Tx) error {
		var candidates []*domain.Lot
		lockQuery := `
			SELECT * FROM lots
			WHERE item_id = $1 AND available_quantity > 0
			ORDER BY lot_code
			FOR UPDATE
		`
		if err := tx.SelectContext(ctx, &candidates, lockQuery, itemID); err != nil {
			return err
		}

		total := 0
		for _, lot := range candidates {
			total += lot.AvailableQuantity
		}
		if total < quantity {
			return domain.InsufficientStock(itemID, quantity, total)
		}

		fifoOrder(candidates)

		updateQuery := `
			UPDATE lots
			SET available_quantity = available_quantity - $2, updated_at = NOW()
			WHERE lot_code = $1 AND available_quantity >= $2
		`
		remaining := quantity
		allocs = allocs[:0]
		for _, lot := range candidates {
			if remaining == 0 {
				break
			}
			take := lot.AvailableQuantity
			if take > remaining {
				take = remaining
			}
			result, err := tx.ExecContext(ctx, updateQuery, lot.LotCode, take)
			if err != nil {
				return err
			}
			affected, _ := result.RowsAffected()
			if affected == 0 {
				// The row was locked, so its quantity cannot have moved
				// under us. Reaching here means a broken invariant.
				return errors.Internal("lot quantity changed inside allocation lock")
			}
			remaining -= take
			allocs = append(allocs, domain.LotAllocation{
				LotCode:  lot.LotCode,
				ItemID:   itemID,
				Quantity: take,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// Release returns quantity to a lot with a conditional update that keeps
// available within received. Zero rows affected distinguishes an over-release
// from a missing lot.
func (r *LotRepository) Release(ctx context.Context, lotCode string, quantity int) error {
	if quantity <= 0 {
		return domain.InvalidQuantity(quantity)
	}

	query := `
		UPDATE lots
		SET available_quantity = available_quantity + $2, updated_at = NOW()
		WHERE lot_code = $1 AND available_quantity + $2 <= received_quantity
	`
	result, err := r.db.ExecContext(ctx, query, lotCode, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	lot, err := r.GetLot(ctx, lotCode)
	if err != nil {
		return err
	}
	return domain.OverRelease(lotCode, quantity, lot.AvailableQuantity, lot.ReceivedQuantity)
}

// GetLot gets a lot by code
func (r *LotRepository) GetLot(ctx context.Context, lotCode string) (*domain.Lot, error) {
	var lot domain.Lot
	query := `SELECT * FROM lots WHERE lot_code = $1`
	if err := r.db.GetContext(ctx, &lot, query, lotCode); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// ListByItem lists an item's lots, oldest received first
func (r *LotRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.Lot, error) {
	var lots []*domain.Lot
	query := `
		SELECT * FROM lots
		WHERE item_id = $1
		ORDER BY received_at, lot_code
	`
	if err := r.db.SelectContext(ctx, &lots, query, itemID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListExpiring lists unexhausted lots expiring within the window, soonest first
func (r *LotRepository) ListExpiring(ctx context.Context, within time.Duration) ([]*domain.Lot, error) {
	var lots []*domain.Lot
	query := `
		SELECT * FROM lots
		WHERE available_quantity > 0
		AND expiry_at IS NOT NULL
		AND expiry_at <= NOW() + $1 * INTERVAL '1 second'
		ORDER BY expiry_at
	`
	if err := r.db.SelectContext(ctx, &lots, query, int(within.Seconds())); err != nil {
		return nil, err
	}
	return lots, nil
}

// fifoOrder sorts lots oldest received_at first, ties by ascending lot code
func fifoOrder(lots []*domain.Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ReceivedAt.Equal(lots[j].ReceivedAt) {
			return lots[i].ReceivedAt.Before(lots[j].ReceivedAt)
		}
		return lots[i].LotCode < lots[j].LotCode
	})
}
