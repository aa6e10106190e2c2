package repository

import (
	"context"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// AllocationRepository persists the allocation journal
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// RecordAllocations journals the lot allocations held by an order. All rows
// of one order commit together.
func (r *AllocationRepository) RecordAllocations(ctx context.Context, orderID string, allocs []domain.LotAllocation) error {
	if len(allocs) == 0 {
		return nil
	}

	query := `
		INSERT INTO allocations (id, order_id, lot_code, item_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, a := range allocs {
			_, err := tx.ExecContext(ctx, query,
				uuid.New().String(), orderID, a.LotCode, a.ItemID, a.Quantity,
			)
			if err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
		}
		return nil
	})
}

// LiveAllocations lists an order's unreleased allocation records
func (r *AllocationRepository) LiveAllocations(ctx context.Context, orderID string) ([]*domain.AllocationRecord, error) {
	var records []*domain.AllocationRecord
	query := `
		SELECT * FROM allocations
		WHERE order_id = $1 AND released = false
		ORDER BY created_at, lot_code
	`
	if err := r.db.SelectContext(ctx, &records, query, orderID); err != nil {
		return nil, err
	}
	return records, nil
}

// LiveAllocationsByLot lists a lot's unreleased allocation records
func (r *AllocationRepository) LiveAllocationsByLot(ctx context.Context, lotCode string) ([]*domain.AllocationRecord, error) {
	var records []*domain.AllocationRecord
	query := `
		SELECT * FROM allocations
		WHERE lot_code = $1 AND released = false
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &records, query, lotCode); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkReleased flags journal records as released
func (r *AllocationRepository) MarkReleased(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	query := `
		UPDATE allocations
		SET released = true, released_at = NOW()
		WHERE id = ANY($1) AND released = false
	`
	_, err := r.db.ExecContext(ctx, query, pq.Array(recordIDs))
	return err
}
