package service

import (
	"context"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
)

// AllocationEngine turns an order's line items into lot-level reservations.
// The ledger's primitive is atomic per item; the engine makes the whole
// multi-item request atomic by releasing every earlier reservation when a
// later item cannot be satisfied.
type AllocationEngine struct {
	ledger ledger.Ledger
	logger *logger.Logger
}

// NewAllocationEngine creates an allocation engine over a lot ledger
func NewAllocationEngine(l ledger.Ledger, log *logger.Logger) *AllocationEngine {
	return &AllocationEngine{ledger: l, logger: log}
}

// Allocate reserves stock for every request or for none of them. A caller
// deadline is honored between items; on cancellation or failure the rollback
// still runs to completion so no partial allocation outlives the call.
func (e *AllocationEngine) Allocate(ctx context.Context, requests []domain.AllocationRequest) ([]domain.LotAllocation, error) {
	var granted []domain.LotAllocation

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			e.rollback(ctx, granted)
			return nil, err
		}

		allocs, err := e.ledger.Allocate(ctx, req.ItemID, req.Quantity)
		if err != nil {
			e.rollback(ctx, granted)
			return nil, err
		}
		granted = append(granted, allocs...)
	}

	return granted, nil
}

// Rollback releases a set of allocations. Exposed for the orchestrator, which
// must undo a fully granted allocation when labeling fails afterwards.
func (e *AllocationEngine) Rollback(ctx context.Context, allocs []domain.LotAllocation) {
	e.rollback(ctx, allocs)
}

// rollback releases every allocation in the slice. It runs detached from the
// caller's cancellation: a timed-out request must still be unwound.
func (e *AllocationEngine) rollback(ctx context.Context, allocs []domain.LotAllocation) {
	if len(allocs) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)

	for _, a := range allocs {
		if err := e.ledger.Release(detached, a.LotCode, a.Quantity); err != nil {
			// An over-release here means the ledger state diverged from what
			// this call granted. Log loudly; there is nothing safe to retry.
			e.logger.Error().Err(err).
				Str("lot_code", a.LotCode).
				Int("quantity", a.Quantity).
				Msg("failed to roll back allocation")
		}
	}
}
