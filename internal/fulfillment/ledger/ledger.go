// Package ledger defines the store abstractions behind the fulfillment
// service. The lot ledger is the authoritative holder of per-lot quantity
// invariants; implementations must keep 0 <= available <= received on every
// mutation and serialize concurrent writers that touch the same lot.
package ledger

import (
	"context"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
)

// CodeGenerator produces candidate lot codes for receiving events.
// Implemented by lotcode.Generator.
type CodeGenerator interface {
	NewLotCode(now time.Time) string
}

// ReceiveInput describes a receiving event for a new lot
type ReceiveInput struct {
	ItemID     string
	VendorID   string
	Quantity   int
	ReceivedAt time.Time
	ExpiryAt   *time.Time
}

// Ledger is the authoritative store of lot records. All three mutations are
// atomic: Allocate either consumes the full requested quantity (possibly
// across several lots of one item) or mutates nothing.
type Ledger interface {
	// Receive creates a new lot with available = received = quantity. The
	// implementation generates the lot code and owns the collision check:
	// on a duplicate it regenerates a bounded number of times before
	// surfacing domain.ErrGenerationExhausted.
	Receive(ctx context.Context, in ReceiveInput) (*domain.Lot, error)

	// Allocate reserves quantity of an item, consuming lots oldest
	// received_at first (ties broken by ascending lot code). Returns
	// domain.ErrInsufficientStock without mutating anything when the item's
	// combined available quantity is short.
	Allocate(ctx context.Context, itemID string, quantity int) ([]domain.LotAllocation, error)

	// Release returns quantity to a lot, capped at its received quantity.
	// Exceeding the cap is a caller bug and fails with domain.ErrOverRelease.
	Release(ctx context.Context, lotCode string, quantity int) error

	// GetLot returns a lot by code
	GetLot(ctx context.Context, lotCode string) (*domain.Lot, error)

	// ListByItem returns all lots of an item, oldest received first
	ListByItem(ctx context.Context, itemID string) ([]*domain.Lot, error)

	// ListExpiring returns unexhausted lots whose expiry falls within the
	// given window from now, soonest first
	ListExpiring(ctx context.Context, within time.Duration) ([]*domain.Lot, error)
}

// ItemStore holds the item registry referenced by lots
type ItemStore interface {
	CreateItem(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListItems(ctx context.Context) ([]*domain.Item, error)
}

// VendorStore holds the vendor registry referenced by lots
type VendorStore interface {
	CreateVendor(ctx context.Context, vendor *domain.Vendor) error
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
}

// AllocationJournal records which order holds which lot allocations. It backs
// order cancellation and the conservation audit: for any lot,
// received - available equals the sum of its live (unreleased) records.
type AllocationJournal interface {
	RecordAllocations(ctx context.Context, orderID string, allocs []domain.LotAllocation) error
	LiveAllocations(ctx context.Context, orderID string) ([]*domain.AllocationRecord, error)
	LiveAllocationsByLot(ctx context.Context, lotCode string) ([]*domain.AllocationRecord, error)
	MarkReleased(ctx context.Context, recordIDs []string) error
}

// Store bundles every persistence concern the fulfillment service needs.
// Both the in-memory ledger and the Postgres repositories satisfy it.
type Store interface {
	Ledger
	ItemStore
	VendorStore
	AllocationJournal
}
