// Package service holds the fulfillment business logic: receiving lots,
// allocating them to orders, and producing compliance labels.
package service

import (
	"context"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/events"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/label"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
)

// FulfillmentService orchestrates the lot ledger, allocation engine and label
// encoder behind the HTTP layer
type FulfillmentService struct {
	store     ledger.Store
	engine    *AllocationEngine
	encoder   *label.Encoder
	publisher *events.FulfillmentEventPublisher
	logger    *logger.Logger
}

// NewFulfillmentService creates a new fulfillment service. publisher may be
// nil when messaging is disabled.
func NewFulfillmentService(
	store ledger.Store,
	encoder *label.Encoder,
	publisher *events.FulfillmentEventPublisher,
	log *logger.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		store:     store,
		engine:    NewAllocationEngine(store, log),
		encoder:   encoder,
		publisher: publisher,
		logger:    log,
	}
}

// ReceiveLotInput describes a receiving event from the intake boundary
type ReceiveLotInput struct {
	ItemID     string     `json:"item_id" validate:"required"`
	VendorID   string     `json:"vendor_id" validate:"required"`
	Quantity   int        `json:"quantity" validate:"required,gt=0"`
	ReceivedAt time.Time  `json:"received_at"`
	ExpiryAt   *time.Time `json:"expiry_at,omitempty"`
}

// ReceiveLot creates a new lot for a receiving event. The item and vendor
// must already be registered; a zero ReceivedAt defaults to now.
func (s *FulfillmentService) ReceiveLot(ctx context.Context, in ReceiveLotInput) (*domain.Lot, error) {
	if _, err := s.store.GetItem(ctx, in.ItemID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetVendor(ctx, in.VendorID); err != nil {
		return nil, err
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	lot, err := s.store.Receive(ctx, ledger.ReceiveInput{
		ItemID:     in.ItemID,
		VendorID:   in.VendorID,
		Quantity:   in.Quantity,
		ReceivedAt: receivedAt,
		ExpiryAt:   in.ExpiryAt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_code", lot.LotCode).
		Str("item_id", lot.ItemID).
		Int("quantity", lot.ReceivedQuantity).
		Msg("lot received")
	s.publisher.PublishLotReceived(ctx, lot)

	return lot, nil
}

// FulfillOrder allocates stock for every line item and encodes one label per
// allocated lot. Any failure after allocation releases everything the call
// reserved; the ledger always ends in its pre-call state on error.
func (s *FulfillmentService) FulfillOrder(ctx context.Context, orderID string, requests []domain.AllocationRequest) (*domain.ShipmentManifest, error) {
	allocs, err := s.engine.Allocate(ctx, requests)
	if err != nil {
		return nil, err
	}

	labels, exhausted, err := s.encodeLabels(ctx, allocs)
	if err != nil {
		s.engine.Rollback(ctx, allocs)
		return nil, err
	}

	if err := s.store.RecordAllocations(ctx, orderID, allocs); err != nil {
		s.engine.Rollback(ctx, allocs)
		return nil, err
	}

	manifest := &domain.ShipmentManifest{
		OrderID:     orderID,
		Allocations: allocs,
		Labels:      labels,
	}

	s.logger.Info().
		Str("order_id", orderID).
		Int("lots", len(allocs)).
		Msg("order fulfilled")
	s.publisher.PublishOrderFulfilled(ctx, manifest)
	for _, e := range exhausted {
		s.publisher.PublishLotExhausted(ctx, e.LotCode, e.ItemID)
	}

	return manifest, nil
}

// encodeLabels produces one label per allocation and collects the lots the
// allocation drained. Labels go with the physical lot, so a single item
// spanning two lots yields two labels.
func (s *FulfillmentService) encodeLabels(ctx context.Context, allocs []domain.LotAllocation) ([]domain.LabelPayload, []domain.LotAllocation, error) {
	labels := make([]domain.LabelPayload, 0, len(allocs))
	var exhausted []domain.LotAllocation

	for _, a := range allocs {
		lot, err := s.store.GetLot(ctx, a.LotCode)
		if err != nil {
			return nil, nil, err
		}
		item, err := s.store.GetItem(ctx, lot.ItemID)
		if err != nil {
			return nil, nil, err
		}
		payload, err := s.encoder.Encode(item, lot)
		if err != nil {
			return nil, nil, err
		}
		labels = append(labels, *payload)
		if lot.Exhausted() {
			exhausted = append(exhausted, a)
		}
	}

	return labels, exhausted, nil
}

// CancelOrder releases every live allocation the order holds. Cancelling an
// order with no live allocations is a no-op, which makes retries safe.
func (s *FulfillmentService) CancelOrder(ctx context.Context, orderID string) error {
	records, err := s.store.LiveAllocations(ctx, orderID)
	if err != nil {
		return err
	}

	// Releases run detached from the caller's deadline: once we start
	// unwinding an order we finish it.
	detached := context.WithoutCancel(ctx)
	released := make([]string, 0, len(records))
	for _, r := range records {
		if err := s.store.Release(detached, r.LotCode, r.Quantity); err != nil {
			s.logger.Error().Err(err).
				Str("order_id", orderID).
				Str("lot_code", r.LotCode).
				Msg("failed to release allocation during cancel")
			continue
		}
		released = append(released, r.ID)
		s.publisher.PublishStockReleased(detached, r.LotCode, r.ItemID, r.Quantity, "order cancelled")
	}
	if err := s.store.MarkReleased(detached, released); err != nil {
		return err
	}

	if len(released) > 0 {
		s.logger.Info().
			Str("order_id", orderID).
			Int("released", len(released)).
			Msg("order cancelled")
		s.publisher.PublishOrderCancelled(detached, orderID, len(released))
	}
	return nil
}

// ReleaseLot returns quantity to a lot outside of order cancellation, such as
// a damaged-goods return to stock
func (s *FulfillmentService) ReleaseLot(ctx context.Context, lotCode string, quantity int, reason string) (*domain.Lot, error) {
	lot, err := s.store.GetLot(ctx, lotCode)
	if err != nil {
		return nil, err
	}
	if err := s.store.Release(ctx, lotCode, quantity); err != nil {
		return nil, err
	}
	s.publisher.PublishStockReleased(ctx, lotCode, lot.ItemID, quantity, reason)
	return s.store.GetLot(ctx, lotCode)
}

// EncodeLabel re-derives the label payload for a lot. Payloads are never
// cached: a reprint after the lot record changed must reflect current data.
func (s *FulfillmentService) EncodeLabel(ctx context.Context, lotCode string) (*domain.LabelPayload, error) {
	lot, err := s.store.GetLot(ctx, lotCode)
	if err != nil {
		return nil, err
	}
	item, err := s.store.GetItem(ctx, lot.ItemID)
	if err != nil {
		return nil, err
	}
	return s.encoder.Encode(item, lot)
}

// GetLot returns a lot by code
func (s *FulfillmentService) GetLot(ctx context.Context, lotCode string) (*domain.Lot, error) {
	return s.store.GetLot(ctx, lotCode)
}

// ListLotsByItem returns an item's lots, oldest received first
func (s *FulfillmentService) ListLotsByItem(ctx context.Context, itemID string) ([]*domain.Lot, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListByItem(ctx, itemID)
}

// ListExpiring returns unexhausted lots expiring within the window
func (s *FulfillmentService) ListExpiring(ctx context.Context, within time.Duration) ([]*domain.Lot, error) {
	return s.store.ListExpiring(ctx, within)
}

// CreateItem registers an item after validating its GTIN. The stored GTIN is
// the normalized 14-digit form so every label derives the same AI(01) value.
func (s *FulfillmentService) CreateItem(ctx context.Context, item *domain.Item) error {
	gtin, err := label.NormalizeGTIN(item.GTIN)
	if err != nil {
		return err
	}
	item.GTIN = gtin
	return s.store.CreateItem(ctx, item)
}

// GetItem returns an item by id
func (s *FulfillmentService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return s.store.GetItem(ctx, id)
}

// ListItems returns all registered items
func (s *FulfillmentService) ListItems(ctx context.Context) ([]*domain.Item, error) {
	return s.store.ListItems(ctx)
}

// CreateVendor registers a vendor
func (s *FulfillmentService) CreateVendor(ctx context.Context, vendor *domain.Vendor) error {
	return s.store.CreateVendor(ctx, vendor)
}

// GetVendor returns a vendor by id
func (s *FulfillmentService) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	return s.store.GetVendor(ctx, id)
}
