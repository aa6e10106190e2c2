// Package events publishes fulfillment lifecycle events to RabbitMQ. All
// publish methods are nil-safe so the service runs unchanged when messaging
// is disabled.
package events

import (
	"context"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/freshtrace/freshtrace-backend/pkg/messaging"
)

// FulfillmentEventPublisher publishes fulfillment-related events
type FulfillmentEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewFulfillmentEventPublisher creates a new fulfillment event publisher
func NewFulfillmentEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*FulfillmentEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeFulfillmentEvents, "fulfillment-service", log)
	if err != nil {
		return nil, err
	}

	return &FulfillmentEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishLotReceived publishes a lot received event
func (p *FulfillmentEventPublisher) PublishLotReceived(ctx context.Context, lot *domain.Lot) {
	if p == nil {
		return
	}

	data := messaging.LotReceivedEvent{
		LotCode:          lot.LotCode,
		ItemID:           lot.ItemID,
		VendorID:         lot.VendorID,
		ReceivedQuantity: lot.ReceivedQuantity,
		ReceivedAt:       lot.ReceivedAt,
		ExpiryAt:         lot.ExpiryAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLotReceived, data); err != nil {
		p.logger.Error().Err(err).Str("lot_code", lot.LotCode).Msg("failed to publish lot received event")
	}
}

// PublishLotExhausted publishes a lot exhausted event
func (p *FulfillmentEventPublisher) PublishLotExhausted(ctx context.Context, lotCode, itemID string) {
	if p == nil {
		return
	}

	data := messaging.LotExhaustedEvent{
		LotCode: lotCode,
		ItemID:  itemID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLotExhausted, data); err != nil {
		p.logger.Error().Err(err).Str("lot_code", lotCode).Msg("failed to publish lot exhausted event")
	}
}

// PublishOrderFulfilled publishes an order fulfilled event
func (p *FulfillmentEventPublisher) PublishOrderFulfilled(ctx context.Context, manifest *domain.ShipmentManifest) {
	if p == nil {
		return
	}

	allocations := make([]messaging.OrderAllocation, len(manifest.Allocations))
	for i, a := range manifest.Allocations {
		allocations[i] = messaging.OrderAllocation{
			LotCode:  a.LotCode,
			ItemID:   a.ItemID,
			Quantity: a.Quantity,
		}
	}

	data := messaging.OrderFulfilledEvent{
		OrderID:     manifest.OrderID,
		Allocations: allocations,
		LabelCount:  len(manifest.Labels),
	}

	if err := p.publisher.Publish(ctx, messaging.EventOrderFulfilled, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", manifest.OrderID).Msg("failed to publish order fulfilled event")
	}
}

// PublishOrderCancelled publishes an order cancelled event
func (p *FulfillmentEventPublisher) PublishOrderCancelled(ctx context.Context, orderID string, releasedCount int) {
	if p == nil {
		return
	}

	data := messaging.OrderCancelledEvent{
		OrderID:       orderID,
		ReleasedCount: releasedCount,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOrderCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to publish order cancelled event")
	}
}

// PublishStockReleased publishes a stock released event
func (p *FulfillmentEventPublisher) PublishStockReleased(ctx context.Context, lotCode, itemID string, quantity int, reason string) {
	if p == nil {
		return
	}

	data := messaging.StockReleasedEvent{
		LotCode:  lotCode,
		ItemID:   itemID,
		Quantity: quantity,
		Reason:   reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReleased, data); err != nil {
		p.logger.Error().Err(err).Str("lot_code", lotCode).Msg("failed to publish stock released event")
	}
}
