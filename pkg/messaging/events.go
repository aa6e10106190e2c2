package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Lot events
	EventLotReceived  = "lot.received"
	EventLotExhausted = "lot.exhausted"

	// Order events
	EventOrderFulfilled = "order.fulfilled"
	EventOrderCancelled = "order.cancelled"

	// Stock events
	EventStockReleased = "stock.released"
)

// Exchange names
const (
	ExchangeFulfillmentEvents = "fulfillment.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// ParseData unmarshals the event data into the provided struct
func (e *Event) ParseData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}
	return nil
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// Event payloads

// LotReceivedEvent is published when a new lot is created in the ledger
type LotReceivedEvent struct {
	LotCode          string     `json:"lot_code"`
	ItemID           string     `json:"item_id"`
	VendorID         string     `json:"vendor_id"`
	ReceivedQuantity int        `json:"received_quantity"`
	ReceivedAt       time.Time  `json:"received_at"`
	ExpiryAt         *time.Time `json:"expiry_at,omitempty"`
}

// LotExhaustedEvent is published when an allocation drains a lot to zero
type LotExhaustedEvent struct {
	LotCode string `json:"lot_code"`
	ItemID  string `json:"item_id"`
}

// OrderAllocation is one lot-level reservation inside an order event
type OrderAllocation struct {
	LotCode  string `json:"lot_code"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// OrderFulfilledEvent is published after a whole order is allocated and labeled
type OrderFulfilledEvent struct {
	OrderID     string            `json:"order_id"`
	Allocations []OrderAllocation `json:"allocations"`
	LabelCount  int               `json:"label_count"`
}

// OrderCancelledEvent is published after all of an order's live allocations are released
type OrderCancelledEvent struct {
	OrderID       string `json:"order_id"`
	ReleasedCount int    `json:"released_count"`
}

// StockReleasedEvent is published when quantity is returned to a lot
type StockReleasedEvent struct {
	LotCode  string `json:"lot_code"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}
