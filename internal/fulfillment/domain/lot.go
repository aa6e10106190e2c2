package domain

import (
	"time"
)

// Item represents a trackable product. Items are immutable once a lot
// references them.
type Item struct {
	ID        string    `json:"id" db:"id"`
	GTIN      string    `json:"gtin" db:"gtin"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Vendor represents a supplier reference
type Vendor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Lot is a discrete batch of inventory received together. The received
// quantity is set once at creation; the available quantity only moves through
// the ledger's Allocate and Release operations and always stays within
// [0, received_quantity]. Lots are never deleted, only exhausted.
type Lot struct {
	LotCode           string     `json:"lot_code" db:"lot_code"`
	ItemID            string     `json:"item_id" db:"item_id"`
	VendorID          string     `json:"vendor_id" db:"vendor_id"`
	ReceivedQuantity  int        `json:"received_quantity" db:"received_quantity"`
	AvailableQuantity int        `json:"available_quantity" db:"available_quantity"`
	ReceivedAt        time.Time  `json:"received_at" db:"received_at"`
	ExpiryAt          *time.Time `json:"expiry_at,omitempty" db:"expiry_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Exhausted reports whether the lot has no quantity left to allocate
func (l *Lot) Exhausted() bool {
	return l.AvailableQuantity == 0
}

// AllocationRequest is one order line: a quantity of an item to reserve
type AllocationRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// LotAllocation is a reservation of a specific quantity from a specific lot
type LotAllocation struct {
	LotCode  string `json:"lot_code"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// AllocationRecord is the persisted audit trail of a lot allocation for an
// order. Live (unreleased) records back order cancellation and the
// conservation check: received - available on a lot equals the sum of its
// live allocations.
type AllocationRecord struct {
	ID         string     `json:"id" db:"id"`
	OrderID    string     `json:"order_id" db:"order_id"`
	LotCode    string     `json:"lot_code" db:"lot_code"`
	ItemID     string     `json:"item_id" db:"item_id"`
	Quantity   int        `json:"quantity" db:"quantity"`
	Released   bool       `json:"released" db:"released"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty" db:"released_at"`
}

// GS1Field is one Application Identifier / value pair in encoding order
type GS1Field struct {
	AI    string `json:"ai"`
	Value string `json:"value"`
}

// PTIFields is the PTI/FSMA label payload. Expiry is never empty: lots
// without an expiry date carry an explicit marker instead.
type PTIFields struct {
	ItemName string `json:"item_name"`
	GTIN     string `json:"gtin"`
	LotCode  string `json:"lot_code"`
	PackDate string `json:"pack_date"`
	Expiry   string `json:"expiry"`
}

// LabelPayload is the encoded label content for one lot. It is derived, never
// persisted, and must be re-derived for every print request.
type LabelPayload struct {
	GS1128        string     `json:"gs1_128"`
	GS1Fields     []GS1Field `json:"gs1_fields"`
	HumanReadable string     `json:"human_readable"`
	PTI           PTIFields  `json:"pti_fields"`
}

// ShipmentManifest is the result of fulfilling one order: the lot-level
// allocations and one label per allocated lot, index-aligned with Allocations.
type ShipmentManifest struct {
	OrderID     string          `json:"order_id"`
	Allocations []LotAllocation `json:"allocations"`
	Labels      []LabelPayload  `json:"labels"`
}
