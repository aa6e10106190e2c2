package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/google/uuid"
)

// memLot pairs a lot with its own mutex. The lot is the unit of locking:
// mutations to one lot exclude each other while operations on different lots
// proceed concurrently.
type memLot struct {
	mu  sync.Mutex
	lot domain.Lot
}

// Memory is an in-memory Store. It backs development and tests, and doubles
// as the reference implementation of the ledger's locking discipline:
// Allocate locks its candidate lots in ascending lot-code order so that two
// allocations racing over overlapping candidate sets cannot deadlock.
type Memory struct {
	gen         CodeGenerator
	maxAttempts int

	mu      sync.RWMutex
	lots    map[string]*memLot
	byItem  map[string][]*memLot
	items   map[string]*domain.Item
	vendors map[string]*domain.Vendor
	records []*domain.AllocationRecord
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory(gen CodeGenerator, maxAttempts int) *Memory {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Memory{
		gen:         gen,
		maxAttempts: maxAttempts,
		lots:        make(map[string]*memLot),
		byItem:      make(map[string][]*memLot),
		items:       make(map[string]*domain.Item),
		vendors:     make(map[string]*domain.Vendor),
	}
}

// Receive creates a new lot. The generator only makes collisions rare; the
// insertion check here is what enforces uniqueness, with a bounded retry.
func (m *Memory) Receive(ctx context.Context, in ReceiveInput) (*domain.Lot, error) {
	if in.Quantity <= 0 {
		return nil, domain.InvalidQuantity(in.Quantity)
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		code := m.gen.NewLotCode(in.ReceivedAt)

		m.mu.Lock()
		if _, exists := m.lots[code]; exists {
			m.mu.Unlock()
			continue
		}

		now := time.Now().UTC()
		entry := &memLot{
			lot: domain.Lot{
				LotCode:           code,
				ItemID:            in.ItemID,
				VendorID:          in.VendorID,
				ReceivedQuantity:  in.Quantity,
				AvailableQuantity: in.Quantity,
				ReceivedAt:        in.ReceivedAt,
				ExpiryAt:          in.ExpiryAt,
				CreatedAt:         now,
				UpdatedAt:         now,
			},
		}
		m.lots[code] = entry
		m.byItem[in.ItemID] = append(m.byItem[in.ItemID], entry)
		m.mu.Unlock()

		lot := entry.lot
		return &lot, nil
	}

	return nil, domain.GenerationExhausted(m.maxAttempts)
}

// Allocate reserves quantity from the item's lots, oldest first. Either the
// whole request is satisfied or no lot is mutated.
func (m *Memory) Allocate(ctx context.Context, itemID string, quantity int) ([]domain.LotAllocation, error) {
	if quantity <= 0 {
		return nil, domain.InvalidQuantity(quantity)
	}

	m.mu.RLock()
	candidates := make([]*memLot, len(m.byItem[itemID]))
	copy(candidates, m.byItem[itemID])
	m.mu.RUnlock()

	// Fixed global lock order: ascending lot code. Received timestamps and
	// codes are immutable, so sorting outside the lot locks is safe.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lot.LotCode < candidates[j].lot.LotCode
	})
	for _, c := range candidates {
		c.mu.Lock()
	}
	unlock := func() {
		for _, c := range candidates {
			c.mu.Unlock()
		}
	}

	total := 0
	for _, c := range candidates {
		total += c.lot.AvailableQuantity
	}
	if total < quantity {
		unlock()
		return nil, domain.InsufficientStock(itemID, quantity, total)
	}

	// Consumption order is FIFO by received_at, ties by lot code.
	fifo := make([]*memLot, len(candidates))
	copy(fifo, candidates)
	sort.Slice(fifo, func(i, j int) bool {
		if !fifo[i].lot.ReceivedAt.Equal(fifo[j].lot.ReceivedAt) {
			return fifo[i].lot.ReceivedAt.Before(fifo[j].lot.ReceivedAt)
		}
		return fifo[i].lot.LotCode < fifo[j].lot.LotCode
	})

	now := time.Now().UTC()
	remaining := quantity
	var allocs []domain.LotAllocation
	for _, c := range fifo {
		if remaining == 0 {
			break
		}
		if c.lot.AvailableQuantity == 0 {
			continue
		}
		take := c.lot.AvailableQuantity
		if take > remaining {
			take = remaining
		}
		c.lot.AvailableQuantity -= take
		c.lot.UpdatedAt = now
		remaining -= take
		allocs = append(allocs, domain.LotAllocation{
			LotCode:  c.lot.LotCode,
			ItemID:   itemID,
			Quantity: take,
		})
	}
	unlock()

	return allocs, nil
}

// Release returns quantity to a lot, capped at its received quantity
func (m *Memory) Release(ctx context.Context, lotCode string, quantity int) error {
	if quantity <= 0 {
		return domain.InvalidQuantity(quantity)
	}

	m.mu.RLock()
	entry, ok := m.lots[lotCode]
	m.mu.RUnlock()
	if !ok {
		return errors.NotFound("lot")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.lot.AvailableQuantity+quantity > entry.lot.ReceivedQuantity {
		return domain.OverRelease(lotCode, quantity, entry.lot.AvailableQuantity, entry.lot.ReceivedQuantity)
	}
	entry.lot.AvailableQuantity += quantity
	entry.lot.UpdatedAt = time.Now().UTC()
	return nil
}

// GetLot returns a snapshot of a lot by code
func (m *Memory) GetLot(ctx context.Context, lotCode string) (*domain.Lot, error) {
	m.mu.RLock()
	entry, ok := m.lots[lotCode]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("lot")
	}

	entry.mu.Lock()
	lot := entry.lot
	entry.mu.Unlock()
	return &lot, nil
}

// ListByItem returns snapshots of an item's lots, oldest received first
func (m *Memory) ListByItem(ctx context.Context, itemID string) ([]*domain.Lot, error) {
	m.mu.RLock()
	entries := make([]*memLot, len(m.byItem[itemID]))
	copy(entries, m.byItem[itemID])
	m.mu.RUnlock()

	lots := make([]*domain.Lot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		lot := e.lot
		e.mu.Unlock()
		lots = append(lots, &lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ReceivedAt.Equal(lots[j].ReceivedAt) {
			return lots[i].ReceivedAt.Before(lots[j].ReceivedAt)
		}
		return lots[i].LotCode < lots[j].LotCode
	})
	return lots, nil
}

// ListExpiring returns unexhausted lots expiring within the window, soonest first
func (m *Memory) ListExpiring(ctx context.Context, within time.Duration) ([]*domain.Lot, error) {
	cutoff := time.Now().UTC().Add(within)

	m.mu.RLock()
	entries := make([]*memLot, 0, len(m.lots))
	for _, e := range m.lots {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var lots []*domain.Lot
	for _, e := range entries {
		e.mu.Lock()
		lot := e.lot
		e.mu.Unlock()
		if lot.ExpiryAt == nil || lot.AvailableQuantity == 0 {
			continue
		}
		if lot.ExpiryAt.After(cutoff) {
			continue
		}
		lots = append(lots, &lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		return lots[i].ExpiryAt.Before(*lots[j].ExpiryAt)
	})
	return lots, nil
}

// Item registry

// CreateItem registers an item
func (m *Memory) CreateItem(ctx context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if _, exists := m.items[item.ID]; exists {
		return errors.Conflict("an item with this id already exists")
	}
	for _, existing := range m.items {
		if existing.GTIN == item.GTIN {
			return errors.Conflict("an item with this GTIN already exists")
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

// GetItem returns an item by id
func (m *Memory) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, errors.NotFound("item")
	}
	copied := *item
	return &copied, nil
}

// ListItems returns all items sorted by name
func (m *Memory) ListItems(ctx context.Context) ([]*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.Item, 0, len(m.items))
	for _, item := range m.items {
		copied := *item
		items = append(items, &copied)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Vendor registry

// CreateVendor registers a vendor
func (m *Memory) CreateVendor(ctx context.Context, vendor *domain.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vendor.ID == "" {
		vendor.ID = uuid.New().String()
	}
	if _, exists := m.vendors[vendor.ID]; exists {
		return errors.Conflict("a vendor with this id already exists")
	}
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = time.Now().UTC()
	}
	stored := *vendor
	m.vendors[vendor.ID] = &stored
	return nil
}

// GetVendor returns a vendor by id
func (m *Memory) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vendor, ok := m.vendors[id]
	if !ok {
		return nil, errors.NotFound("vendor")
	}
	copied := *vendor
	return &copied, nil
}

// Allocation journal

// RecordAllocations journals the lot allocations held by an order
func (m *Memory) RecordAllocations(ctx context.Context, orderID string, allocs []domain.LotAllocation) error {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range allocs {
		m.records = append(m.records, &domain.AllocationRecord{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			LotCode:   a.LotCode,
			ItemID:    a.ItemID,
			Quantity:  a.Quantity,
			CreatedAt: now,
		})
	}
	return nil
}

// LiveAllocations returns an order's unreleased allocation records
func (m *Memory) LiveAllocations(ctx context.Context, orderID string) ([]*domain.AllocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var live []*domain.AllocationRecord
	for _, r := range m.records {
		if r.OrderID == orderID && !r.Released {
			copied := *r
			live = append(live, &copied)
		}
	}
	return live, nil
}

// LiveAllocationsByLot returns a lot's unreleased allocation records
func (m *Memory) LiveAllocationsByLot(ctx context.Context, lotCode string) ([]*domain.AllocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var live []*domain.AllocationRecord
	for _, r := range m.records {
		if r.LotCode == lotCode && !r.Released {
			copied := *r
			live = append(live, &copied)
		}
	}
	return live, nil
}

// MarkReleased flags journal records as released
func (m *Memory) MarkReleased(ctx context.Context, recordIDs []string) error {
	now := time.Now().UTC()
	ids := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		ids[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.records {
		if ids[r.ID] && !r.Released {
			r.Released = true
			released := now
			r.ReleasedAt = &released
		}
	}
	return nil
}
