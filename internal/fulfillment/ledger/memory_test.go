package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/lotcode"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory() *ledger.Memory {
	return ledger.NewMemory(lotcode.NewGenerator("FT", 6), 5)
}

func receiveLot(t *testing.T, store *ledger.Memory, itemID string, qty int, receivedAt time.Time) *domain.Lot {
	t.Helper()
	lot, err := store.Receive(context.Background(), ledger.ReceiveInput{
		ItemID:     itemID,
		VendorID:   "V1",
		Quantity:   qty,
		ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	return lot
}

func TestReceive_CreatesLotWithFullAvailability(t *testing.T) {
	store := newMemory()
	receivedAt := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)

	lot := receiveLot(t, store, "item-1", 100, receivedAt)

	assert.NotEmpty(t, lot.LotCode)
	assert.Equal(t, 100, lot.ReceivedQuantity)
	assert.Equal(t, 100, lot.AvailableQuantity)
	assert.Equal(t, receivedAt, lot.ReceivedAt)

	fetched, err := store.GetLot(context.Background(), lot.LotCode)
	require.NoError(t, err)
	assert.Equal(t, lot.LotCode, fetched.LotCode)
}

func TestReceive_RejectsNonPositiveQuantity(t *testing.T) {
	store := newMemory()

	for _, qty := range []int{0, -5} {
		_, err := store.Receive(context.Background(), ledger.ReceiveInput{
			ItemID:     "item-1",
			VendorID:   "V1",
			Quantity:   qty,
			ReceivedAt: time.Now(),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidQuantity), "quantity %d should be rejected", qty)
	}
}

// collidingGenerator returns a fixed code for the first n calls, then unique codes.
type collidingGenerator struct {
	fixed string
	n     int
	calls int
}

func (g *collidingGenerator) NewLotCode(now time.Time) string {
	g.calls++
	if g.calls <= g.n {
		return g.fixed
	}
	return fmt.Sprintf("%s-%d", g.fixed, g.calls)
}

func TestReceive_RetriesOnCollision(t *testing.T) {
	gen := &collidingGenerator{fixed: "FT202501050800AAAA", n: 3}
	store := ledger.NewMemory(gen, 5)
	receivedAt := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)

	first := receiveLot(t, store, "item-1", 10, receivedAt)
	assert.Equal(t, "FT202501050800AAAA", first.LotCode)

	// The next receive collides twice (calls 2 and 3) before drawing a
	// unique code on the third attempt.
	second := receiveLot(t, store, "item-1", 10, receivedAt)
	assert.NotEqual(t, first.LotCode, second.LotCode)
}

func TestReceive_GenerationExhaustedAfterBoundedRetries(t *testing.T) {
	gen := &collidingGenerator{fixed: "FT202501050800AAAA", n: 100}
	store := ledger.NewMemory(gen, 3)
	receivedAt := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)

	receiveLot(t, store, "item-1", 10, receivedAt)

	_, err := store.Receive(context.Background(), ledger.ReceiveInput{
		ItemID:     "item-1",
		VendorID:   "V1",
		Quantity:   10,
		ReceivedAt: receivedAt,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGenerationExhausted))
}

func TestAllocate_SingleLot(t *testing.T) {
	// Scenario: receive 100, allocate 30, 70 remain.
	store := newMemory()
	lot := receiveLot(t, store, "item-1", 100, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	allocs, err := store.Allocate(context.Background(), "item-1", 30)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, lot.LotCode, allocs[0].LotCode)
	assert.Equal(t, 30, allocs[0].Quantity)

	after, err := store.GetLot(context.Background(), lot.LotCode)
	require.NoError(t, err)
	assert.Equal(t, 70, after.AvailableQuantity)
	assert.Equal(t, 100, after.ReceivedQuantity)
}

func TestAllocate_SpansLotsFIFO(t *testing.T) {
	// Two lots: 10 units received Jan 1, 50 units received Jan 3.
	// Allocating 25 drains the older lot and takes 15 from the newer.
	store := newMemory()
	l1 := receiveLot(t, store, "item-1", 10, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l2 := receiveLot(t, store, "item-1", 50, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))

	allocs, err := store.Allocate(context.Background(), "item-1", 25)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, l1.LotCode, allocs[0].LotCode)
	assert.Equal(t, 10, allocs[0].Quantity)
	assert.Equal(t, l2.LotCode, allocs[1].LotCode)
	assert.Equal(t, 15, allocs[1].Quantity)

	after1, _ := store.GetLot(context.Background(), l1.LotCode)
	after2, _ := store.GetLot(context.Background(), l2.LotCode)
	assert.Equal(t, 0, after1.AvailableQuantity)
	assert.True(t, after1.Exhausted())
	assert.Equal(t, 35, after2.AvailableQuantity)
}

func TestAllocate_PrefersOldestLot(t *testing.T) {
	store := newMemory()
	l1 := receiveLot(t, store, "item-1", 40, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l2 := receiveLot(t, store, "item-1", 40, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))

	// Request fits entirely in the older lot.
	allocs, err := store.Allocate(context.Background(), "item-1", 25)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, l1.LotCode, allocs[0].LotCode)

	after2, _ := store.GetLot(context.Background(), l2.LotCode)
	assert.Equal(t, 40, after2.AvailableQuantity, "newer lot must be untouched")
}

func TestAllocate_InsufficientStockMutatesNothing(t *testing.T) {
	store := newMemory()
	l1 := receiveLot(t, store, "item-1", 10, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l2 := receiveLot(t, store, "item-1", 50, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))

	_, err := store.Allocate(context.Background(), "item-1", 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Equal(t, "item-1", appErr.Details["item_id"])

	after1, _ := store.GetLot(context.Background(), l1.LotCode)
	after2, _ := store.GetLot(context.Background(), l2.LotCode)
	assert.Equal(t, 10, after1.AvailableQuantity)
	assert.Equal(t, 50, after2.AvailableQuantity)
}

func TestAllocate_UnknownItemIsInsufficient(t *testing.T) {
	store := newMemory()

	_, err := store.Allocate(context.Background(), "no-such-item", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
}

func TestRelease_RestoresAvailability(t *testing.T) {
	store := newMemory()
	lot := receiveLot(t, store, "item-1", 100, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	_, err := store.Allocate(context.Background(), "item-1", 30)
	require.NoError(t, err)

	require.NoError(t, store.Release(context.Background(), lot.LotCode, 30))

	after, _ := store.GetLot(context.Background(), lot.LotCode)
	assert.Equal(t, 100, after.AvailableQuantity)
}

func TestRelease_OverReleaseFails(t *testing.T) {
	store := newMemory()
	lot := receiveLot(t, store, "item-1", 100, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	_, err := store.Allocate(context.Background(), "item-1", 30)
	require.NoError(t, err)

	err = store.Release(context.Background(), lot.LotCode, 31)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOverRelease))

	// Lot is unchanged after the failed release.
	after, _ := store.GetLot(context.Background(), lot.LotCode)
	assert.Equal(t, 70, after.AvailableQuantity)
}

func TestRelease_UnknownLot(t *testing.T) {
	store := newMemory()
	err := store.Release(context.Background(), "FT000000000000XXXX", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListByItem_OrderedByReceivedAt(t *testing.T) {
	store := newMemory()
	l2 := receiveLot(t, store, "item-1", 5, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	l1 := receiveLot(t, store, "item-1", 5, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	receiveLot(t, store, "item-2", 5, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	lots, err := store.ListByItem(context.Background(), "item-1")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, l1.LotCode, lots[0].LotCode)
	assert.Equal(t, l2.LotCode, lots[1].LotCode)
}

func TestListExpiring(t *testing.T) {
	store := newMemory()
	soon := time.Now().UTC().Add(10 * 24 * time.Hour)
	far := time.Now().UTC().Add(200 * 24 * time.Hour)

	_, err := store.Receive(context.Background(), ledger.ReceiveInput{
		ItemID: "item-1", VendorID: "V1", Quantity: 5,
		ReceivedAt: time.Now().UTC(), ExpiryAt: &soon,
	})
	require.NoError(t, err)
	_, err = store.Receive(context.Background(), ledger.ReceiveInput{
		ItemID: "item-1", VendorID: "V1", Quantity: 5,
		ReceivedAt: time.Now().UTC(), ExpiryAt: &far,
	})
	require.NoError(t, err)
	receiveLot(t, store, "item-1", 5, time.Now().UTC()) // no expiry

	expiring, err := store.ListExpiring(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.Unix(), expiring[0].ExpiryAt.Unix())
}

func TestAllocate_ConcurrentNeverOversells(t *testing.T) {
	store := newMemory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		receiveLot(t, store, "item-1", 50, base.Add(time.Duration(i)*time.Hour))
	}
	// 400 units across 8 lots; 100 workers want 5 each = 500 requested.

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	insufficient := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allocs, err := store.Allocate(context.Background(), "item-1", 5)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					insufficient++
				}
				return
			}
			total := 0
			for _, a := range allocs {
				total += a.Quantity
			}
			granted += total
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, granted, "exactly the received quantity must be granted")
	assert.Equal(t, 20, insufficient)

	lots, err := store.ListByItem(context.Background(), "item-1")
	require.NoError(t, err)
	for _, lot := range lots {
		assert.GreaterOrEqual(t, lot.AvailableQuantity, 0)
		assert.LessOrEqual(t, lot.AvailableQuantity, lot.ReceivedQuantity)
		assert.Equal(t, 0, lot.AvailableQuantity, "all stock should be consumed")
	}
}

func TestAllocateRelease_ConcurrentInvariantHolds(t *testing.T) {
	store := newMemory()
	lot := receiveLot(t, store, "item-1", 100, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allocs, err := store.Allocate(context.Background(), "item-1", 2)
			if err != nil {
				return
			}
			for _, a := range allocs {
				// Immediately hand the stock back, as a cancellation would.
				_ = store.Release(context.Background(), a.LotCode, a.Quantity)
			}
		}()
	}
	wg.Wait()

	after, err := store.GetLot(context.Background(), lot.LotCode)
	require.NoError(t, err)
	assert.Equal(t, 100, after.AvailableQuantity)
	assert.Equal(t, 100, after.ReceivedQuantity)
}

func TestJournal_ConservationAcrossOrders(t *testing.T) {
	store := newMemory()
	lot := receiveLot(t, store, "item-1", 100, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	a1, err := store.Allocate(ctx, "item-1", 30)
	require.NoError(t, err)
	require.NoError(t, store.RecordAllocations(ctx, "order-1", a1))

	a2, err := store.Allocate(ctx, "item-1", 20)
	require.NoError(t, err)
	require.NoError(t, store.RecordAllocations(ctx, "order-2", a2))

	// received - available == sum of live allocations against the lot
	after, _ := store.GetLot(ctx, lot.LotCode)
	live, err := store.LiveAllocationsByLot(ctx, lot.LotCode)
	require.NoError(t, err)

	sum := 0
	for _, r := range live {
		sum += r.Quantity
	}
	assert.Equal(t, after.ReceivedQuantity-after.AvailableQuantity, sum)

	// Releasing order-1 restores conservation with one fewer record.
	records, err := store.LiveAllocations(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, store.Release(ctx, records[0].LotCode, records[0].Quantity))
	require.NoError(t, store.MarkReleased(ctx, []string{records[0].ID}))

	after, _ = store.GetLot(ctx, lot.LotCode)
	live, _ = store.LiveAllocationsByLot(ctx, lot.LotCode)
	sum = 0
	for _, r := range live {
		sum += r.Quantity
	}
	assert.Equal(t, after.ReceivedQuantity-after.AvailableQuantity, sum)
	assert.Equal(t, 80, after.AvailableQuantity)
}

func TestItemRegistry(t *testing.T) {
	store := newMemory()
	ctx := context.Background()

	item := &domain.Item{GTIN: "00012345678905", Name: "Romaine Hearts"}
	require.NoError(t, store.CreateItem(ctx, item))
	require.NotEmpty(t, item.ID)

	fetched, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Romaine Hearts", fetched.Name)

	dup := &domain.Item{GTIN: "00012345678905", Name: "Duplicate"}
	err = store.CreateItem(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	_, err = store.GetItem(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestVendorRegistry(t *testing.T) {
	store := newMemory()
	ctx := context.Background()

	vendor := &domain.Vendor{Name: "Valley Farms"}
	require.NoError(t, store.CreateVendor(ctx, vendor))
	require.NotEmpty(t, vendor.ID)

	fetched, err := store.GetVendor(ctx, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Valley Farms", fetched.Name)

	_, err = store.GetVendor(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
