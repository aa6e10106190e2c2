package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/repository"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/freshtrace/freshtrace-backend/pkg/testutil"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The item and allocation tests below run against sqlmock, so they stay in
// the short suite and pin down the exact SQL the repositories issue.

func mockRepoDB(t *testing.T) (*testutil.MockDB, *database.DB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	return mockDB, database.Wrap(mockDB.DB, logger.New("test", "test"))
}

func TestItemRepository_CreateItem(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewItemRepository(db)

	createdAt := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO items").
		WithArgs(testutil.AnyUUID{}, "00012345678905", "Romaine Hearts").
		WillReturnRows(testutil.MockRows("created_at").AddRow(createdAt))

	item := &domain.Item{GTIN: "00012345678905", Name: "Romaine Hearts"}
	require.NoError(t, repo.CreateItem(context.Background(), item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, createdAt, item.CreatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_CreateItem_DuplicateGTIN(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewItemRepository(db)

	mockDB.ExpectQuery("INSERT INTO items").
		WithArgs(testutil.AnyUUID{}, "00012345678905", "Duplicate").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "items_gtin_key"})

	err := repo.CreateItem(context.Background(), &domain.Item{GTIN: "00012345678905", Name: "Duplicate"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "an item with this GTIN already exists", appErr.Message)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_GetItem_NotFound(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewItemRepository(db)

	mockDB.ExpectQuery("SELECT * FROM items WHERE id = $1").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("id", "gtin", "name", "created_at"))

	_, err := repo.GetItem(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_ListItems(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewItemRepository(db)

	now := time.Now().UTC()
	mockDB.ExpectQuery("SELECT * FROM items ORDER BY name").
		WillReturnRows(testutil.MockRows("id", "gtin", "name", "created_at").
			AddRow("id-1", "00012345678905", "Arugula", now).
			AddRow("id-2", "00123456789012", "Romaine Hearts", now))

	items, err := repo.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Arugula", items[0].Name)

	mockDB.ExpectationsWereMet(t)
}

func TestVendorRepository_GetVendor_NotFound(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewVendorRepository(db)

	mockDB.ExpectQuery("SELECT * FROM vendors WHERE id = $1").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("id", "name", "created_at"))

	_, err := repo.GetVendor(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_RecordAllocations(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewAllocationRepository(db)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO allocations").
		WithArgs(testutil.AnyUUID{}, "order-1", "FT-L1", "item-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO allocations").
		WithArgs(testutil.AnyUUID{}, "order-1", "FT-L2", "item-1", 15).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := repo.RecordAllocations(context.Background(), "order-1", []domain.LotAllocation{
		{LotCode: "FT-L1", ItemID: "item-1", Quantity: 10},
		{LotCode: "FT-L2", ItemID: "item-1", Quantity: 15},
	})
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestAllocationRepository_RecordAllocations_Empty(t *testing.T) {
	_, db := mockRepoDB(t)
	repo := repository.NewAllocationRepository(db)

	// No transaction, no statements.
	require.NoError(t, repo.RecordAllocations(context.Background(), "order-1", nil))
}

func TestAllocationRepository_MarkReleased(t *testing.T) {
	mockDB, db := mockRepoDB(t)
	repo := repository.NewAllocationRepository(db)

	mockDB.ExpectExec("UPDATE allocations").
		WithArgs(pq.Array([]string{"rec-1", "rec-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkReleased(context.Background(), []string{"rec-1", "rec-2"}))

	mockDB.ExpectationsWereMet(t)
}
