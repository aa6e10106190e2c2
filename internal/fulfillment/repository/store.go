package repository

import (
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/ledger"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
)

// Store combines the Postgres repositories into the full fulfillment store
type Store struct {
	*LotRepository
	*ItemRepository
	*VendorRepository
	*AllocationRepository
}

var _ ledger.Store = (*Store)(nil)

// NewStore wires all repositories over one database connection
func NewStore(db *database.DB, gen ledger.CodeGenerator, maxAttempts int) *Store {
	return &Store{
		LotRepository:        NewLotRepository(db, gen, maxAttempts),
		ItemRepository:       NewItemRepository(db),
		VendorRepository:     NewVendorRepository(db),
		AllocationRepository: NewAllocationRepository(db),
	}
}
