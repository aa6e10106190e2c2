package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Fixtures inserts reference rows the lot tables depend on
type Fixtures struct {
	db *sqlx.DB
}

// NewFixtures creates a fixture helper over a raw test connection
func NewFixtures(db *sqlx.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateItem inserts an item row and returns its id. Pass a unique GTIN per
// test; the gtin column carries a unique constraint.
func (f *Fixtures) CreateItem(t *testing.T, ctx context.Context, gtin, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO items (id, gtin, name) VALUES ($1, $2, $3)`, id, gtin, name)
	if err != nil {
		t.Fatalf("failed to insert item fixture: %v", err)
	}
	return id
}

// CreateVendor inserts a vendor row and returns its id
func (f *Fixtures) CreateVendor(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO vendors (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("failed to insert vendor fixture: %v", err)
	}
	return id
}
