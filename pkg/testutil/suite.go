package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
)

var (
	// Global test container shared across all integration tests
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// FulfillmentMigrations is the schema the repositories run against. The CHECK
// constraints mirror the quantity invariants the ledger enforces in code, so
// a bug that slips past the Go layer still cannot corrupt stored quantities.
var FulfillmentMigrations = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		gtin TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT items_gtin_key UNIQUE (gtin)
	)`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS lots (
		lot_code TEXT PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id),
		vendor_id UUID NOT NULL REFERENCES vendors(id),
		received_quantity INTEGER NOT NULL,
		available_quantity INTEGER NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		expiry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT lots_received_quantity_positive CHECK (received_quantity > 0),
		CONSTRAINT lots_available_within_received CHECK (available_quantity >= 0 AND available_quantity <= received_quantity)
	)`,
	`CREATE INDEX IF NOT EXISTS lots_item_available_idx ON lots (item_id) WHERE available_quantity > 0`,
	`CREATE TABLE IF NOT EXISTS allocations (
		id UUID PRIMARY KEY,
		order_id TEXT NOT NULL,
		lot_code TEXT NOT NULL REFERENCES lots(lot_code),
		item_id UUID NOT NULL REFERENCES items(id),
		quantity INTEGER NOT NULL,
		released BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		released_at TIMESTAMPTZ,
		CONSTRAINT allocations_quantity_positive CHECK (quantity > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS allocations_order_idx ON allocations (order_id) WHERE released = FALSE`,
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite creates the shared test infrastructure and applies the
// fulfillment schema. Call from TestMain; tests isolate themselves through
// distinct item and vendor rows rather than separate schemas.
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	for _, migration := range FulfillmentMigrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return nil, fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Cleanup releases suite resources. The shared container is terminated once.
func (s *IntegrationSuite) Cleanup(ctx context.Context) {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.RawDB != nil {
		s.RawDB.Close()
	}
	if s.Container != nil {
		s.Container.Terminate(ctx)
	}
}

// TruncateAll wipes all fulfillment tables between tests that need a clean slate
func (s *IntegrationSuite) TruncateAll(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := s.RawDB.ExecContext(ctx, `TRUNCATE allocations, lots, items, vendors CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
