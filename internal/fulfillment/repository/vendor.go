package repository

import (
	"context"
	"database/sql"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/google/uuid"
)

// VendorRepository handles vendor persistence
type VendorRepository struct {
	db *database.DB
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *database.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

// CreateVendor creates a new vendor
func (r *VendorRepository) CreateVendor(ctx context.Context, vendor *domain.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = uuid.New().String()
	}

	query := `
		INSERT INTO vendors (id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query, vendor.ID, vendor.Name).Scan(&vendor.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetVendor gets a vendor by ID
func (r *VendorRepository) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var vendor domain.Vendor
	query := `SELECT * FROM vendors WHERE id = $1`
	if err := r.db.GetContext(ctx, &vendor, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vendor")
		}
		return nil, err
	}
	return &vendor, nil
}
