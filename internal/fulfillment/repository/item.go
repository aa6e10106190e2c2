// Package repository provides the Postgres-backed implementation of the
// fulfillment store interfaces.
package repository

import (
	"context"
	"database/sql"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/pkg/database"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/google/uuid"
)

// ItemRepository handles item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// CreateItem creates a new item. The unique index on gtin rejects duplicates.
func (r *ItemRepository) CreateItem(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO items (id, gtin, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query, item.ID, item.GTIN, item.Name).Scan(&item.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetItem gets an item by ID
func (r *ItemRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT * FROM items WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// ListItems lists all items sorted by name
func (r *ItemRepository) ListItems(ctx context.Context) ([]*domain.Item, error) {
	var items []*domain.Item
	query := `SELECT * FROM items ORDER BY name`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}
