package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

// InventoryRepository handles resource inventory persistence. Inventories
// are keyed by the composite owner key and created lazily on first credit.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository creates a new InventoryRepository instance.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Get retrieves an owner's inventory. Returns NotFound if the owner has
// never been credited.
func (r *InventoryRepository) Get(ctx context.Context, owner model.Owner) (*model.Inventory, error) {
	const query = `SELECT doc FROM inventories WHERE owner_key = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, owner.Key()).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("inventory for %s not found", owner.Key())
		}
		return nil, apperr.StoreUnavailable(err, "failed to get inventory for %s", owner.Key())
	}

	var inv model.Inventory
	if err := json.Unmarshal(doc, &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory for %s: %w", owner.Key(), err)
	}
	return &inv, nil
}

// Upsert writes an inventory, creating the row on first use.
func (r *InventoryRepository) Upsert(ctx context.Context, inv *model.Inventory) error {
	doc, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}

	const query = `
		INSERT INTO inventories (owner_key, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key)
		DO UPDATE SET doc = $2, updated_at = $3
	`
	_, err = r.pool.Exec(ctx, query, inv.Owner.Key(), doc, inv.UpdatedAt)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to upsert inventory for %s", inv.Owner.Key())
	}
	return nil
}
