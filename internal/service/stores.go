// Package service implements the territory engine's core components: the
// zone registry, the resource ledger, the raid orchestrator and the market
// exchange. Services are constructed with explicit dependencies; none hold
// global state.
package service

import (
	"context"
	"time"

	"territory-engine/internal/model"
)

// Store collaborators. The repository package provides the PostgreSQL
// implementations; tests substitute in-memory fakes.

// ZoneStore persists zones.
type ZoneStore interface {
	Create(ctx context.Context, zone *model.Zone) error
	Get(ctx context.Context, id string) (*model.Zone, error)
	Update(ctx context.Context, zone *model.Zone) error
}

// RaidStore persists raids. ActiveByZone returns (nil, nil) when the zone
// has no Scheduled or InProgress raid.
type RaidStore interface {
	Create(ctx context.Context, raid *model.Raid) error
	Get(ctx context.Context, id string) (*model.Raid, error)
	Update(ctx context.Context, raid *model.Raid) error
	ActiveByZone(ctx context.Context, zoneID string) (*model.Raid, error)
	DueForStart(ctx context.Context, now time.Time, limit int) ([]*model.Raid, error)
}

// InventoryStore persists resource inventories keyed by owner.
type InventoryStore interface {
	Get(ctx context.Context, owner model.Owner) (*model.Inventory, error)
	Upsert(ctx context.Context, inv *model.Inventory) error
}

// ListingStore persists market listings.
type ListingStore interface {
	Create(ctx context.Context, listing *model.Listing) error
	Get(ctx context.Context, id string) (*model.Listing, error)
	Update(ctx context.Context, listing *model.Listing) error
	ListByStatus(ctx context.Context, status model.ListingStatus, limit int) ([]*model.Listing, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	Update(ctx context.Context, tx *model.Transaction) error
}
