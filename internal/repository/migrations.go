// Package repository provides the PostgreSQL-backed stores for zones,
// raids, inventories, listings and transactions. Records are persisted as
// JSONB documents alongside the scalar columns the finder queries need.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate applies the database schema. Safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: zones
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			controlled_by TEXT NOT NULL DEFAULT '',
			rank INT NOT NULL DEFAULT 1,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_zones_controlled_by ON zones(controlled_by);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: zones table created")

	// Migration 2: raids. The partial unique index backstops the one
	// active raid per zone rule enforced in the orchestrator.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS raids (
			id TEXT PRIMARY KEY,
			zone_id TEXT NOT NULL,
			status TEXT NOT NULL,
			attacker_team TEXT NOT NULL DEFAULT '',
			defender_team TEXT NOT NULL DEFAULT '',
			start_at TIMESTAMPTZ NOT NULL,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_raids_zone ON raids(zone_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_raids_due ON raids(start_at) WHERE status = 'Scheduled';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_raids_one_active_per_zone
			ON raids(zone_id) WHERE status IN ('Scheduled', 'InProgress');
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: raids table created")

	// Migration 3: inventories
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inventories (
			owner_key TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: inventories table created")

	// Migration 4: listings
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			doc JSONB NOT NULL,
			listed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status, expires_at);
		CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: listings table created")

	// Migration 5: transactions
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			buyer_id TEXT NOT NULL DEFAULT '',
			seller_id TEXT NOT NULL DEFAULT '',
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: transactions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
