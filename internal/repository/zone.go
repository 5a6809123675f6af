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

// ZoneRepository handles zone persistence.
type ZoneRepository struct {
	pool *pgxpool.Pool
}

// NewZoneRepository creates a new ZoneRepository instance.
func NewZoneRepository(pool *pgxpool.Pool) *ZoneRepository {
	return &ZoneRepository{pool: pool}
}

// Create inserts a new zone.
func (r *ZoneRepository) Create(ctx context.Context, zone *model.Zone) error {
	doc, err := json.Marshal(zone)
	if err != nil {
		return fmt.Errorf("failed to marshal zone: %w", err)
	}

	const query = `
		INSERT INTO zones (id, controlled_by, rank, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		zone.ID, zone.Ownership.ControlledBy, zone.Rank, doc,
		zone.CreatedAt, zone.UpdatedAt,
	)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to create zone %s", zone.ID)
	}
	return nil
}

// Get retrieves a zone by id.
func (r *ZoneRepository) Get(ctx context.Context, id string) (*model.Zone, error) {
	const query = `SELECT doc FROM zones WHERE id = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("zone %s not found", id)
		}
		return nil, apperr.StoreUnavailable(err, "failed to get zone %s", id)
	}

	var zone model.Zone
	if err := json.Unmarshal(doc, &zone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zone %s: %w", id, err)
	}
	return &zone, nil
}

// Update replaces a zone record, keeping the indexed columns in sync.
func (r *ZoneRepository) Update(ctx context.Context, zone *model.Zone) error {
	doc, err := json.Marshal(zone)
	if err != nil {
		return fmt.Errorf("failed to marshal zone: %w", err)
	}

	const query = `
		UPDATE zones
		SET controlled_by = $2, rank = $3, doc = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		zone.ID, zone.Ownership.ControlledBy, zone.Rank, doc, zone.UpdatedAt,
	)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to update zone %s", zone.ID)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("zone %s not found", zone.ID)
	}
	return nil
}

// ListByController retrieves all zones controlled by a team.
func (r *ZoneRepository) ListByController(ctx context.Context, teamID string) ([]*model.Zone, error) {
	const query = `SELECT doc FROM zones WHERE controlled_by = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list zones for team %s", teamID)
	}
	defer rows.Close()

	var zones []*model.Zone
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		var zone model.Zone
		if err := json.Unmarshal(doc, &zone); err != nil {
			return nil, fmt.Errorf("failed to unmarshal zone: %w", err)
		}
		zones = append(zones, &zone)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating zones")
	}
	return zones, nil
}
