package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

// RaidRepository handles raid persistence. Raids are historical records and
// are never deleted.
type RaidRepository struct {
	pool *pgxpool.Pool
}

// NewRaidRepository creates a new RaidRepository instance.
func NewRaidRepository(pool *pgxpool.Pool) *RaidRepository {
	return &RaidRepository{pool: pool}
}

// Create inserts a new raid. A unique-violation on the active-per-zone
// index surfaces as a Conflict, which backstops the orchestrator's check
// under concurrent creation.
func (r *RaidRepository) Create(ctx context.Context, raid *model.Raid) error {
	doc, err := json.Marshal(raid)
	if err != nil {
		return fmt.Errorf("failed to marshal raid: %w", err)
	}

	const query = `
		INSERT INTO raids (id, zone_id, status, attacker_team, defender_team, start_at, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		raid.ID, raid.ZoneID, string(raid.Status),
		raid.Attacker.TeamID, raid.Defender.TeamID,
		raid.Schedule.Start, doc, raid.CreatedAt, raid.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("zone %s already has an active raid", raid.ZoneID)
		}
		return apperr.StoreUnavailable(err, "failed to create raid %s", raid.ID)
	}
	return nil
}

// Get retrieves a raid by id.
func (r *RaidRepository) Get(ctx context.Context, id string) (*model.Raid, error) {
	const query = `SELECT doc FROM raids WHERE id = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("raid %s not found", id)
		}
		return nil, apperr.StoreUnavailable(err, "failed to get raid %s", id)
	}

	var raid model.Raid
	if err := json.Unmarshal(doc, &raid); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raid %s: %w", id, err)
	}
	return &raid, nil
}

// Update replaces a raid record.
func (r *RaidRepository) Update(ctx context.Context, raid *model.Raid) error {
	doc, err := json.Marshal(raid)
	if err != nil {
		return fmt.Errorf("failed to marshal raid: %w", err)
	}

	const query = `
		UPDATE raids
		SET status = $2, attacker_team = $3, defender_team = $4, doc = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		raid.ID, string(raid.Status),
		raid.Attacker.TeamID, raid.Defender.TeamID,
		doc, raid.UpdatedAt,
	)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to update raid %s", raid.ID)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("raid %s not found", raid.ID)
	}
	return nil
}

// ActiveByZone returns the zone's Scheduled or InProgress raid, or
// (nil, nil) when the zone has none.
func (r *RaidRepository) ActiveByZone(ctx context.Context, zoneID string) (*model.Raid, error) {
	const query = `
		SELECT doc FROM raids
		WHERE zone_id = $1 AND status IN ('Scheduled', 'InProgress')
	`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, zoneID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.StoreUnavailable(err, "failed to find active raid for zone %s", zoneID)
	}

	var raid model.Raid
	if err := json.Unmarshal(doc, &raid); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raid: %w", err)
	}
	return &raid, nil
}

// DueForStart returns Scheduled raids whose start time has arrived,
// earliest first.
func (r *RaidRepository) DueForStart(ctx context.Context, now time.Time, limit int) ([]*model.Raid, error) {
	const query = `
		SELECT doc FROM raids
		WHERE status = 'Scheduled' AND start_at <= $1
		ORDER BY start_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list due raids")
	}
	defer rows.Close()

	var raids []*model.Raid
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan raid: %w", err)
		}
		var raid model.Raid
		if err := json.Unmarshal(doc, &raid); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raid: %w", err)
		}
		raids = append(raids, &raid)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating raids")
	}
	return raids, nil
}

// ListByTeam retrieves raids where the team attacked or defended, newest
// first.
func (r *RaidRepository) ListByTeam(ctx context.Context, teamID string, limit int) ([]*model.Raid, error) {
	const query = `
		SELECT doc FROM raids
		WHERE attacker_team = $1 OR defender_team = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list raids for team %s", teamID)
	}
	defer rows.Close()

	var raids []*model.Raid
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan raid: %w", err)
		}
		var raid model.Raid
		if err := json.Unmarshal(doc, &raid); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raid: %w", err)
		}
		raids = append(raids, &raid)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating raids")
	}
	return raids, nil
}
