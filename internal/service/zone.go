package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"territory-engine/internal/event"
	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

// rankRequirements is the advisory access table for zone ranks 1-4.
var rankRequirements = map[int]model.RankRequirement{
	1: {MinTeamMembers: 3, MinTeamLevel: 1, MinResources: 100, MinPowerLevel: 10},
	2: {MinTeamMembers: 5, MinTeamLevel: 5, MinResources: 500, MinPowerLevel: 50},
	3: {MinTeamMembers: 8, MinTeamLevel: 10, MinResources: 2000, MinPowerLevel: 100},
	4: {MinTeamMembers: 12, MinTeamLevel: 20, MinResources: 10000, MinPowerLevel: 250},
}

// CreateZoneParams is the input for ZoneRegistry.Create. Name and Type are
// required; every other field has a documented default.
type CreateZoneParams struct {
	ID        string
	Name      string
	Type      model.ZoneType
	Sector    *model.Sector
	Geometry  *model.Geometry
	Rank      int
	Capacity  int
	Amenities []string
	Resources []model.ZoneResource
}

// ZoneRegistry owns zone records and the ownership-transfer invariants.
type ZoneRegistry struct {
	zones ZoneStore
	feed  *event.Feed
}

// NewZoneRegistry creates a new ZoneRegistry instance.
func NewZoneRegistry(zones ZoneStore, feed *event.Feed) *ZoneRegistry {
	return &ZoneRegistry{zones: zones, feed: feed}
}

// Create registers a new zone. Fails with a validation error if name or
// type is missing. Defaults: unclaimed ownership, empty resource list,
// rank 1, a 1x1 sector and geometry.
func (s *ZoneRegistry) Create(ctx context.Context, p CreateZoneParams) (*model.Zone, error) {
	if p.Name == "" {
		return nil, apperr.Validation("zone name is required")
	}
	if p.Type == "" {
		return nil, apperr.Validation("zone type is required")
	}
	if !model.ValidZoneType(p.Type) {
		return nil, apperr.Validation("unknown zone type %q", p.Type)
	}

	now := time.Now()
	zone := &model.Zone{
		ID:   p.ID,
		Name: p.Name,
		Type: p.Type,
		Sector: model.Sector{
			ID:   "sector-1",
			Name: "Sector 1",
			Type: string(p.Type),
		},
		Geometry: model.Geometry{
			Shape:  "rectangle",
			Width:  1,
			Height: 1,
		},
		Rank:      1,
		Ownership: model.Ownership{PreviousOwners: []string{}},
		Capacity:  p.Capacity,
		Amenities: p.Amenities,
		Resources: []model.ZoneResource{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if zone.ID == "" {
		zone.ID = uuid.NewString()
	}
	if p.Sector != nil {
		zone.Sector = *p.Sector
	}
	if p.Geometry != nil {
		zone.Geometry = *p.Geometry
	}
	if p.Rank >= 1 && p.Rank <= 4 {
		zone.Rank = p.Rank
	}
	if len(p.Resources) > 0 {
		zone.Resources = p.Resources
	}

	if err := s.zones.Create(ctx, zone); err != nil {
		return nil, err
	}

	log.Info().
		Str("zone_id", zone.ID).
		Str("name", zone.Name).
		Str("type", string(zone.Type)).
		Int("rank", zone.Rank).
		Msg("Zone created")

	return zone, nil
}

// Get retrieves a zone by id.
func (s *ZoneRegistry) Get(ctx context.Context, zoneID string) (*model.Zone, error) {
	return s.zones.Get(ctx, zoneID)
}

// UpdateOwnership transfers control of a zone to newTeamID. If a different
// non-empty owner existed it is appended to PreviousOwners;
// ControlledSince is reset either way. Re-applying the current owner is a
// no-op on the history, which keeps retried conquest settlements safe.
func (s *ZoneRegistry) UpdateOwnership(ctx context.Context, zoneID, newTeamID string) (*model.Zone, error) {
	if newTeamID == "" {
		return nil, apperr.Validation("new owner team id is required")
	}

	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	prev := zone.Ownership.ControlledBy
	if prev != "" && prev != newTeamID {
		zone.Ownership.PreviousOwners = append(zone.Ownership.PreviousOwners, prev)
	}
	now := time.Now()
	zone.Ownership.ControlledBy = newTeamID
	zone.Ownership.ControlledSince = now
	zone.Stats.RecordEvent(now, "control passed to team "+newTeamID)
	zone.UpdatedAt = now

	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, err
	}

	log.Info().
		Str("zone_id", zoneID).
		Str("previous_owner", prev).
		Str("new_owner", newTeamID).
		Msg("Zone ownership transferred")

	s.feed.Publish(event.Event{
		Type: event.TypeOwnershipChanged,
		Payload: event.OwnershipChange{
			ZoneID:        zoneID,
			PreviousOwner: prev,
			NewOwner:      newTeamID,
		},
	})

	return zone, nil
}

// AddResources merges per-type deltas into the zone's resource list,
// creating entries for unseen types and stamping LastUpdated. Deltas are
// additive only; a negative delta is a validation error.
func (s *ZoneRegistry) AddResources(ctx context.Context, zoneID string, deltas map[string]int64) (*model.Zone, error) {
	for typ, qty := range deltas {
		if qty < 0 {
			return nil, apperr.Validation("resource delta for %s must not be negative", typ)
		}
	}

	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for typ, qty := range deltas {
		found := false
		for i := range zone.Resources {
			if zone.Resources[i].Type == typ {
				zone.Resources[i].Quantity += qty
				zone.Resources[i].LastUpdated = now
				found = true
				break
			}
		}
		if !found {
			zone.Resources = append(zone.Resources, model.ZoneResource{
				Type:        typ,
				Quantity:    qty,
				LastUpdated: now,
			})
		}
	}
	zone.UpdatedAt = now

	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, err
	}
	return zone, nil
}

// RecordActivity adjusts the zone's current-user count by delta, flooring
// at zero, and bumps the popular-time histogram on arrivals.
func (s *ZoneRegistry) RecordActivity(ctx context.Context, zoneID string, delta int) (*model.Zone, error) {
	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	zone.Stats.CurrentUsers += delta
	if zone.Stats.CurrentUsers < 0 {
		zone.Stats.CurrentUsers = 0
	}
	if delta > 0 {
		if zone.Stats.PopularTimes == nil {
			zone.Stats.PopularTimes = make(map[int]int)
		}
		zone.Stats.PopularTimes[now.Hour()] += delta
	}
	zone.UpdatedAt = now

	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, err
	}
	return zone, nil
}

// RankRequirements returns the advisory access table for a rank, falling
// back to rank 1 for out-of-range input. The registry does not gate any
// operation on this table; callers decide whether to enforce it.
func (s *ZoneRegistry) RankRequirements(rank int) model.RankRequirement {
	if req, ok := rankRequirements[rank]; ok {
		return req
	}
	return rankRequirements[1]
}
