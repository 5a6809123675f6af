package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"territory-engine/internal/config"
	"territory-engine/internal/event"
	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

// CreateRaidParams is the input for RaidService.Create.
type CreateRaidParams struct {
	Type           model.RaidType
	AttackerTeamID string
	ZoneID         string
	ParticipantIDs []string
	StartTime      time.Time
}

// CreateRaidResult is the outcome of raid creation. FreeClaim is true when
// a Conquest raid against an unclaimed zone short-circuited into an
// immediate ownership transfer: no raid record exists and Zone carries the
// updated zone instead.
type CreateRaidResult struct {
	Raid      *model.Raid
	FreeClaim bool
	Zone      *model.Zone
}

// RaidService drives the raid state machine and applies conquest outcomes
// to the zone registry. It computes and stores each raid's reward schedule
// but never mints currency; payout is the caller's explicit step through
// the market's reward-transaction path.
type RaidService struct {
	raids RaidStore
	zones *ZoneRegistry
	feed  *event.Feed
	cfg   config.RaidConfig
}

// NewRaidService creates a new RaidService instance.
func NewRaidService(raids RaidStore, zones *ZoneRegistry, feed *event.Feed, cfg config.RaidConfig) *RaidService {
	return &RaidService{raids: raids, zones: zones, feed: feed, cfg: cfg}
}

// Get retrieves a raid by id.
func (s *RaidService) Get(ctx context.Context, raidID string) (*model.Raid, error) {
	return s.raids.Get(ctx, raidID)
}

// ActiveByZone returns the zone's Scheduled or InProgress raid, or
// (nil, nil) when there is none.
func (s *RaidService) ActiveByZone(ctx context.Context, zoneID string) (*model.Raid, error) {
	return s.raids.ActiveByZone(ctx, zoneID)
}

// Create initiates a raid against a zone. A Conquest raid against an
// unclaimed zone takes the free-claim path: ownership transfers
// immediately and no raid record is produced. At most one raid may be
// Scheduled or InProgress per zone; a second creation is a conflict.
func (s *RaidService) Create(ctx context.Context, p CreateRaidParams) (*CreateRaidResult, error) {
	if !model.ValidRaidType(p.Type) {
		return nil, apperr.Validation("unknown raid type %q", p.Type)
	}
	if p.AttackerTeamID == "" {
		return nil, apperr.Validation("attacker team id is required")
	}
	if p.ZoneID == "" {
		return nil, apperr.Validation("target zone id is required")
	}
	if p.StartTime.IsZero() {
		return nil, apperr.Validation("raid start time is required")
	}

	zone, err := s.zones.Get(ctx, p.ZoneID)
	if err != nil {
		return nil, err
	}

	if active, err := s.raids.ActiveByZone(ctx, p.ZoneID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, apperr.Conflict("zone %s already has an active raid %s", p.ZoneID, active.ID)
	}

	if p.Type == model.RaidConquest && zone.Unclaimed() {
		return s.freeClaim(ctx, zone, p.AttackerTeamID)
	}

	now := time.Now()
	attackers := make([]model.RaidMember, 0, len(p.ParticipantIDs))
	for _, userID := range p.ParticipantIDs {
		attackers = append(attackers, model.RaidMember{
			UserID:   userID,
			TeamID:   p.AttackerTeamID,
			Role:     model.RoleAttacker,
			JoinTime: now,
		})
	}

	raid := &model.Raid{
		ID:                   uuid.NewString(),
		Type:                 p.Type,
		Status:               model.RaidScheduled,
		ZoneID:               zone.ID,
		ControllerAtCreation: zone.Ownership.ControlledBy,
		Attacker: model.RaidParty{
			TeamID:  p.AttackerTeamID,
			Members: attackers,
		},
		Defender: model.RaidParty{
			TeamID:       zone.Ownership.ControlledBy,
			Members:      []model.RaidMember{},
			DefenseBonus: zone.Rank * 5,
		},
		Schedule: model.RaidSchedule{
			Announced:         now,
			PreparationStart:  p.StartTime.Add(-s.cfg.PreparationLead),
			Start:             p.StartTime,
			EstimatedDuration: s.cfg.DefaultDurationMinutes,
		},
		Mechanics: mechanicsFor(p.Type),
		Rewards: model.RewardSchedule{
			Winner: model.RewardTier{
				XP:    s.cfg.WinnerXPPerRank * int64(zone.Rank),
				Coins: s.cfg.WinnerCoinsPerRank * int64(zone.Rank),
			},
			WinnerZoneControl: p.Type == model.RaidConquest,
			Participation: model.RewardTier{
				XP:    s.cfg.ParticipationXPPerRank * int64(zone.Rank),
				Coins: s.cfg.ParticipationCoinsPerRank * int64(zone.Rank),
			},
		},
		Feed:      []model.FeedEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.appendFeed(raid, model.FeedRaidScheduled, fmt.Sprintf(
		"%s raid on zone %s scheduled for %s by team %s",
		raid.Type, zone.ID, p.StartTime.Format(time.RFC3339), p.AttackerTeamID,
	))

	if err := s.raids.Create(ctx, raid); err != nil {
		return nil, err
	}

	log.Info().
		Str("raid_id", raid.ID).
		Str("zone_id", zone.ID).
		Str("type", string(raid.Type)).
		Str("attacker", p.AttackerTeamID).
		Str("defender", raid.Defender.TeamID).
		Msg("Raid scheduled")

	return &CreateRaidResult{Raid: raid}, nil
}

// freeClaim is the named short-circuit for Conquest against an unclaimed
// zone: immediate ownership transfer, no raid record.
func (s *RaidService) freeClaim(ctx context.Context, zone *model.Zone, teamID string) (*CreateRaidResult, error) {
	updated, err := s.zones.UpdateOwnership(ctx, zone.ID, teamID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("zone_id", zone.ID).
		Str("team_id", teamID).
		Msg("Unclaimed zone free-claimed without a raid")

	return &CreateRaidResult{FreeClaim: true, Zone: updated}, nil
}

// JoinAsDefender adds a user to the raid's defending roster. Only members
// of the recorded defending team may join, the roster may only grow before
// the raid completes, and rejoining is idempotent.
func (s *RaidService) JoinAsDefender(ctx context.Context, raidID, userID, teamID string) (*model.Raid, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	raid, err := s.raids.Get(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if raid.Status.Terminal() {
		return nil, apperr.Conflict("raid %s is already %s", raidID, raid.Status)
	}
	if teamID != raid.Defender.TeamID {
		return nil, apperr.Authorization(
			"user %s belongs to team %s, raid %s is defended by team %s",
			userID, teamID, raidID, raid.Defender.TeamID,
		)
	}
	if raid.Defender.HasMember(userID) {
		return raid, nil
	}

	now := time.Now()
	raid.Defender.Members = append(raid.Defender.Members, model.RaidMember{
		UserID:   userID,
		TeamID:   teamID,
		Role:     model.RoleDefender,
		JoinTime: now,
	})
	s.appendFeed(raid, model.FeedDefenderJoined, fmt.Sprintf(
		"user %s joined the defense of zone %s", userID, raid.ZoneID,
	))
	raid.UpdatedAt = now

	if err := s.raids.Update(ctx, raid); err != nil {
		return nil, err
	}
	return raid, nil
}

// Start transitions a raid from Scheduled to InProgress.
func (s *RaidService) Start(ctx context.Context, raidID string) (*model.Raid, error) {
	raid, err := s.raids.Get(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if raid.Status != model.RaidScheduled {
		return nil, apperr.InvalidState(string(raid.Status), string(model.RaidInProgress))
	}

	raid.Status = model.RaidInProgress
	s.appendFeed(raid, model.FeedRaidStarted, fmt.Sprintf(
		"raid started with %d attackers and %d defenders",
		len(raid.Attacker.Members), len(raid.Defender.Members),
	))
	raid.UpdatedAt = time.Now()

	if err := s.raids.Update(ctx, raid); err != nil {
		return nil, err
	}

	log.Info().Str("raid_id", raidID).Msg("Raid started")
	return raid, nil
}

// StartDue starts every Scheduled raid whose start time has arrived and
// returns how many were started. A raid that changed state concurrently is
// skipped.
func (s *RaidService) StartDue(ctx context.Context, now time.Time) (int, error) {
	const startBatch = 100

	due, err := s.raids.DueForStart(ctx, now, startBatch)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, raid := range due {
		if _, err := s.Start(ctx, raid.ID); err != nil {
			if apperr.IsKind(err, apperr.KindInvalidState) {
				continue
			}
			return started, err
		}
		started++
	}
	return started, nil
}

// Complete transitions an InProgress raid to Completed and records the
// results. The attacker wins only with a strictly higher score; ties go to
// the defender. For a Conquest win the zone ownership transfer is applied
// first; if that write fails the raid is still completed but ZoneChanges
// records that no transfer happened, and the error is returned alongside
// the raid rather than swallowed.
func (s *RaidService) Complete(ctx context.Context, raidID string, attackerScore, defenderScore int, mvpUserID string) (*model.Raid, error) {
	raid, err := s.raids.Get(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if raid.Status != model.RaidInProgress {
		return nil, apperr.InvalidState(string(raid.Status), string(model.RaidCompleted))
	}

	attackerWon := attackerScore > defenderScore
	winner := raid.Defender.TeamID
	if attackerWon {
		winner = raid.Attacker.TeamID
	}

	results := &model.RaidResults{
		WinnerTeamID: winner,
		Score:        model.RaidScore{Attacker: attackerScore, Defender: defenderScore},
		MVPUserID:    mvpUserID,
	}

	var transferErr error
	if raid.Type == model.RaidConquest && attackerWon {
		prev := raid.Defender.TeamID
		if _, err := s.zones.UpdateOwnership(ctx, raid.ZoneID, raid.Attacker.TeamID); err != nil {
			transferErr = err
			results.ZoneChanges = model.ZoneChanges{
				OwnershipTransferred: false,
				PreviousOwner:        prev,
			}
			log.Error().
				Err(err).
				Str("raid_id", raidID).
				Str("zone_id", raid.ZoneID).
				Msg("Zone ownership transfer failed during raid completion")
		} else {
			results.ZoneChanges = model.ZoneChanges{
				OwnershipTransferred: true,
				PreviousOwner:        prev,
				NewOwner:             raid.Attacker.TeamID,
			}
		}
	}

	raid.Status = model.RaidCompleted
	raid.Results = results
	s.appendFeed(raid, model.FeedRaidCompleted, fmt.Sprintf(
		"raid completed: %s won %d-%d", winner, attackerScore, defenderScore,
	))
	raid.UpdatedAt = time.Now()

	if err := s.raids.Update(ctx, raid); err != nil {
		return nil, err
	}

	log.Info().
		Str("raid_id", raidID).
		Str("winner", winner).
		Bool("ownership_transferred", results.ZoneChanges.OwnershipTransferred).
		Msg("Raid completed")

	if transferErr != nil {
		return raid, transferErr
	}
	return raid, nil
}

// Cancel transitions a Scheduled raid to Cancelled with a reason.
func (s *RaidService) Cancel(ctx context.Context, raidID, reason string) (*model.Raid, error) {
	raid, err := s.raids.Get(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if raid.Status != model.RaidScheduled {
		return nil, apperr.InvalidState(string(raid.Status), string(model.RaidCancelled))
	}

	raid.Status = model.RaidCancelled
	s.appendFeed(raid, model.FeedRaidCancelled, fmt.Sprintf("raid cancelled: %s", reason))
	raid.UpdatedAt = time.Now()

	if err := s.raids.Update(ctx, raid); err != nil {
		return nil, err
	}

	log.Info().Str("raid_id", raidID).Str("reason", reason).Msg("Raid cancelled")
	return raid, nil
}

// appendFeed appends one entry to the raid's audit feed and mirrors it to
// the event feed. The raid feed is append-only and never reordered.
func (s *RaidService) appendFeed(raid *model.Raid, eventType, message string) {
	now := time.Now()
	raid.Feed = append(raid.Feed, model.FeedEntry{
		Timestamp: now,
		Message:   message,
		EventType: eventType,
	})
	s.feed.Publish(event.Event{
		Type: event.TypeRaidFeed,
		At:   now,
		Payload: event.RaidFeed{
			RaidID:    raid.ID,
			ZoneID:    raid.ZoneID,
			EventType: eventType,
			Message:   message,
		},
	})
}

// mechanicsFor returns the default mechanics block for a raid type.
func mechanicsFor(t model.RaidType) model.RaidMechanics {
	m := model.RaidMechanics{
		Format:       "team_battle",
		WinCondition: "highest_score",
		Phases:       []string{"preparation", "assault", "resolution"},
	}
	switch t {
	case model.RaidConquest:
		m.Format = "territory_assault"
	case model.RaidResource:
		m.Format = "resource_rush"
		m.WinCondition = "most_resources_gathered"
	case model.RaidChallenge:
		m.Format = "head_to_head"
	case model.RaidTournament:
		m.Format = "bracket"
		m.Phases = []string{"preparation", "rounds", "final", "resolution"}
	}
	return m
}
