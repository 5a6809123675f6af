// Package model defines the data models for the territory engine.
package model

import "time"

// ResourceCoins is the currency resource type used for market settlement
// and reward payouts. ResourceXP tracks experience credited alongside coins.
const (
	ResourceCoins = "COINS"
	ResourceXP    = "XP"
)

// Owner identifies the holder of a resource inventory or a party to a
// transaction. Type distinguishes users, teams and the system account.
type Owner struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Owner types.
const (
	OwnerUser   = "user"
	OwnerTeam   = "team"
	OwnerSystem = "system"
)

// SystemOwner is the counter-party for system-minted reward transactions.
var SystemOwner = Owner{ID: "system", Type: OwnerSystem}

// Key returns the composite inventory key for this owner.
func (o Owner) Key() string {
	return o.Type + ":" + o.ID
}

// ZoneType classifies a zone.
type ZoneType string

// Zone types.
const (
	ZonePublic       ZoneType = "Public"
	ZonePrivate      ZoneType = "Private"
	ZoneCommercial   ZoneType = "Commercial"
	ZoneEducational  ZoneType = "Educational"
	ZoneRecreational ZoneType = "Recreational"
	ZoneWilderness   ZoneType = "Wilderness"
	ZoneSpecial      ZoneType = "Special"
)

// ValidZoneType reports whether t is one of the known zone types.
func ValidZoneType(t ZoneType) bool {
	switch t {
	case ZonePublic, ZonePrivate, ZoneCommercial, ZoneEducational,
		ZoneRecreational, ZoneWilderness, ZoneSpecial:
		return true
	}
	return false
}

// Sector locates a zone within the world grid.
type Sector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Geometry describes a zone's footprint: a center point plus a shape
// descriptor with width/height extents.
type Geometry struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Shape   string  `json:"shape"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Ownership tracks which team controls a zone. An empty ControlledBy means
// the zone is unclaimed. Every transfer appends the prior non-empty owner
// to PreviousOwners and resets ControlledSince.
type Ownership struct {
	ControlledBy    string    `json:"controlled_by"`
	ControlledSince time.Time `json:"controlled_since"`
	PreviousOwners  []string  `json:"previous_owners"`
}

// ZoneResource is a regenerating resource stock held by a zone.
type ZoneResource struct {
	Type             string    `json:"type"`
	Quantity         int64     `json:"quantity"`
	RegenerationRate float64   `json:"regeneration_rate"`
	LastUpdated      time.Time `json:"last_updated"`
}

// ZoneEvent is one line of a zone's activity event log.
type ZoneEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// ZoneStats holds activity data for a zone. EventLog keeps the most recent
// activity and ownership events, oldest first.
type ZoneStats struct {
	CurrentUsers int         `json:"current_users"`
	PopularTimes map[int]int `json:"popular_times,omitempty"` // hour of day -> visit count
	EventLog     []ZoneEvent `json:"event_log,omitempty"`
}

// maxZoneEvents bounds the per-zone event log.
const maxZoneEvents = 50

// RecordEvent appends an event to the log, dropping the oldest entries
// beyond the retention bound.
func (s *ZoneStats) RecordEvent(at time.Time, message string) {
	s.EventLog = append(s.EventLog, ZoneEvent{Timestamp: at, Message: message})
	if len(s.EventLog) > maxZoneEvents {
		s.EventLog = s.EventLog[len(s.EventLog)-maxZoneEvents:]
	}
}

// Zone is a spatially bounded area with ownership, rank and resource state.
type Zone struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         ZoneType       `json:"type"`
	Sector       Sector         `json:"sector"`
	Geometry     Geometry       `json:"geometry"`
	Rank         int            `json:"rank"` // 1-4, gates access-requirement tables
	Ownership    Ownership      `json:"ownership"`
	Capacity     int            `json:"capacity"`
	Amenities    []string       `json:"amenities,omitempty"`
	Stats        ZoneStats      `json:"stats"`
	Resources    []ZoneResource `json:"resources"`
	UnlockedTech []string       `json:"unlocked_tech,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Unclaimed reports whether no team currently controls the zone.
func (z *Zone) Unclaimed() bool {
	return z.Ownership.ControlledBy == ""
}

// RankRequirement is the advisory access table for a zone rank. Nothing in
// the raid flow enforces it; callers decide whether to gate on it.
type RankRequirement struct {
	MinTeamMembers int   `json:"min_team_members"`
	MinTeamLevel   int   `json:"min_team_level"`
	MinResources   int64 `json:"min_resources"`
	MinPowerLevel  int   `json:"min_power_level"`
}

// RaidType classifies a raid.
type RaidType string

// Raid types.
const (
	RaidConquest   RaidType = "Conquest"
	RaidResource   RaidType = "Resource"
	RaidChallenge  RaidType = "Challenge"
	RaidTournament RaidType = "Tournament"
)

// ValidRaidType reports whether t is one of the known raid types.
func ValidRaidType(t RaidType) bool {
	switch t {
	case RaidConquest, RaidResource, RaidChallenge, RaidTournament:
		return true
	}
	return false
}

// RaidStatus is a raid's state-machine state. Legal transitions are
// Scheduled->InProgress->Completed and Scheduled->Cancelled only.
type RaidStatus string

// Raid statuses.
const (
	RaidScheduled  RaidStatus = "Scheduled"
	RaidInProgress RaidStatus = "InProgress"
	RaidCompleted  RaidStatus = "Completed"
	RaidCancelled  RaidStatus = "Cancelled"
)

// Terminal reports whether the raid can no longer change state.
func (s RaidStatus) Terminal() bool {
	return s == RaidCompleted || s == RaidCancelled
}

// Raid member roles.
const (
	RoleAttacker = "Attacker"
	RoleDefender = "Defender"
)

// RaidMember is a participant on one side of a raid.
type RaidMember struct {
	UserID   string    `json:"user_id"`
	TeamID   string    `json:"team_id"`
	Role     string    `json:"role"`
	JoinTime time.Time `json:"join_time"`
	Score    int       `json:"score"`
}

// RaidParty is one side of a raid. DefenseBonus is only meaningful for the
// defending side (zone rank x 5 percent).
type RaidParty struct {
	TeamID       string       `json:"team_id"`
	Members      []RaidMember `json:"members"`
	Ready        bool         `json:"ready"`
	DefenseBonus int          `json:"defense_bonus,omitempty"`
}

// HasMember reports whether the party already lists the given user.
func (p *RaidParty) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// RaidSchedule holds the raid's timeline. PreparationStart precedes Start
// by the configured lead time.
type RaidSchedule struct {
	Announced         time.Time `json:"announced"`
	PreparationStart  time.Time `json:"preparation_start"`
	Start             time.Time `json:"start"`
	EstimatedDuration int       `json:"estimated_duration_minutes"`
}

// RaidMechanics describes how a raid is fought.
type RaidMechanics struct {
	Format       string   `json:"format"`
	WinCondition string   `json:"win_condition"`
	Phases       []string `json:"phases"`
	SpecialRules []string `json:"special_rules,omitempty"`
}

// RewardTier is one payout line of a reward schedule.
type RewardTier struct {
	XP    int64 `json:"xp"`
	Coins int64 `json:"coins"`
}

// RewardSchedule is computed at raid creation from the zone rank. The
// orchestrator stores it but never mints it; payout goes through the
// market's reward-transaction path.
type RewardSchedule struct {
	Winner            RewardTier `json:"winner"`
	WinnerZoneControl bool       `json:"winner_zone_control"`
	Participation     RewardTier `json:"participation"`
}

// Raid feed event types.
const (
	FeedRaidScheduled  = "RAID_SCHEDULED"
	FeedDefenderJoined = "DEFENDER_JOINED"
	FeedRaidStarted    = "RAID_STARTED"
	FeedRaidCompleted  = "RAID_COMPLETED"
	FeedRaidCancelled  = "RAID_CANCELLED"
)

// FeedEntry is one line of a raid's append-only audit feed. Entries are
// ordered by wall-clock timestamp and never mutated.
type FeedEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	EventType string    `json:"event_type"`
}

// ZoneChanges records whether a completed raid actually moved ownership.
// OwnershipTransferred stays false when the zone write failed, so the
// record never claims a transfer that did not happen.
type ZoneChanges struct {
	OwnershipTransferred bool   `json:"ownership_transferred"`
	PreviousOwner        string `json:"previous_owner,omitempty"`
	NewOwner             string `json:"new_owner,omitempty"`
}

// RaidScore is the final attacker/defender score pair.
type RaidScore struct {
	Attacker int `json:"attacker"`
	Defender int `json:"defender"`
}

// RaidResults is set once a raid reaches Completed.
type RaidResults struct {
	WinnerTeamID string      `json:"winner_team_id"`
	Score        RaidScore   `json:"score"`
	MVPUserID    string      `json:"mvp_user_id,omitempty"`
	Highlights   []string    `json:"highlights,omitempty"`
	ZoneChanges  ZoneChanges `json:"zone_changes"`
}

// Raid is a time-boxed contest between an attacking and defending team
// over a zone. Raids are retained as historical records, never deleted.
type Raid struct {
	ID                   string         `json:"id"`
	Type                 RaidType       `json:"type"`
	Status               RaidStatus     `json:"status"`
	ZoneID               string         `json:"zone_id"`
	ControllerAtCreation string         `json:"controller_at_creation"`
	Attacker             RaidParty      `json:"attacker"`
	Defender             RaidParty      `json:"defender"`
	Schedule             RaidSchedule   `json:"schedule"`
	Mechanics            RaidMechanics  `json:"mechanics"`
	Rewards              RewardSchedule `json:"rewards"`
	Feed                 []FeedEntry    `json:"feed"`
	Results              *RaidResults   `json:"results,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Inventory holds per-type resource balances for one owner. Quantities are
// always non-negative; a type not present is implicitly zero. Capacity, if
// set for a type, is a ceiling that credits may not cross.
type Inventory struct {
	Owner     Owner            `json:"owner"`
	Resources map[string]int64 `json:"resources"`
	Capacity  map[string]int64 `json:"capacity,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ListingStatus is a market listing's lifecycle state.
type ListingStatus string

// Listing statuses.
const (
	ListingActive    ListingStatus = "Active"
	ListingSold      ListingStatus = "Sold"
	ListingCancelled ListingStatus = "Cancelled"
	ListingExpired   ListingStatus = "Expired"
)

// Economic layers a listing can trade in.
const (
	LayerPort     = "Port"
	LayerLaws     = "Laws"
	LayerRepublic = "Republic"
)

// Party describes a listing's seller.
type Party struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Name   string  `json:"name,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

// ListingItem is the thing being sold.
type ListingItem struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Images     []string       `json:"images,omitempty"`
}

// Bid is one entry in an auction's bid history.
type Bid struct {
	UserID string    `json:"user_id"`
	Amount int64     `json:"amount"`
	Time   time.Time `json:"time"`
}

// Auction is the optional auction window attached to a listing's pricing.
type Auction struct {
	EndTime    time.Time `json:"end_time"`
	CurrentBid int64     `json:"current_bid"`
	BidHistory []Bid     `json:"bid_history"`
}

// Closed reports whether the auction window has ended as of now.
func (a *Auction) Closed(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// Winner returns the highest bid, breaking amount ties by earliest bid.
// Returns nil if no bids were placed.
func (a *Auction) Winner() *Bid {
	var best *Bid
	for i := range a.BidHistory {
		b := &a.BidHistory[i]
		if best == nil || b.Amount > best.Amount ||
			(b.Amount == best.Amount && b.Time.Before(best.Time)) {
			best = b
		}
	}
	return best
}

// Pricing holds a listing's price terms.
type Pricing struct {
	Price         int64    `json:"price"`
	Currency      string   `json:"currency"`
	Negotiable    bool     `json:"negotiable"`
	Auction       *Auction `json:"auction,omitempty"`
	EconomicLayer string   `json:"economic_layer,omitempty"`
}

// Terms are a listing's delivery terms.
type Terms struct {
	Delivery string `json:"delivery"`
	Returns  bool   `json:"returns"`
}

// Listing is a marketplace offer, optionally auctioned. Bids and purchases
// are only accepted while the listing is Active.
type Listing struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Seller      Party         `json:"seller"`
	Item        ListingItem   `json:"item"`
	Pricing     Pricing       `json:"pricing"`
	Status      ListingStatus `json:"status"`
	Listed      time.Time     `json:"listed"`
	Expires     time.Time     `json:"expires"`
	Terms       Terms         `json:"terms"`
	Tags        []string      `json:"tags,omitempty"`
}

// TransactionType classifies a transaction.
type TransactionType string

// Transaction types.
const (
	TxPurchase TransactionType = "Purchase"
	TxReward   TransactionType = "Reward"
	TxTransfer TransactionType = "Transfer"
)

// TransactionStatus is a transaction's settlement state.
type TransactionStatus string

// Transaction statuses.
const (
	TxPending   TransactionStatus = "Pending"
	TxCompleted TransactionStatus = "Completed"
	TxFailed    TransactionStatus = "Failed"
)

// Financial holds the money side of a transaction. Fee is recorded but not
// itself moved through the ledger.
type Financial struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Fee           int64  `json:"fee"`
	TaxesIncluded bool   `json:"taxes_included"`
}

// Transaction records a settlement: a peer purchase, a system-minted
// reward, or a plain transfer. Immutable once Completed or Failed except
// for the status fields.
type Transaction struct {
	ID          string            `json:"id"`
	Type        TransactionType   `json:"type"`
	Buyer       Owner             `json:"buyer"`
	Seller      Owner             `json:"seller"`
	Item        *ListingItem      `json:"item,omitempty"`
	Financial   Financial         `json:"financial"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Status      TransactionStatus `json:"status"`
	ListingID   string            `json:"listing_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Rewards is a system-minted payout: coins and experience plus optional
// extra resources.
type Rewards struct {
	XP        int64            `json:"xp"`
	Coins     int64            `json:"coins"`
	Resources map[string]int64 `json:"resources,omitempty"`
}

// Deltas flattens the rewards into ledger credit deltas.
func (r Rewards) Deltas() map[string]int64 {
	deltas := make(map[string]int64, len(r.Resources)+2)
	if r.Coins > 0 {
		deltas[ResourceCoins] = r.Coins
	}
	if r.XP > 0 {
		deltas[ResourceXP] = r.XP
	}
	for typ, qty := range r.Resources {
		deltas[typ] += qty
	}
	return deltas
}
