package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"territory-engine/internal/config"
	"territory-engine/internal/event"
	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
	"territory-engine/internal/pkg/lock"
)

// In-memory store fakes. Records are cloned through JSON on the way in and
// out, matching the repository layer's document round-trip.

func clone[T any](t rapid.TB, v *T) *T {
	t.Helper()
	doc, err := json.Marshal(v)
	require.NoError(t, err)
	out := new(T)
	require.NoError(t, json.Unmarshal(doc, out))
	return out
}

type memZoneStore struct {
	t     rapid.TB
	mu    sync.Mutex
	zones map[string]*model.Zone

	failUpdate error // when set, Update fails with this error
}

func newMemZoneStore(t rapid.TB) *memZoneStore {
	return &memZoneStore{t: t, zones: make(map[string]*model.Zone)}
}

func (s *memZoneStore) Create(_ context.Context, zone *model.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[zone.ID]; ok {
		return apperr.Conflict("zone %s already exists", zone.ID)
	}
	s.zones[zone.ID] = clone(s.t, zone)
	return nil
}

func (s *memZoneStore) Get(_ context.Context, id string) (*model.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zone, ok := s.zones[id]
	if !ok {
		return nil, apperr.NotFound("zone %s not found", id)
	}
	return clone(s.t, zone), nil
}

func (s *memZoneStore) Update(_ context.Context, zone *model.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	if _, ok := s.zones[zone.ID]; !ok {
		return apperr.NotFound("zone %s not found", zone.ID)
	}
	s.zones[zone.ID] = clone(s.t, zone)
	return nil
}

type memRaidStore struct {
	t     rapid.TB
	mu    sync.Mutex
	raids map[string]*model.Raid
}

func newMemRaidStore(t rapid.TB) *memRaidStore {
	return &memRaidStore{t: t, raids: make(map[string]*model.Raid)}
}

func (s *memRaidStore) Create(_ context.Context, raid *model.Raid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raids[raid.ID]; ok {
		return apperr.Conflict("raid %s already exists", raid.ID)
	}
	for _, r := range s.raids {
		if r.ZoneID == raid.ZoneID && !r.Status.Terminal() {
			return apperr.Conflict("zone %s already has an active raid", raid.ZoneID)
		}
	}
	s.raids[raid.ID] = clone(s.t, raid)
	return nil
}

func (s *memRaidStore) Get(_ context.Context, id string) (*model.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raid, ok := s.raids[id]
	if !ok {
		return nil, apperr.NotFound("raid %s not found", id)
	}
	return clone(s.t, raid), nil
}

func (s *memRaidStore) Update(_ context.Context, raid *model.Raid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raids[raid.ID]; !ok {
		return apperr.NotFound("raid %s not found", raid.ID)
	}
	s.raids[raid.ID] = clone(s.t, raid)
	return nil
}

func (s *memRaidStore) ActiveByZone(_ context.Context, zoneID string) (*model.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raid := range s.raids {
		if raid.ZoneID == zoneID && !raid.Status.Terminal() {
			return clone(s.t, raid), nil
		}
	}
	return nil, nil
}

func (s *memRaidStore) DueForStart(_ context.Context, now time.Time, limit int) ([]*model.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.Raid
	for _, raid := range s.raids {
		if raid.Status == model.RaidScheduled && !raid.Schedule.Start.After(now) {
			due = append(due, clone(s.t, raid))
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

type memInventoryStore struct {
	t           rapid.TB
	mu          sync.Mutex
	inventories map[string]*model.Inventory

	failUpsertKey string // when set, Upsert for this owner key fails
}

func newMemInventoryStore(t rapid.TB) *memInventoryStore {
	return &memInventoryStore{t: t, inventories: make(map[string]*model.Inventory)}
}

func (s *memInventoryStore) Get(_ context.Context, owner model.Owner) (*model.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventories[owner.Key()]
	if !ok {
		return nil, apperr.NotFound("inventory for %s not found", owner.Key())
	}
	return clone(s.t, inv), nil
}

func (s *memInventoryStore) Upsert(_ context.Context, inv *model.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsertKey != "" && inv.Owner.Key() == s.failUpsertKey {
		return apperr.StoreUnavailable(errors.New("injected failure"), "upsert %s", inv.Owner.Key())
	}
	s.inventories[inv.Owner.Key()] = clone(s.t, inv)
	return nil
}

type memListingStore struct {
	t        rapid.TB
	mu       sync.Mutex
	listings map[string]*model.Listing
}

func newMemListingStore(t rapid.TB) *memListingStore {
	return &memListingStore{t: t, listings: make(map[string]*model.Listing)}
}

func (s *memListingStore) Create(_ context.Context, listing *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listing.ID]; ok {
		return apperr.Conflict("listing %s already exists", listing.ID)
	}
	s.listings[listing.ID] = clone(s.t, listing)
	return nil
}

func (s *memListingStore) Get(_ context.Context, id string) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return nil, apperr.NotFound("listing %s not found", id)
	}
	return clone(s.t, listing), nil
}

func (s *memListingStore) Update(_ context.Context, listing *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listing.ID]; !ok {
		return apperr.NotFound("listing %s not found", listing.ID)
	}
	s.listings[listing.ID] = clone(s.t, listing)
	return nil
}

func (s *memListingStore) ListByStatus(_ context.Context, status model.ListingStatus, limit int) ([]*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Listing
	for _, listing := range s.listings {
		if listing.Status == status {
			out = append(out, clone(s.t, listing))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memTransactionStore struct {
	t   rapid.TB
	mu  sync.Mutex
	txs map[string]*model.Transaction
}

func newMemTransactionStore(t rapid.TB) *memTransactionStore {
	return &memTransactionStore{t: t, txs: make(map[string]*model.Transaction)}
}

func (s *memTransactionStore) Create(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; ok {
		return apperr.Conflict("transaction %s already exists", tx.ID)
	}
	s.txs[tx.ID] = clone(s.t, tx)
	return nil
}

func (s *memTransactionStore) Get(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, apperr.NotFound("transaction %s not found", id)
	}
	return clone(s.t, tx), nil
}

func (s *memTransactionStore) Update(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; !ok {
		return apperr.NotFound("transaction %s not found", tx.ID)
	}
	s.txs[tx.ID] = clone(s.t, tx)
	return nil
}

// fixture bundles fully wired services over in-memory stores.
type fixture struct {
	zoneStore      *memZoneStore
	raidStore      *memRaidStore
	inventoryStore *memInventoryStore
	listingStore   *memListingStore
	txStore        *memTransactionStore

	feed     *event.Feed
	registry *ZoneRegistry
	ledger   *LedgerService
	raids    *RaidService
	market   *MarketService
}

func defaultRaidConfig() config.RaidConfig {
	return config.RaidConfig{
		PreparationLead:           time.Hour,
		DefaultDurationMinutes:    60,
		WinnerXPPerRank:           100,
		WinnerCoinsPerRank:        50,
		ParticipationXPPerRank:    25,
		ParticipationCoinsPerRank: 10,
	}
}

func defaultMarketConfig() config.MarketConfig {
	return config.MarketConfig{
		FeePercent: 5,
		ListingTTL: 7 * 24 * time.Hour,
		Currency:   model.ResourceCoins,
	}
}

func newFixture(t rapid.TB) *fixture {
	f := &fixture{
		zoneStore:      newMemZoneStore(t),
		raidStore:      newMemRaidStore(t),
		inventoryStore: newMemInventoryStore(t),
		listingStore:   newMemListingStore(t),
		txStore:        newMemTransactionStore(t),
		feed:           event.NewFeed(),
	}
	f.registry = NewZoneRegistry(f.zoneStore, f.feed)
	f.ledger = NewLedgerService(f.inventoryStore, lock.NewOwnerLock())
	f.raids = NewRaidService(f.raidStore, f.registry, f.feed, defaultRaidConfig())
	f.market = NewMarketService(f.listingStore, f.txStore, f.ledger, f.feed, defaultMarketConfig())
	return f
}

// mustCreateZone seeds a zone of the given rank, optionally pre-owned.
func (f *fixture) mustCreateZone(t rapid.TB, name string, rank int, owner string) *model.Zone {
	t.Helper()
	zone, err := f.registry.Create(context.Background(), CreateZoneParams{
		Name: name,
		Type: model.ZonePublic,
		Rank: rank,
	})
	require.NoError(t, err)
	if owner != "" {
		zone, err = f.registry.UpdateOwnership(context.Background(), zone.ID, owner)
		require.NoError(t, err)
	}
	return zone
}
