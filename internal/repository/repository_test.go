// Integration tests against a PostgreSQL container via testcontainers-go.
// Skipped when Docker is not available.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container, applies the schema and returns
// a connection pool plus cleanup.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

func testZone(name, controller string) *model.Zone {
	now := time.Now()
	return &model.Zone{
		ID:   uuid.NewString(),
		Name: name,
		Type: model.ZonePublic,
		Rank: 2,
		Ownership: model.Ownership{
			ControlledBy:   controller,
			PreviousOwners: []string{},
		},
		Resources: []model.ZoneResource{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testRaid(zoneID string, status model.RaidStatus, start time.Time) *model.Raid {
	now := time.Now()
	return &model.Raid{
		ID:       uuid.NewString(),
		Type:     model.RaidConquest,
		Status:   status,
		ZoneID:   zoneID,
		Attacker: model.RaidParty{TeamID: "team2", Members: []model.RaidMember{}},
		Defender: model.RaidParty{TeamID: "team1", Members: []model.RaidMember{}},
		Schedule: model.RaidSchedule{
			Announced: now,
			Start:     start,
		},
		Feed:      []model.FeedEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestZoneRepository_CRUD(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewZoneRepository(pool)
	ctx := context.Background()

	zone := testZone("Harbor District", "team1")
	require.NoError(t, repo.Create(ctx, zone))

	got, err := repo.Get(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, zone.Name, got.Name)
	assert.Equal(t, "team1", got.Ownership.ControlledBy)
	assert.Equal(t, 2, got.Rank)

	got.Ownership.ControlledBy = "team2"
	got.Ownership.PreviousOwners = append(got.Ownership.PreviousOwners, "team1")
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.Get(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, "team2", got.Ownership.ControlledBy)
	assert.Equal(t, []string{"team1"}, got.Ownership.PreviousOwners)

	_, err = repo.Get(ctx, "no-such-zone")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	err = repo.Update(ctx, testZone("Ghost", ""))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestZoneRepository_ListByController(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewZoneRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testZone("A", "team1")))
	require.NoError(t, repo.Create(ctx, testZone("B", "team1")))
	require.NoError(t, repo.Create(ctx, testZone("C", "team2")))

	zones, err := repo.ListByController(ctx, "team1")
	require.NoError(t, err)
	assert.Len(t, zones, 2)
	for _, z := range zones {
		assert.Equal(t, "team1", z.Ownership.ControlledBy)
	}
}

func TestRaidRepository_OneActivePerZone(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRaidRepository(pool)
	ctx := context.Background()

	zoneID := uuid.NewString()
	start := time.Now().Add(time.Hour)

	first := testRaid(zoneID, model.RaidScheduled, start)
	require.NoError(t, repo.Create(ctx, first))

	// The partial unique index backstops the service-level check.
	err := repo.Create(ctx, testRaid(zoneID, model.RaidScheduled, start))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	active, err := repo.ActiveByZone(ctx, zoneID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	// Completing the raid frees the zone for a new one.
	first.Status = model.RaidCompleted
	require.NoError(t, repo.Update(ctx, first))

	active, err = repo.ActiveByZone(ctx, zoneID)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.Create(ctx, testRaid(zoneID, model.RaidScheduled, start)))
}

func TestRaidRepository_DueForStart(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRaidRepository(pool)
	ctx := context.Background()

	now := time.Now()
	due := testRaid(uuid.NewString(), model.RaidScheduled, now.Add(-time.Minute))
	future := testRaid(uuid.NewString(), model.RaidScheduled, now.Add(time.Hour))
	running := testRaid(uuid.NewString(), model.RaidInProgress, now.Add(-time.Hour))

	require.NoError(t, repo.Create(ctx, due))
	require.NoError(t, repo.Create(ctx, future))
	require.NoError(t, repo.Create(ctx, running))

	raids, err := repo.DueForStart(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, raids, 1)
	assert.Equal(t, due.ID, raids[0].ID)
}

func TestRaidRepository_ListByTeam(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRaidRepository(pool)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	attacking := testRaid(uuid.NewString(), model.RaidScheduled, start)
	defending := testRaid(uuid.NewString(), model.RaidScheduled, start)
	defending.Attacker.TeamID = "team3"
	defending.Defender.TeamID = "team2"

	require.NoError(t, repo.Create(ctx, attacking))
	require.NoError(t, repo.Create(ctx, defending))

	raids, err := repo.ListByTeam(ctx, "team2", 10)
	require.NoError(t, err)
	assert.Len(t, raids, 2, "team2 attacks one raid and defends another")
}

func TestInventoryRepository_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewInventoryRepository(pool)
	ctx := context.Background()

	owner := model.Owner{ID: "alice", Type: model.OwnerUser}

	_, err := repo.Get(ctx, owner)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	inv := &model.Inventory{
		Owner:     owner,
		Resources: map[string]int64{"DATA": 100},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Upsert(ctx, inv))

	got, err := repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Resources["DATA"])

	// Second upsert replaces the document.
	inv.Resources["DATA"] = 60
	inv.Resources["STONE"] = 5
	require.NoError(t, repo.Upsert(ctx, inv))

	got, err = repo.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Resources["DATA"])
	assert.Equal(t, int64(5), got.Resources["STONE"])

	// Owners with the same id but different type are distinct.
	team := model.Owner{ID: "alice", Type: model.OwnerTeam}
	_, err = repo.Get(ctx, team)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListingRepository_ListByStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewListingRepository(pool)
	ctx := context.Background()

	now := time.Now()
	newListing := func(status model.ListingStatus, expires time.Time) *model.Listing {
		return &model.Listing{
			ID:      uuid.NewString(),
			Title:   "Rare blueprint",
			Seller:  model.Party{ID: "bob", Type: model.OwnerUser},
			Item:    model.ListingItem{Type: "blueprint"},
			Pricing: model.Pricing{Price: 100, Currency: model.ResourceCoins},
			Status:  status,
			Listed:  now,
			Expires: expires,
		}
	}

	later := newListing(model.ListingActive, now.Add(2*time.Hour))
	sooner := newListing(model.ListingActive, now.Add(time.Hour))
	sold := newListing(model.ListingSold, now.Add(time.Hour))

	require.NoError(t, repo.Create(ctx, later))
	require.NoError(t, repo.Create(ctx, sooner))
	require.NoError(t, repo.Create(ctx, sold))

	listings, err := repo.ListByStatus(ctx, model.ListingActive, 10)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	// Soonest expiry first.
	assert.Equal(t, sooner.ID, listings[0].ID)
	assert.Equal(t, later.ID, listings[1].ID)
}

func TestTransactionRepository_DuplicateIDConflicts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	tx := &model.Transaction{
		ID:        uuid.NewString(),
		Type:      model.TxPurchase,
		Buyer:     model.Owner{ID: "alice", Type: model.OwnerUser},
		Seller:    model.Owner{ID: "bob", Type: model.OwnerUser},
		Financial: model.Financial{Amount: 100, Currency: model.ResourceCoins},
		CreatedAt: time.Now(),
		Status:    model.TxPending,
	}
	require.NoError(t, repo.Create(ctx, tx))

	err := repo.Create(ctx, tx)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestTransactionRepository_ListByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	newTx := func(buyer, seller string) *model.Transaction {
		return &model.Transaction{
			ID:        uuid.NewString(),
			Type:      model.TxPurchase,
			Buyer:     model.Owner{ID: buyer, Type: model.OwnerUser},
			Seller:    model.Owner{ID: seller, Type: model.OwnerUser},
			Financial: model.Financial{Amount: 100, Currency: model.ResourceCoins},
			CreatedAt: time.Now(),
			Status:    model.TxCompleted,
		}
	}

	require.NoError(t, repo.Create(ctx, newTx("alice", "bob")))
	require.NoError(t, repo.Create(ctx, newTx("bob", "carol")))
	require.NoError(t, repo.Create(ctx, newTx("carol", "dave")))

	// Both sides of a settlement see it.
	txs, err := repo.ListByUser(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	txs, err = repo.ListByUser(ctx, "dave", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
