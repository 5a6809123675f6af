package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"territory-engine/internal/config"
	"territory-engine/internal/event"
	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
)

// CreateListingParams is the input for MarketService.CreateListing.
// Title, Seller, Item and Pricing are required.
type CreateListingParams struct {
	ID          string
	Title       string
	Description string
	Seller      model.Party
	Item        model.ListingItem
	Pricing     *model.Pricing
	Terms       *model.Terms
	Tags        []string
}

// MarketService manages listings, auctions and transactions, delegating
// all balance changes to the ledger.
type MarketService struct {
	listings ListingStore
	txs      TransactionStore
	ledger   *LedgerService
	feed     *event.Feed
	cfg      config.MarketConfig
}

// NewMarketService creates a new MarketService instance.
func NewMarketService(listings ListingStore, txs TransactionStore, ledger *LedgerService, feed *event.Feed, cfg config.MarketConfig) *MarketService {
	return &MarketService{listings: listings, txs: txs, ledger: ledger, feed: feed, cfg: cfg}
}

// GetListing retrieves a listing by id.
func (s *MarketService) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	return s.listings.Get(ctx, listingID)
}

// GetTransaction retrieves a transaction by id.
func (s *MarketService) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	return s.txs.Get(ctx, txID)
}

// CreateListing publishes a new market listing. Defaults: status Active,
// listed now, expiry now plus the configured TTL, immediate delivery with
// no returns.
func (s *MarketService) CreateListing(ctx context.Context, p CreateListingParams) (*model.Listing, error) {
	if p.Title == "" {
		return nil, apperr.Validation("listing title is required")
	}
	if p.Seller.ID == "" {
		return nil, apperr.Validation("listing seller is required")
	}
	if p.Item.Type == "" {
		return nil, apperr.Validation("listing item is required")
	}
	if p.Pricing == nil {
		return nil, apperr.Validation("listing pricing is required")
	}
	if p.Pricing.Price < 0 {
		return nil, apperr.Validation("listing price must not be negative")
	}
	if p.Pricing.Auction != nil && p.Pricing.Auction.EndTime.IsZero() {
		return nil, apperr.Validation("auction end time is required")
	}

	now := time.Now()
	listing := &model.Listing{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Seller:      p.Seller,
		Item:        p.Item,
		Pricing:     *p.Pricing,
		Status:      model.ListingActive,
		Listed:      now,
		Expires:     now.Add(s.cfg.ListingTTL),
		Terms:       model.Terms{Delivery: "Immediate", Returns: false},
		Tags:        p.Tags,
	}
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.Pricing.Currency == "" {
		listing.Pricing.Currency = s.cfg.Currency
	}
	if p.Terms != nil {
		listing.Terms = *p.Terms
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, err
	}

	log.Info().
		Str("listing_id", listing.ID).
		Str("seller", listing.Seller.ID).
		Int64("price", listing.Pricing.Price).
		Bool("auction", listing.Pricing.Auction != nil).
		Msg("Listing created")

	return listing, nil
}

// PlaceBid records a bid on an auctioned listing. The listing must be
// Active with an open auction window, and the amount must strictly exceed
// the current highest bid. Rejected bids leave the history untouched.
func (s *MarketService) PlaceBid(ctx context.Context, listingID, userID string, amount int64) (*model.Listing, error) {
	if userID == "" {
		return nil, apperr.Validation("bidder user id is required")
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != model.ListingActive {
		return nil, apperr.Conflict("listing %s is %s, not Active", listingID, listing.Status)
	}
	auction := listing.Pricing.Auction
	if auction == nil {
		return nil, apperr.Conflict("listing %s is not an auction", listingID)
	}
	now := time.Now()
	if auction.Closed(now) {
		return nil, apperr.Conflict("auction on listing %s has ended", listingID)
	}
	if amount <= auction.CurrentBid {
		return nil, apperr.Validation(
			"bid of %d does not exceed current bid %d", amount, auction.CurrentBid,
		)
	}

	auction.BidHistory = append(auction.BidHistory, model.Bid{
		UserID: userID,
		Amount: amount,
		Time:   now,
	})
	auction.CurrentBid = amount

	if err := s.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	log.Info().
		Str("listing_id", listingID).
		Str("bidder", userID).
		Int64("amount", amount).
		Msg("Bid placed")

	return listing, nil
}

// Purchase settles a listing for the buyer. For auctions the window must
// have closed and the caller must be the recorded highest bidder (amount
// ties broken by earliest bid). The settlement amount is the winning bid
// when one exists, else the flat price. The fee is 5 percent of the flat
// listed price regardless of the settlement amount; that mirrors the
// original economy and is deliberately not recomputed from the bid. The
// transaction is Completed only if the ledger transfer succeeds; on
// failure it is marked Failed and the listing reverts to Active.
func (s *MarketService) Purchase(ctx context.Context, listingID string, buyer model.Owner) (*model.Transaction, error) {
	if buyer.ID == "" {
		return nil, apperr.Validation("buyer id is required")
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != model.ListingActive {
		return nil, apperr.Conflict("listing %s is %s, not Active", listingID, listing.Status)
	}

	now := time.Now()
	amount := listing.Pricing.Price
	if auction := listing.Pricing.Auction; auction != nil {
		if !auction.Closed(now) {
			return nil, apperr.Conflict("auction on listing %s is still running", listingID)
		}
		if winner := auction.Winner(); winner != nil {
			if winner.UserID != buyer.ID {
				return nil, apperr.Authorization(
					"listing %s was won by %s, not %s", listingID, winner.UserID, buyer.ID,
				)
			}
			amount = winner.Amount
		}
	}

	fee := listing.Pricing.Price * int64(s.cfg.FeePercent) / 100

	tx := &model.Transaction{
		ID:     uuid.NewString(),
		Type:   model.TxPurchase,
		Buyer:  buyer,
		Seller: model.Owner{ID: listing.Seller.ID, Type: listing.Seller.Type},
		Item:   &listing.Item,
		Financial: model.Financial{
			Amount:   amount,
			Currency: listing.Pricing.Currency,
			Fee:      fee,
		},
		CreatedAt: now,
		Status:    model.TxPending,
		ListingID: listing.ID,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, err
	}

	listing.Status = model.ListingSold
	if err := s.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	transferErr := s.ledger.Transfer(ctx, buyer, tx.Seller,
		map[string]int64{listing.Pricing.Currency: amount})
	if transferErr != nil {
		// Settlement failed: fail the transaction and put the listing
		// back on the market.
		tx.Status = model.TxFailed
		if err := s.txs.Update(ctx, tx); err != nil {
			log.Error().Err(err).Str("tx_id", tx.ID).Msg("Failed to mark transaction Failed")
		}
		listing.Status = model.ListingActive
		if err := s.listings.Update(ctx, listing); err != nil {
			log.Error().Err(err).Str("listing_id", listing.ID).Msg("Failed to revert listing to Active")
		}
		return nil, transferErr
	}

	completed := time.Now()
	tx.Status = model.TxCompleted
	tx.CompletedAt = &completed
	if err := s.txs.Update(ctx, tx); err != nil {
		return nil, err
	}

	log.Info().
		Str("tx_id", tx.ID).
		Str("listing_id", listingID).
		Str("buyer", buyer.ID).
		Int64("amount", amount).
		Int64("fee", fee).
		Msg("Purchase settled")

	s.feed.Publish(event.Event{Type: event.TypeTransaction, Payload: *tx})

	return tx, nil
}

// CreateRewardTransaction mints a system reward into a user's balances:
// a credit with no counter-party debit. The transaction is Completed
// immediately with the system account as seller. Used by raid and
// experience reward payout.
func (s *MarketService) CreateRewardTransaction(ctx context.Context, userID string, rewards model.Rewards) (*model.Transaction, error) {
	if userID == "" {
		return nil, apperr.Validation("reward recipient is required")
	}
	deltas := rewards.Deltas()
	if len(deltas) == 0 {
		return nil, apperr.Validation("reward must grant at least one resource")
	}

	recipient := model.Owner{ID: userID, Type: model.OwnerUser}
	if _, err := s.ledger.Credit(ctx, recipient, deltas); err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &model.Transaction{
		ID:     uuid.NewString(),
		Type:   model.TxReward,
		Buyer:  recipient,
		Seller: model.SystemOwner,
		Financial: model.Financial{
			Amount:   rewards.Coins,
			Currency: s.cfg.Currency,
		},
		CreatedAt:   now,
		CompletedAt: &now,
		Status:      model.TxCompleted,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, err
	}

	log.Info().
		Str("tx_id", tx.ID).
		Str("user_id", userID).
		Int64("coins", rewards.Coins).
		Int64("xp", rewards.XP).
		Msg("Reward minted")

	s.feed.Publish(event.Event{Type: event.TypeTransaction, Payload: *tx})

	return tx, nil
}

// CancelListing withdraws a seller's own Active listing.
func (s *MarketService) CancelListing(ctx context.Context, listingID, sellerID string) (*model.Listing, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Seller.ID != sellerID {
		return nil, apperr.Authorization(
			"listing %s belongs to %s, not %s", listingID, listing.Seller.ID, sellerID,
		)
	}
	if listing.Status != model.ListingActive {
		return nil, apperr.Conflict("listing %s is %s, not Active", listingID, listing.Status)
	}

	listing.Status = model.ListingCancelled
	if err := s.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	log.Info().Str("listing_id", listingID).Msg("Listing cancelled")
	return listing, nil
}

// ExpireListings sweeps Active listings whose expiry has passed into the
// Expired status and returns how many were expired. Auctioned listings
// with bids are left for their winner to settle.
func (s *MarketService) ExpireListings(ctx context.Context, now time.Time) (int, error) {
	const sweepBatch = 500

	active, err := s.listings.ListByStatus(ctx, model.ListingActive, sweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, listing := range active {
		if listing.Expires.After(now) {
			continue
		}
		if auction := listing.Pricing.Auction; auction != nil && len(auction.BidHistory) > 0 {
			continue
		}
		listing.Status = model.ListingExpired
		if err := s.listings.Update(ctx, listing); err != nil {
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		log.Info().Int("count", expired).Msg("Expired stale listings")
	}
	return expired, nil
}
