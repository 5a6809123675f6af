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

// ListingRepository handles market listing persistence.
type ListingRepository struct {
	pool *pgxpool.Pool
}

// NewListingRepository creates a new ListingRepository instance.
func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

// Create inserts a new listing.
func (r *ListingRepository) Create(ctx context.Context, listing *model.Listing) error {
	doc, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	const query = `
		INSERT INTO listings (id, status, seller_id, expires_at, doc, listed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		listing.ID, string(listing.Status), listing.Seller.ID,
		listing.Expires, doc, listing.Listed,
	)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to create listing %s", listing.ID)
	}
	return nil
}

// Get retrieves a listing by id.
func (r *ListingRepository) Get(ctx context.Context, id string) (*model.Listing, error) {
	const query = `SELECT doc FROM listings WHERE id = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("listing %s not found", id)
		}
		return nil, apperr.StoreUnavailable(err, "failed to get listing %s", id)
	}

	var listing model.Listing
	if err := json.Unmarshal(doc, &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing %s: %w", id, err)
	}
	return &listing, nil
}

// Update replaces a listing record.
func (r *ListingRepository) Update(ctx context.Context, listing *model.Listing) error {
	doc, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	const query = `
		UPDATE listings
		SET status = $2, expires_at = $3, doc = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		listing.ID, string(listing.Status), listing.Expires, doc,
	)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to update listing %s", listing.ID)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("listing %s not found", listing.ID)
	}
	return nil
}

// ListByStatus retrieves listings in the given status, oldest expiry first.
func (r *ListingRepository) ListByStatus(ctx context.Context, status model.ListingStatus, limit int) ([]*model.Listing, error) {
	const query = `
		SELECT doc FROM listings
		WHERE status = $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list %s listings", status)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		var listing model.Listing
		if err := json.Unmarshal(doc, &listing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
		}
		listings = append(listings, &listing)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating listings")
	}
	return listings, nil
}

// ListBySeller retrieves a seller's listings, newest first.
func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]*model.Listing, error) {
	const query = `
		SELECT doc FROM listings
		WHERE seller_id = $1
		ORDER BY listed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sellerID, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list listings for seller %s", sellerID)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		var listing model.Listing
		if err := json.Unmarshal(doc, &listing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
		}
		listings = append(listings, &listing)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating listings")
	}
	return listings, nil
}
