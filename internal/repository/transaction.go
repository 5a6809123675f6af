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

// TransactionRepository handles transaction persistence.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create inserts a new transaction. Replaying the same transaction id is a
// Conflict rather than a second insert, so retried settlements cannot
// double-create.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	const query = `
		INSERT INTO transactions (id, type, status, buyer_id, seller_id, doc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		tx.ID, string(tx.Type), string(tx.Status),
		tx.Buyer.ID, tx.Seller.ID, doc, tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("transaction %s already exists", tx.ID)
		}
		return apperr.StoreUnavailable(err, "failed to create transaction %s", tx.ID)
	}
	return nil
}

// Get retrieves a transaction by id.
func (r *TransactionRepository) Get(ctx context.Context, id string) (*model.Transaction, error) {
	const query = `SELECT doc FROM transactions WHERE id = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("transaction %s not found", id)
		}
		return nil, apperr.StoreUnavailable(err, "failed to get transaction %s", id)
	}

	var tx model.Transaction
	if err := json.Unmarshal(doc, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %s: %w", id, err)
	}
	return &tx, nil
}

// Update replaces a transaction record.
func (r *TransactionRepository) Update(ctx context.Context, tx *model.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	const query = `
		UPDATE transactions
		SET status = $2, doc = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, tx.ID, string(tx.Status), doc)
	if err != nil {
		return apperr.StoreUnavailable(err, "failed to update transaction %s", tx.ID)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("transaction %s not found", tx.ID)
	}
	return nil
}

// ListByUser retrieves transactions where the user bought or sold, newest
// first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT doc FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "failed to list transactions for %s", userID)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var tx model.Transaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(err, "error iterating transactions")
	}
	return txs, nil
}
