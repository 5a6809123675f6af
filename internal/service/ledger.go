package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"territory-engine/internal/model"
	"territory-engine/internal/pkg/apperr"
	"territory-engine/internal/pkg/lock"
)

// LedgerService owns per-owner resource balances and the transfer
// protocol. Balances are always non-negative; a type not present is
// implicitly zero. All mutations against one owner are serialized through
// per-owner locks.
type LedgerService struct {
	inventories InventoryStore
	locks       *lock.OwnerLock
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(inventories InventoryStore, locks *lock.OwnerLock) *LedgerService {
	return &LedgerService{inventories: inventories, locks: locks}
}

// validAmounts rejects empty, zero or negative amount maps.
func validAmounts(amounts map[string]int64) error {
	if len(amounts) == 0 {
		return apperr.Validation("at least one resource amount is required")
	}
	for typ, qty := range amounts {
		if qty <= 0 {
			return apperr.Validation("amount for %s must be positive, got %d", typ, qty)
		}
	}
	return nil
}

// getOrNew loads the owner's inventory, lazily creating an empty one.
func (s *LedgerService) getOrNew(ctx context.Context, owner model.Owner) (*model.Inventory, error) {
	inv, err := s.inventories.Get(ctx, owner)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return &model.Inventory{
				Owner:     owner,
				Resources: make(map[string]int64),
			}, nil
		}
		return nil, err
	}
	if inv.Resources == nil {
		inv.Resources = make(map[string]int64)
	}
	return inv, nil
}

// Credit adds the deltas to the owner's balances, creating the inventory
// on first use. Fails with CapacityExceeded if a configured per-type
// ceiling would be crossed, in which case nothing is applied.
func (s *LedgerService) Credit(ctx context.Context, owner model.Owner, deltas map[string]int64) (*model.Inventory, error) {
	if err := validAmounts(deltas); err != nil {
		return nil, err
	}

	key := owner.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.creditLocked(ctx, owner, deltas)
}

// creditLocked applies a credit. Caller holds the owner's lock.
func (s *LedgerService) creditLocked(ctx context.Context, owner model.Owner, deltas map[string]int64) (*model.Inventory, error) {
	inv, err := s.getOrNew(ctx, owner)
	if err != nil {
		return nil, err
	}

	// Check every ceiling before mutating anything.
	for typ, qty := range deltas {
		if ceiling, ok := inv.Capacity[typ]; ok && inv.Resources[typ]+qty > ceiling {
			return nil, apperr.CapacityExceeded(
				"crediting %d %s to %s would exceed capacity %d (held %d)",
				qty, typ, owner.Key(), ceiling, inv.Resources[typ],
			)
		}
	}

	for typ, qty := range deltas {
		inv.Resources[typ] += qty
	}
	inv.UpdatedAt = time.Now()

	if err := s.inventories.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Debit removes the amounts from the owner's balances. Every requested
// type is validated for sufficient balance before anything is mutated;
// if any type is short the inventory is left untouched.
func (s *LedgerService) Debit(ctx context.Context, owner model.Owner, amounts map[string]int64) (*model.Inventory, error) {
	if err := validAmounts(amounts); err != nil {
		return nil, err
	}

	key := owner.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.debitLocked(ctx, owner, amounts)
}

// debitLocked applies a check-then-commit debit. Caller holds the owner's
// lock.
func (s *LedgerService) debitLocked(ctx context.Context, owner model.Owner, amounts map[string]int64) (*model.Inventory, error) {
	inv, err := s.getOrNew(ctx, owner)
	if err != nil {
		return nil, err
	}

	for typ, qty := range amounts {
		if inv.Resources[typ] < qty {
			return nil, apperr.InsufficientResources(
				"%s holds %d %s, needs %d",
				owner.Key(), inv.Resources[typ], typ, qty,
			)
		}
	}

	for typ, qty := range amounts {
		inv.Resources[typ] -= qty
	}
	inv.UpdatedAt = time.Now()

	if err := s.inventories.Upsert(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Transfer moves amounts from one owner to another as a two-step saga:
// debit the sender, credit the receiver, and compensate the sender if the
// credit fails. This is not a single atomic commit; a concurrent read of
// the sender's balance between the two steps may observe a transient
// under-count. Both owners' locks are held for the duration, acquired in
// stable key order, so transfers against the same pair are serialized.
func (s *LedgerService) Transfer(ctx context.Context, from, to model.Owner, amounts map[string]int64) error {
	if err := validAmounts(amounts); err != nil {
		return err
	}
	fromKey, toKey := from.Key(), to.Key()
	if fromKey == toKey {
		return apperr.Validation("cannot transfer from %s to itself", fromKey)
	}

	first, second := fromKey, toKey
	if second < first {
		first, second = second, first
	}
	s.locks.Lock(first)
	defer s.locks.Unlock(first)
	s.locks.Lock(second)
	defer s.locks.Unlock(second)

	if _, err := s.debitLocked(ctx, from, amounts); err != nil {
		return err
	}

	if _, err := s.creditLocked(ctx, to, amounts); err != nil {
		// Compensate: restore the sender before reporting failure.
		if _, compErr := s.creditLocked(ctx, from, amounts); compErr != nil {
			log.Error().
				Err(compErr).
				Str("from", fromKey).
				Str("to", toKey).
				Msg("Transfer compensation failed; sender balance under-counted")
			return apperr.Wrap(apperr.KindStoreUnavailable, compErr,
				"transfer to %s failed and compensation of %s failed", toKey, fromKey)
		}
		return err
	}

	return nil
}

// Balance returns a copy of the owner's balances. An owner never credited
// has an empty balance map.
func (s *LedgerService) Balance(ctx context.Context, owner model.Owner) (map[string]int64, error) {
	inv, err := s.inventories.Get(ctx, owner)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return map[string]int64{}, nil
		}
		return nil, err
	}

	balances := make(map[string]int64, len(inv.Resources))
	for typ, qty := range inv.Resources {
		balances[typ] = qty
	}
	return balances, nil
}

// SetCapacity configures a per-type ceiling on the owner's inventory.
// A ceiling of zero or less removes the limit.
func (s *LedgerService) SetCapacity(ctx context.Context, owner model.Owner, resourceType string, ceiling int64) error {
	if resourceType == "" {
		return apperr.Validation("resource type is required")
	}

	key := owner.Key()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	inv, err := s.getOrNew(ctx, owner)
	if err != nil {
		return err
	}
	if ceiling <= 0 {
		delete(inv.Capacity, resourceType)
	} else {
		if inv.Capacity == nil {
			inv.Capacity = make(map[string]int64)
		}
		inv.Capacity[resourceType] = ceiling
	}
	inv.UpdatedAt = time.Now()

	return s.inventories.Upsert(ctx, inv)
}
