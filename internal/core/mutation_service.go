package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultDedupWindow suppresses accidental double-scans that arrive without
// an idempotency key. Configurable via WithDedupWindow; zero disables it.
const defaultDedupWindow = 4 * time.Second

// PalletRef targets a pallet either by its id or, when the scanner only read
// a product code, by the product's single active pallet.
type PalletRef struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

// MutationResult is the outcome of one pallet action. Deduped means the
// request was recognised as a repeat (same idempotency key, or an identical
// scan inside the suppression window) and nothing was re-applied.
type MutationResult struct {
	Pallet  *Pallet `json:"pallet"`
	Deduped bool    `json:"deduped"`
}

type CheckInParams struct {
	PalletID        string `json:"pallet_id"`
	CustomerName    string `json:"customer_name"`
	ProductID       string `json:"product_id"`
	Location        string `json:"location"`
	PalletQuantity  int    `json:"pallet_quantity"`
	ProductQuantity int    `json:"product_quantity"` // units per pallet, 0 = untracked
	Notes           string `json:"notes"`
}

type MoveParams struct {
	ToLocation string `json:"to_location"`
	Notes      string `json:"notes"`
}

type PartialRemoveParams struct {
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type UnitsRemoveParams struct {
	Units int    `json:"units"`
	Notes string `json:"notes"`
}

type CheckOutParams struct {
	Notes string `json:"notes"`
}

// MutationService validates and applies one pallet state transition per call.
// It is the sole writer of the pallets and locations tables. Every transition
// lands as exactly one ledger record plus the updated current-state rows,
// atomically, under an optimistic version check.
type MutationService struct {
	pool        *pgxpool.Pool
	store       *LedgerStore
	dedupWindow time.Duration
	now         func() time.Time
}

func NewMutationService(pool *pgxpool.Pool, store *LedgerStore) *MutationService {
	return &MutationService{
		pool:        pool,
		store:       store,
		dedupWindow: defaultDedupWindow,
		now:         time.Now,
	}
}

// WithDedupWindow overrides the recent-duplicate suppression window.
// Zero disables suppression entirely (idempotency keys still apply).
func (s *MutationService) WithDedupWindow(d time.Duration) *MutationService {
	s.dedupWindow = d
	return s
}

// WithClock injects the timestamp source. Tests use this to place ledger
// records at known times.
func (s *MutationService) WithClock(now func() time.Time) *MutationService {
	s.now = now
	return s
}

// dedupByKey returns a Deduped result when the idempotency key has already
// produced a ledger record. The original record wins regardless of whether
// the repeat carries a different payload.
func (s *MutationService) dedupByKey(ctx context.Context, key string) (*MutationResult, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := s.store.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	pallet, err := s.store.CurrentPallet(ctx, rec.PalletID)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Pallet: pallet, Deduped: true}, nil
}

// resolveActive loads the pallet a mutation targets. Removed pallets are
// terminal and indistinguishable from non-existent ones for write purposes.
func (s *MutationService) resolveActive(ctx context.Context, ref PalletRef) (*Pallet, error) {
	if ref.ID == "" && ref.ProductID == "" {
		return nil, fmt.Errorf("pallet reference requires an id or a product id: %w", ErrInvalidInput)
	}
	if ref.ID != "" {
		p, err := s.store.CurrentPallet(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if p.Status != PalletActive {
			return nil, fmt.Errorf("pallet %s: %w", ref.ID, ErrNotFound)
		}
		return p, nil
	}
	return s.store.ActivePalletByProduct(ctx, ref.ProductID)
}

// suppressRecent returns a Deduped result when an identical scan for the same
// pallet landed inside the suppression window. This only guards keyless
// requests from flaky scanners; keyed requests were already checked.
func (s *MutationService) suppressRecent(ctx context.Context, pallet *Pallet, action Action, location string, quantityChanged int) (*MutationResult, error) {
	if s.dedupWindow <= 0 {
		return nil, nil
	}
	dup, err := s.store.HasRecentDuplicate(ctx, pallet.ID, action, location, quantityChanged, s.now().Add(-s.dedupWindow))
	if err != nil {
		return nil, err
	}
	if !dup {
		return nil, nil
	}
	return &MutationResult{Pallet: pallet, Deduped: true}, nil
}

// lockLocationTx row-locks a location and returns it. NotFound if absent.
func lockLocationTx(ctx context.Context, tx pgx.Tx, id string) (*Location, error) {
	var loc Location
	err := tx.QueryRow(ctx, `
		SELECT id, capacity_pallets, is_occupied, location_type
		FROM locations WHERE id = $1 FOR UPDATE
	`, id).Scan(&loc.ID, &loc.CapacityPallets, &loc.IsOccupied, &loc.LocationType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("location %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock location %s: %w", id, err)
	}
	return &loc, nil
}

// occupiedByOther reports whether a different active pallet sits at the
// (already locked) location.
func occupiedByOther(ctx context.Context, tx pgx.Tx, locationID, excludePalletID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pallets WHERE location = $1 AND status = 'active' AND id <> $2
		)
	`, locationID, excludePalletID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check location occupancy: %w", err)
	}
	return exists, nil
}

// refreshOccupancyTx recomputes the denormalized is_occupied flag from the
// active pallets at the location, inside the owning mutation's transaction.
func refreshOccupancyTx(ctx context.Context, tx pgx.Tx, locationID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE locations
		SET is_occupied = EXISTS (SELECT 1 FROM pallets WHERE location = $1 AND status = 'active')
		WHERE id = $1
	`, locationID)
	if err != nil {
		return fmt.Errorf("failed to refresh occupancy for location %s: %w", locationID, err)
	}
	return nil
}

// appendAndCommit appends the ledger record and commits the transaction.
// When the record's idempotency key lost an append race, the transaction is
// abandoned and the concurrent winner's outcome stands.
func (s *MutationService) appendAndCommit(ctx context.Context, tx pgx.Tx, rec *LedgerRecord, pallet *Pallet) (*MutationResult, error) {
	_, deduped, err := s.store.AppendTx(ctx, tx, rec)
	if err != nil {
		return nil, err
	}
	if deduped {
		_ = tx.Rollback(ctx)
		current, err := s.store.CurrentPallet(ctx, rec.PalletID)
		if err != nil {
			return nil, err
		}
		return &MutationResult{Pallet: current, Deduped: true}, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mutation: %w: %w", ErrInternal, err)
	}
	return &MutationResult{Pallet: pallet}, nil
}

// CheckIn creates a new active pallet entry at a location. A pallet id may be
// reused only when its previous entry was removed; the removed row is
// replaced wholesale, never resurrected field-by-field.
func (s *MutationService) CheckIn(ctx context.Context, params CheckInParams, actor Actor, idempotencyKey string) (*MutationResult, error) {
	if res, err := s.dedupByKey(ctx, idempotencyKey); res != nil || err != nil {
		return res, err
	}

	if params.PalletID == "" || params.CustomerName == "" || params.ProductID == "" || params.Location == "" {
		return nil, fmt.Errorf("check-in requires pallet id, customer, product, and location: %w", ErrInvalidInput)
	}
	if params.PalletQuantity <= 0 {
		return nil, fmt.Errorf("pallet quantity must be positive, got %d: %w", params.PalletQuantity, ErrInvalidInput)
	}
	if params.ProductQuantity < 0 {
		return nil, fmt.Errorf("product quantity cannot be negative, got %d: %w", params.ProductQuantity, ErrInvalidInput)
	}

	if s.dedupWindow > 0 {
		dup, err := s.store.HasRecentDuplicate(ctx, params.PalletID, ActionCheckIn, params.Location, params.PalletQuantity, s.now().Add(-s.dedupWindow))
		if err != nil {
			return nil, err
		}
		if dup {
			pallet, err := s.store.CurrentPallet(ctx, params.PalletID)
			if err != nil {
				return nil, err
			}
			return &MutationResult{Pallet: pallet, Deduped: true}, nil
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	loc, err := lockLocationTx(ctx, tx, params.Location)
	if err != nil {
		return nil, err
	}
	if loc.CapacityPallets != nil {
		occupied, err := occupiedByOther(ctx, tx, loc.ID, params.PalletID)
		if err != nil {
			return nil, err
		}
		if occupied {
			return nil, fmt.Errorf("location %s is occupied: %w", loc.ID, ErrConflict)
		}
	}

	now := s.now()
	units := params.PalletQuantity * params.ProductQuantity
	pallet, err := scanPallet(tx.QueryRow(ctx, `
		INSERT INTO pallets (id, customer_name, product_id, location, pallet_quantity,
			product_quantity, current_units, status, version, date_added, date_removed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', 1, $8, NULL)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			product_id = EXCLUDED.product_id,
			location = EXCLUDED.location,
			pallet_quantity = EXCLUDED.pallet_quantity,
			product_quantity = EXCLUDED.product_quantity,
			current_units = EXCLUDED.current_units,
			status = 'active',
			version = pallets.version + 1,
			date_added = EXCLUDED.date_added,
			date_removed = NULL
		WHERE pallets.status = 'removed'
		RETURNING `+palletColumns,
		params.PalletID, params.CustomerName, params.ProductID, params.Location,
		params.PalletQuantity, params.ProductQuantity, units, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pallet %s is already checked in: %w", params.PalletID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert pallet %s: %w", params.PalletID, err)
	}

	rec := &LedgerRecord{
		PalletID:        pallet.ID,
		CustomerName:    pallet.CustomerName,
		ProductID:       pallet.ProductID,
		Action:          ActionCheckIn,
		QuantityChanged: params.PalletQuantity,
		QuantityBefore:  0,
		QuantityAfter:   params.PalletQuantity,
		Location:        params.Location,
		Notes:           params.Notes,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		RecordedAt:      now,
	}

	if _, err := tx.Exec(ctx, `UPDATE locations SET is_occupied = true WHERE id = $1`, params.Location); err != nil {
		return nil, fmt.Errorf("failed to mark location %s occupied: %w", params.Location, err)
	}

	return s.appendAndCommit(ctx, tx, rec, pallet)
}

// Move relocates an active pallet. Moving to the pallet's current location is
// a no-op success and appends nothing.
func (s *MutationService) Move(ctx context.Context, ref PalletRef, params MoveParams, actor Actor, idempotencyKey string) (*MutationResult, error) {
	if res, err := s.dedupByKey(ctx, idempotencyKey); res != nil || err != nil {
		return res, err
	}

	pallet, err := s.resolveActive(ctx, ref)
	if err != nil {
		return nil, err
	}

	if params.ToLocation == "" {
		return nil, fmt.Errorf("move requires a target location: %w", ErrInvalidInput)
	}
	if params.ToLocation == pallet.Location {
		return &MutationResult{Pallet: pallet}, nil
	}

	if res, err := s.suppressRecent(ctx, pallet, ActionMove, params.ToLocation, 0); res != nil || err != nil {
		return res, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	// Lock source and destination in id order so two opposite moves cannot
	// deadlock each other.
	first, second := pallet.Location, params.ToLocation
	if second < first {
		first, second = second, first
	}
	locA, err := lockLocationTx(ctx, tx, first)
	if err != nil {
		return nil, err
	}
	locB, err := lockLocationTx(ctx, tx, second)
	if err != nil {
		return nil, err
	}
	target := locA
	if locB.ID == params.ToLocation {
		target = locB
	}

	if target.CapacityPallets != nil {
		occupied, err := occupiedByOther(ctx, tx, target.ID, pallet.ID)
		if err != nil {
			return nil, err
		}
		if occupied {
			return nil, fmt.Errorf("location %s is occupied: %w", target.ID, ErrConflict)
		}
	}

	updated, err := s.casUpdate(ctx, tx, pallet, `
		UPDATE pallets SET location = $3, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'
		RETURNING `+palletColumns, params.ToLocation)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &LedgerRecord{
		PalletID:        pallet.ID,
		CustomerName:    pallet.CustomerName,
		ProductID:       pallet.ProductID,
		Action:          ActionMove,
		QuantityChanged: 0,
		QuantityBefore:  pallet.PalletQuantity,
		QuantityAfter:   pallet.PalletQuantity,
		Location:        params.ToLocation,
		Notes:           params.Notes,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		RecordedAt:      now,
	}

	if err := refreshOccupancyTx(ctx, tx, pallet.Location); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE locations SET is_occupied = true WHERE id = $1`, params.ToLocation); err != nil {
		return nil, fmt.Errorf("failed to mark location %s occupied: %w", params.ToLocation, err)
	}

	return s.appendAndCommit(ctx, tx, rec, updated)
}

// PartialRemove draws down whole pallets from an entry. Reaching zero
// transitions the entry to removed and frees its location in the same step.
func (s *MutationService) PartialRemove(ctx context.Context, ref PalletRef, params PartialRemoveParams, actor Actor, idempotencyKey string) (*MutationResult, error) {
	if res, err := s.dedupByKey(ctx, idempotencyKey); res != nil || err != nil {
		return res, err
	}

	pallet, err := s.resolveActive(ctx, ref)
	if err != nil {
		return nil, err
	}

	if params.Quantity <= 0 || params.Quantity > pallet.PalletQuantity {
		return nil, fmt.Errorf("remove quantity must be in 1..%d, got %d: %w",
			pallet.PalletQuantity, params.Quantity, ErrInvalidInput)
	}

	if res, err := s.suppressRecent(ctx, pallet, ActionPartialRemove, pallet.Location, params.Quantity); res != nil || err != nil {
		return res, err
	}

	newQty := pallet.PalletQuantity - params.Quantity
	newUnits := pallet.CurrentUnits
	if pallet.ProductQuantity > 0 {
		newUnits -= params.Quantity * pallet.ProductQuantity
		if newUnits < 0 {
			newUnits = 0
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	var updated *Pallet
	if newQty == 0 {
		updated, err = s.casUpdate(ctx, tx, pallet, `
			UPDATE pallets SET pallet_quantity = 0, current_units = 0,
				status = 'removed', date_removed = $3, version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'active'
			RETURNING `+palletColumns, now)
	} else {
		updated, err = s.casUpdate(ctx, tx, pallet, `
			UPDATE pallets SET pallet_quantity = $3, current_units = $4, version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'active'
			RETURNING `+palletColumns, newQty, newUnits)
	}
	if err != nil {
		return nil, err
	}

	rec := &LedgerRecord{
		PalletID:        pallet.ID,
		CustomerName:    pallet.CustomerName,
		ProductID:       pallet.ProductID,
		Action:          ActionPartialRemove,
		QuantityChanged: params.Quantity,
		QuantityBefore:  pallet.PalletQuantity,
		QuantityAfter:   newQty,
		Location:        pallet.Location,
		Notes:           params.Notes,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		RecordedAt:      now,
	}

	if newQty == 0 {
		if err := refreshOccupancyTx(ctx, tx, pallet.Location); err != nil {
			return nil, err
		}
	}

	return s.appendAndCommit(ctx, tx, rec, updated)
}

// UnitsRemove draws down tracked units from a pallet whose product quantity
// is known. Reaching zero units removes the entry entirely.
func (s *MutationService) UnitsRemove(ctx context.Context, ref PalletRef, params UnitsRemoveParams, actor Actor, idempotencyKey string) (*MutationResult, error) {
	if res, err := s.dedupByKey(ctx, idempotencyKey); res != nil || err != nil {
		return res, err
	}

	pallet, err := s.resolveActive(ctx, ref)
	if err != nil {
		return nil, err
	}

	if pallet.ProductQuantity <= 0 {
		return nil, fmt.Errorf("pallet %s does not track units: %w", pallet.ID, ErrInvalidInput)
	}
	if params.Units <= 0 || params.Units > pallet.CurrentUnits {
		return nil, fmt.Errorf("units to remove must be in 1..%d, got %d: %w",
			pallet.CurrentUnits, params.Units, ErrInvalidInput)
	}

	if res, err := s.suppressRecent(ctx, pallet, ActionUnitsRemove, pallet.Location, params.Units); res != nil || err != nil {
		return res, err
	}

	newUnits := pallet.CurrentUnits - params.Units

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	var updated *Pallet
	if newUnits == 0 {
		updated, err = s.casUpdate(ctx, tx, pallet, `
			UPDATE pallets SET current_units = 0, pallet_quantity = 0,
				status = 'removed', date_removed = $3, version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'active'
			RETURNING `+palletColumns, now)
	} else {
		updated, err = s.casUpdate(ctx, tx, pallet, `
			UPDATE pallets SET current_units = $3, version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'active'
			RETURNING `+palletColumns, newUnits)
	}
	if err != nil {
		return nil, err
	}

	rec := &LedgerRecord{
		PalletID:        pallet.ID,
		CustomerName:    pallet.CustomerName,
		ProductID:       pallet.ProductID,
		Action:          ActionUnitsRemove,
		QuantityChanged: params.Units,
		QuantityBefore:  pallet.CurrentUnits,
		QuantityAfter:   newUnits,
		Location:        pallet.Location,
		Notes:           params.Notes,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		RecordedAt:      now,
	}

	if newUnits == 0 {
		if err := refreshOccupancyTx(ctx, tx, pallet.Location); err != nil {
			return nil, err
		}
	}

	return s.appendAndCommit(ctx, tx, rec, updated)
}

// CheckOut removes an active pallet entirely and frees its location.
func (s *MutationService) CheckOut(ctx context.Context, ref PalletRef, params CheckOutParams, actor Actor, idempotencyKey string) (*MutationResult, error) {
	if res, err := s.dedupByKey(ctx, idempotencyKey); res != nil || err != nil {
		return res, err
	}

	pallet, err := s.resolveActive(ctx, ref)
	if err != nil {
		return nil, err
	}

	if res, err := s.suppressRecent(ctx, pallet, ActionCheckOut, pallet.Location, pallet.PalletQuantity); res != nil || err != nil {
		return res, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %w", ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	updated, err := s.casUpdate(ctx, tx, pallet, `
		UPDATE pallets SET status = 'removed', date_removed = $3, version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'active'
		RETURNING `+palletColumns, now)
	if err != nil {
		return nil, err
	}

	rec := &LedgerRecord{
		PalletID:        pallet.ID,
		CustomerName:    pallet.CustomerName,
		ProductID:       pallet.ProductID,
		Action:          ActionCheckOut,
		QuantityChanged: pallet.PalletQuantity,
		QuantityBefore:  pallet.PalletQuantity,
		QuantityAfter:   0,
		Location:        pallet.Location,
		Notes:           params.Notes,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		RecordedAt:      now,
	}

	if err := refreshOccupancyTx(ctx, tx, pallet.Location); err != nil {
		return nil, err
	}

	return s.appendAndCommit(ctx, tx, rec, updated)
}

// casUpdate runs an optimistic-concurrency update conditioned on the version
// the caller read. Zero matched rows means another writer won the race.
func (s *MutationService) casUpdate(ctx context.Context, tx pgx.Tx, pallet *Pallet, sql string, args ...any) (*Pallet, error) {
	all := append([]any{pallet.ID, pallet.Version}, args...)
	updated, err := scanPallet(tx.QueryRow(ctx, sql, all...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pallet %s was modified concurrently, re-read and retry: %w", pallet.ID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to update pallet %s: %w", pallet.ID, err)
	}
	return updated, nil
}
